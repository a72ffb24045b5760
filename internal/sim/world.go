// Package sim is a deterministic stand-in for the scanner hardware: a
// stepper-turned ranger in a field of obstacles, and a walking GPS receiver.
package sim

import (
	"math"
	"sync"
	"time"

	"hapticscan/internal/clock"
	"hapticscan/internal/gpio"
)

// Obstacle is a wedge of the scan circle at a fixed distance.
type Obstacle struct {
	AngleDeg   float64 `yaml:"angle_deg" json:"angle_deg"`
	WidthDeg   float64 `yaml:"width_deg" json:"width_deg"`
	DistanceCm float64 `yaml:"distance_cm" json:"distance_cm"`
}

func (o Obstacle) covers(angleDeg float64) bool {
	half := o.WidthDeg / 2
	if half <= 0 {
		half = 0.5
	}
	d := math.Mod(angleDeg-o.AngleDeg, 360)
	if d > 180 {
		d -= 360
	}
	if d < -180 {
		d += 360
	}
	return math.Abs(d) <= half
}

// WorldConfig describes the simulated room.
type WorldConfig struct {
	StepsPerRevolution int
	Obstacles          []Obstacle

	// SpinPeriod rotates the whole obstacle field once per period (0 = static).
	SpinPeriod time.Duration
	// EchoLead is the delay from trigger fall to echo rise.
	EchoLead time.Duration
	// MicrosPerCm is the speed-of-sound divisor used to size echo pulses.
	MicrosPerCm float64

	// Scenario adds scripted obstacles on top of the static ones.
	Scenario     *Scenario
	LoopScenario bool
}

// World tracks the head angle from the stepper lines and answers pings from
// the obstacle field. Lines returned by World are safe for concurrent use.
type World struct {
	cfg   WorldConfig
	clk   clock.Clock
	start time.Time

	mu       sync.Mutex
	position int
	cw       bool
	enabled  bool
	steps    uint64
	fallAt   time.Time
	pingDist float64

	step, dir, enable, trigger *gpio.Recorder
}

func NewWorld(cfg WorldConfig, clk clock.Clock) *World {
	if clk == nil {
		clk = clock.System{}
	}
	if cfg.StepsPerRevolution <= 0 {
		cfg.StepsPerRevolution = 1600
	}
	if cfg.EchoLead <= 0 {
		cfg.EchoLead = 200 * time.Microsecond
	}
	if cfg.MicrosPerCm <= 0 {
		cfg.MicrosPerCm = 29.1
	}
	w := &World{cfg: cfg, clk: clk, start: clk.Now(), cw: true}
	w.step = &gpio.Recorder{OnSet: w.onStep}
	w.dir = &gpio.Recorder{OnSet: func(high bool) {
		w.mu.Lock()
		w.cw = high
		w.mu.Unlock()
	}}
	w.enable = &gpio.Recorder{OnSet: func(high bool) {
		w.mu.Lock()
		w.enabled = !high
		w.mu.Unlock()
	}}
	w.trigger = &gpio.Recorder{OnSet: w.onTrigger}
	return w
}

func (w *World) StepLine() gpio.Output    { return w.step }
func (w *World) DirLine() gpio.Output     { return w.dir }
func (w *World) EnableLine() gpio.Output  { return w.enable }
func (w *World) TriggerLine() gpio.Output { return w.trigger }

// EchoLine is high for the round trip of the distance seen when the trigger
// last fell.
func (w *World) EchoLine() gpio.Input {
	return gpio.InputFunc(func() (bool, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fallAt.IsZero() || w.pingDist < 0 {
			return false, nil
		}
		rise := w.fallAt.Add(w.cfg.EchoLead)
		width := time.Duration(w.pingDist * 2 * w.cfg.MicrosPerCm * float64(time.Microsecond))
		now := w.clk.Now()
		return !now.Before(rise) && now.Before(rise.Add(width)), nil
	})
}

func (w *World) onStep(high bool) {
	if !high {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.enabled {
		return
	}
	n := w.cfg.StepsPerRevolution
	if w.cw {
		w.position = (w.position + 1) % n
	} else {
		w.position = (w.position - 1 + n) % n
	}
	w.steps++
}

func (w *World) onTrigger(high bool) {
	if high {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fallAt = w.clk.Now()
	w.pingDist = w.distanceLocked(w.angleLocked(), w.fallAt)
}

func (w *World) angleLocked() float64 {
	return float64(w.position) * 360 / float64(w.cfg.StepsPerRevolution)
}

// spinDeg is the field rotation at now.
func (w *World) spinDeg(now time.Time) float64 {
	p := w.cfg.SpinPeriod
	if p <= 0 {
		return 0
	}
	elapsed := now.Sub(w.start)
	phase := float64(elapsed%p) / float64(p)
	return 360 * phase
}

func (w *World) distanceLocked(angleDeg float64, now time.Time) float64 {
	rel := angleDeg - w.spinDeg(now)
	best := -1.0
	nearest := func(obs []Obstacle) {
		for _, o := range obs {
			if o.covers(rel) && (best < 0 || o.DistanceCm < best) {
				best = o.DistanceCm
			}
		}
	}
	nearest(w.cfg.Obstacles)
	if w.cfg.Scenario != nil {
		nearest(w.cfg.Scenario.ObstaclesAt(now.Sub(w.start), w.cfg.LoopScenario))
	}
	return best
}

// DistanceAt is the nearest obstacle distance at angleDeg now, or -1 for
// open space.
func (w *World) DistanceAt(angleDeg float64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.distanceLocked(angleDeg, w.clk.Now())
}

// AngleDeg is the head angle as seen by the stepper lines.
func (w *World) AngleDeg() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.angleLocked()
}

// Steps counts step pulses taken while the driver was enabled.
func (w *World) Steps() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steps
}
