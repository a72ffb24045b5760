package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ScenarioScript scripts obstacle motion around the scanner.
//
// Times are Go duration strings. If Duration is zero it is derived from the
// latest keyframe.
//
//	version: 1
//	duration: 20s
//	obstacles:
//	  - name: cyclist
//	    keyframes:
//	      - t: 0s
//	        angle_deg: 80
//	        width_deg: 10
//	        distance_cm: 240
//	      - t: 8s
//	        angle_deg: 100
//	        width_deg: 25
//	        distance_cm: 40
//
// Keyframes of each obstacle must use non-decreasing t values.
type ScenarioScript struct {
	Version   int                `yaml:"version"`
	Duration  time.Duration      `yaml:"duration"`
	Obstacles []ScenarioObstacle `yaml:"obstacles"`
}

// ScenarioObstacle is the timeline of one obstacle.
type ScenarioObstacle struct {
	Name      string             `yaml:"name"`
	Keyframes []ObstacleKeyframe `yaml:"keyframes"`
}

// ObstacleKeyframe is a time-stamped obstacle state.
type ObstacleKeyframe struct {
	T          time.Duration `yaml:"t"`
	AngleDeg   float64       `yaml:"angle_deg"`
	WidthDeg   float64       `yaml:"width_deg"`
	DistanceCm float64       `yaml:"distance_cm"`
}

// Scenario is the validated, runtime representation.
type Scenario struct {
	script   ScenarioScript
	duration time.Duration
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, err
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Obstacles) == 0 {
		return nil, fmt.Errorf("obstacles is required")
	}
	for i, o := range script.Obstacles {
		if len(o.Keyframes) == 0 {
			return nil, fmt.Errorf("obstacles[%d].keyframes is required", i)
		}
		if err := validateKeyframes(o.Keyframes, i); err != nil {
			return nil, err
		}
	}

	dur := script.Duration
	if dur <= 0 {
		dur = maxKeyframeTime(script)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}
	return &Scenario{script: script, duration: dur}, nil
}

// Duration returns the effective scenario duration.
func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// ObstaclesAt returns the obstacle field at elapsed.
//
// If loop is true, elapsed wraps around Duration(). Otherwise elapsed is clamped
// to [0, Duration()].
func (s *Scenario) ObstaclesAt(elapsed time.Duration, loop bool) []Obstacle {
	if s == nil {
		return nil
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if loop {
		elapsed = elapsed % s.duration
	} else if elapsed > s.duration {
		elapsed = s.duration
	}

	out := make([]Obstacle, 0, len(s.script.Obstacles))
	for _, o := range s.script.Obstacles {
		k0, k1, alpha := selectSegment(o.Keyframes, elapsed)
		out = append(out, Obstacle{
			AngleDeg:   lerpAngleDeg(k0.AngleDeg, k1.AngleDeg, alpha),
			WidthDeg:   lerp(k0.WidthDeg, k1.WidthDeg, alpha),
			DistanceCm: lerp(k0.DistanceCm, k1.DistanceCm, alpha),
		})
	}
	return out
}

func validateKeyframes(kfs []ObstacleKeyframe, oi int) error {
	for i := range kfs {
		if kfs[i].T < 0 {
			return fmt.Errorf("obstacles[%d].keyframes[%d].t must be >= 0", oi, i)
		}
		if kfs[i].DistanceCm <= 0 {
			return fmt.Errorf("obstacles[%d].keyframes[%d].distance_cm must be > 0", oi, i)
		}
		if i > 0 && kfs[i].T < kfs[i-1].T {
			return fmt.Errorf("obstacles[%d].keyframes must be sorted by t (index %d)", oi, i)
		}
	}
	return nil
}

func maxKeyframeTime(s ScenarioScript) time.Duration {
	var latest time.Duration
	for _, o := range s.Obstacles {
		for _, kf := range o.Keyframes {
			if kf.T > latest {
				latest = kf.T
			}
		}
	}
	return latest
}

func selectSegment(kfs []ObstacleKeyframe, t time.Duration) (ObstacleKeyframe, ObstacleKeyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpAngleDeg interpolates along the shortest arc, result in [0, 360).
func lerpAngleDeg(a0, a1, t float64) float64 {
	norm := func(x float64) float64 {
		for x < 0 {
			x += 360
		}
		for x >= 360 {
			x -= 360
		}
		return x
	}
	a0 = norm(a0)
	a1 = norm(a1)
	delta := a1 - a0
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return norm(a0 + delta*t)
}
