package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hapticscan/internal/clock"
	"hapticscan/internal/haptic"
)

// Sampler yields one filtered distance in cm.
type Sampler interface {
	Sample() float64
}

// Snapshot is the scan status published after each measurement.
type Snapshot struct {
	Time        time.Time     `json:"time"`
	Position    int           `json:"position"`
	AngleDeg    float64       `json:"angle_deg"`
	Direction   string        `json:"direction"`
	DistanceCm  float64       `json:"distance_cm"`
	Quadrant    string        `json:"quadrant"`
	Intensities haptic.Vector `json:"intensities"`
	Revolutions uint64        `json:"revolutions"`
	Measurement uint64        `json:"measurement"`
}

// Observer receives snapshots from the control loop. Implementations must
// not block.
type Observer interface {
	ObserveScan(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) ObserveScan(s Snapshot) { f(s) }

// Controller owns the scan state and runs the step/measure/actuate cycle.
type Controller struct {
	params    Params
	stepper   *Stepper
	scheduler Scheduler
	sampler   Sampler
	mapper    *haptic.Mapper
	driver    haptic.Driver
	clk       clock.Clock
	log       *slog.Logger
	observers []Observer

	mu           sync.Mutex
	state        State
	last         Snapshot
	measurements uint64
	started      bool
}

// ControllerDeps are the collaborators of a Controller.
type ControllerDeps struct {
	Stepper *Stepper
	Sampler Sampler
	Mapper  *haptic.Mapper
	Driver  haptic.Driver
	Clock   clock.Clock
	Logger  *slog.Logger
}

func NewController(p Params, deps ControllerDeps, observers ...Observer) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if deps.Stepper == nil || deps.Sampler == nil || deps.Mapper == nil || deps.Driver == nil {
		return nil, errors.New("scan: stepper, sampler, mapper and driver are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	var obs []Observer
	for _, o := range observers {
		if o != nil {
			obs = append(obs, o)
		}
	}
	return &Controller{
		params:    p,
		stepper:   deps.Stepper,
		scheduler: NewScheduler(p),
		sampler:   deps.Sampler,
		mapper:    deps.Mapper,
		driver:    deps.Driver,
		clk:       deps.Clock,
		log:       deps.Logger,
		observers: obs,
		state:     NewState(p.StepsPerRevolution()),
	}, nil
}

// State returns a copy of the current scan state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the most recent measurement snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Start drives the direction line and enables the motor. Tick calls it on
// first use.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() error {
	if c.started {
		return nil
	}
	if err := c.stepper.Init(c.state); err != nil {
		return err
	}
	c.started = true
	c.log.Info("scan started",
		"steps_per_revolution", c.params.StepsPerRevolution(),
		"measurements_per_revolution", c.params.MeasurementsPerRevolution,
	)
	return nil
}

// Tick performs one step and, when scheduled, one measurement.
func (c *Controller) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if err := c.startLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	state, err := c.stepper.Step(c.state)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	var (
		snap     Snapshot
		measured bool
	)
	state, due := c.scheduler.Due(state)
	if due {
		snap, err = c.measureLocked(state)
		if err != nil {
			c.state = state
			c.mu.Unlock()
			return err
		}
		measured = true
	}

	state, reversed, err := c.stepper.CheckRevolutionBoundary(state)
	c.state = state
	c.mu.Unlock()
	if reversed {
		c.log.Debug("direction change", "direction", state.Direction.String(), "revolutions", state.Revolutions)
	}
	if err != nil {
		return err
	}

	if measured {
		for _, o := range c.observers {
			o.ObserveScan(snap)
		}
	}
	return nil
}

func (c *Controller) measureLocked(state State) (Snapshot, error) {
	distance := c.sampler.Sample()
	angle := state.Angle()
	vec := c.mapper.Update(distance, angle)
	if err := c.driver.Apply(vec); err != nil {
		return Snapshot{}, fmt.Errorf("scan: apply actuators: %w", err)
	}
	c.clk.Sleep(c.params.PostMeasurePause)

	c.measurements++
	ch := haptic.QuadrantOf(angle)
	snap := Snapshot{
		Time:        c.clk.Now().UTC(),
		Position:    state.Position,
		AngleDeg:    angle,
		Direction:   state.Direction.String(),
		DistanceCm:  distance,
		Quadrant:    ch.String(),
		Intensities: vec,
		Revolutions: state.Revolutions,
		Measurement: c.measurements,
	}
	c.last = snap
	c.log.Debug("measure",
		"angle", fmt.Sprintf("%.1f", angle),
		"distance_cm", fmt.Sprintf("%.1f", distance),
		"quadrant", ch.String(),
		"intensity", vec[ch],
	)
	return snap, nil
}

// Run ticks until ctx is cancelled or a tick fails, then zeroes the
// actuators and releases the motor.
func (c *Controller) Run(ctx context.Context) error {
	err := c.loop(ctx)
	if stopErr := c.Stop(); stopErr != nil {
		c.log.Warn("scan stop", "error", stopErr)
		if err == nil {
			err = stopErr
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (c *Controller) loop(ctx context.Context) error {
	for {
		if err := c.Tick(ctx); err != nil {
			return err
		}
	}
}

// Stop drives every actuator to zero and disables the motor driver.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.driver.Apply(haptic.Vector{}), c.stepper.Disable())
}
