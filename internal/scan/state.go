// Package scan is the rotating-sensor control loop: the stepper position
// state machine, the per-revolution measurement schedule, and the controller
// tying sensing to haptic output.
package scan

import (
	"fmt"
	"time"
)

// Direction is the sweep direction of the scan head.
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "CW"
	case CounterClockwise:
		return "CCW"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Clockwise {
		return CounterClockwise
	}
	return Clockwise
}

// Params are the fixed mechanical and timing constants of a scan.
type Params struct {
	FullStepsPerRevolution    int
	Microsteps                int
	MeasurementsPerRevolution int

	// StepPulseWidth is the high time of the step line.
	StepPulseWidth time.Duration
	// StepMinDelay is the low time after each step pulse.
	StepMinDelay time.Duration
	// PostMeasurePause gives the ranger time to settle after a measurement.
	PostMeasurePause time.Duration
}

// DefaultParams match a 1.8° motor at 8x microstepping, sampled every 30°.
func DefaultParams() Params {
	return Params{
		FullStepsPerRevolution:    200,
		Microsteps:                8,
		MeasurementsPerRevolution: 12,
		StepPulseWidth:            50 * time.Microsecond,
		StepMinDelay:              100 * time.Microsecond,
		PostMeasurePause:          2 * time.Millisecond,
	}
}

func (p Params) StepsPerRevolution() int {
	return p.FullStepsPerRevolution * p.Microsteps
}

// MeasureInterval is the (fractional) number of steps between measurements.
func (p Params) MeasureInterval() float64 {
	return float64(p.StepsPerRevolution()) / float64(p.MeasurementsPerRevolution)
}

func (p Params) Validate() error {
	if p.FullStepsPerRevolution <= 0 {
		return fmt.Errorf("scan: full steps per revolution must be > 0, got %d", p.FullStepsPerRevolution)
	}
	if p.Microsteps <= 0 {
		return fmt.Errorf("scan: microsteps must be > 0, got %d", p.Microsteps)
	}
	if p.MeasurementsPerRevolution <= 0 {
		return fmt.Errorf("scan: measurements per revolution must be > 0, got %d", p.MeasurementsPerRevolution)
	}
	if p.MeasurementsPerRevolution > p.StepsPerRevolution() {
		return fmt.Errorf("scan: measurements per revolution (%d) exceeds steps per revolution (%d)",
			p.MeasurementsPerRevolution, p.StepsPerRevolution())
	}
	if p.StepPulseWidth < 0 || p.StepMinDelay < 0 || p.PostMeasurePause < 0 {
		return fmt.Errorf("scan: durations must not be negative")
	}
	return nil
}

// State is the scan position and per-revolution bookkeeping.
//
// State is a value: every transition returns a new State and leaves the
// receiver untouched.
type State struct {
	StepsPerRevolution int

	Position  int
	Direction Direction

	StepsInRevolution          int
	MeasurementsThisRevolution int
	NextMeasureThreshold       float64

	// Revolutions counts completed revolution boundaries.
	Revolutions uint64
}

// NewState returns the home position, sweeping clockwise.
func NewState(stepsPerRevolution int) State {
	return State{StepsPerRevolution: stepsPerRevolution, Direction: Clockwise}
}

// Angle is the head angle in degrees, in [0, 360).
func (s State) Angle() float64 {
	if s.StepsPerRevolution <= 0 {
		return 0
	}
	return float64(s.Position) * 360 / float64(s.StepsPerRevolution)
}

// Advance moves one step in the current direction, wrapping at both ends.
func (s State) Advance() State {
	n := s.StepsPerRevolution
	if s.Direction == Clockwise {
		s.Position++
		if s.Position >= n {
			s.Position = 0
		}
	} else {
		if s.Position <= 0 {
			s.Position = n - 1
		} else {
			s.Position--
		}
	}
	s.StepsInRevolution++
	return s
}

// AtRevolutionBoundary reports whether a full revolution of steps has been
// taken since the last reversal.
func (s State) AtRevolutionBoundary() bool {
	return s.StepsInRevolution == s.StepsPerRevolution
}

// Reverse starts a new revolution in the opposite direction. The schedule
// counters reset together with the direction flip.
func (s State) Reverse() State {
	s.StepsInRevolution = 0
	s.MeasurementsThisRevolution = 0
	s.NextMeasureThreshold = 0
	s.Direction = s.Direction.Reverse()
	s.Revolutions++
	return s
}
