package scan

import (
	"fmt"
	"time"

	"hapticscan/internal/clock"
	"hapticscan/internal/gpio"
)

// StepperLines are the STEP/DIR/EN inputs of a step-direction driver
// (TMC2209, A4988 and similar). Enable may be nil when tied low in hardware.
type StepperLines struct {
	Step   gpio.Output
	Dir    gpio.Output
	Enable gpio.Output
}

// Stepper issues microstep pulses and keeps the direction line in sync with
// the scan state. There is no position feedback: steps are assumed lossless.
type Stepper struct {
	lines StepperLines
	clk   clock.Clock
	pulse time.Duration
	delay time.Duration
}

func NewStepper(lines StepperLines, clk clock.Clock, pulse, delay time.Duration) *Stepper {
	if clk == nil {
		clk = clock.System{}
	}
	return &Stepper{lines: lines, clk: clk, pulse: pulse, delay: delay}
}

// dirLevel maps a direction onto the DIR line (clockwise = high).
func dirLevel(d Direction) bool { return d == Clockwise }

// Init drives DIR for s and enables the driver.
func (st *Stepper) Init(s State) error {
	if err := st.lines.Step.Set(false); err != nil {
		return fmt.Errorf("scan: step low: %w", err)
	}
	if err := st.lines.Dir.Set(dirLevel(s.Direction)); err != nil {
		return fmt.Errorf("scan: set direction: %w", err)
	}
	return st.Enable()
}

// Enable powers the motor (EN is active low).
func (st *Stepper) Enable() error {
	if st.lines.Enable == nil {
		return nil
	}
	if err := st.lines.Enable.Set(false); err != nil {
		return fmt.Errorf("scan: enable driver: %w", err)
	}
	return nil
}

// Disable lets the motor freewheel.
func (st *Stepper) Disable() error {
	if st.lines.Enable == nil {
		return nil
	}
	if err := st.lines.Enable.Set(true); err != nil {
		return fmt.Errorf("scan: disable driver: %w", err)
	}
	return nil
}

// Step emits one microstep pulse and returns the advanced state. On a line
// error the state is returned unchanged.
func (st *Stepper) Step(s State) (State, error) {
	if err := st.lines.Step.Set(true); err != nil {
		return s, fmt.Errorf("scan: step high: %w", err)
	}
	st.clk.Sleep(st.pulse)
	if err := st.lines.Step.Set(false); err != nil {
		return s, fmt.Errorf("scan: step low: %w", err)
	}
	st.clk.Sleep(st.delay)
	return s.Advance(), nil
}

// CheckRevolutionBoundary reverses the sweep when a full revolution has been
// stepped. It reports whether a reversal happened.
func (st *Stepper) CheckRevolutionBoundary(s State) (State, bool, error) {
	if !s.AtRevolutionBoundary() {
		return s, false, nil
	}
	next := s.Reverse()
	if err := st.lines.Dir.Set(dirLevel(next.Direction)); err != nil {
		return next, true, fmt.Errorf("scan: set direction: %w", err)
	}
	return next, true, nil
}
