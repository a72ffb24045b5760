// Package gpio wraps the digital lines the scanner drives and samples:
// stepper step/dir/enable, the ranging trigger, and the echo input.
//
// Pins use BCM numbering. On Linux/ARM the lines are requested through the
// GPIO character device; other platforms only get the in-memory helpers.
package gpio

import (
	"fmt"
	"sync"
)

// Output is a digital output line.
type Output interface {
	Set(high bool) error
	Close() error
}

// Input is a digital input line.
type Input interface {
	Get() (bool, error)
	Close() error
}

// Bias selects the pull resistor of an input line.
type Bias int

const (
	BiasNone Bias = iota
	BiasPullDown
	BiasPullUp
)

// Swappable for tests.
var (
	openOutputFn = openOutput
	openInputFn  = openInput
)

// OpenOutput requests pin as an output driven to initial.
func OpenOutput(pin int, initial bool, consumer string) (Output, error) {
	if pin < 0 {
		return nil, fmt.Errorf("gpio: invalid output pin %d", pin)
	}
	return openOutputFn(pin, initial, consumer)
}

// OpenInput requests pin as an input with the given bias.
func OpenInput(pin int, bias Bias, consumer string) (Input, error) {
	if pin < 0 {
		return nil, fmt.Errorf("gpio: invalid input pin %d", pin)
	}
	return openInputFn(pin, bias, consumer)
}

func lineName(pin int) string {
	return fmt.Sprintf("GPIO%d", pin)
}

// Recorder is an in-memory Output. It keeps every level written and calls
// OnSet, when set, after each write.
type Recorder struct {
	mu     sync.Mutex
	level  bool
	writes []bool
	closed bool

	OnSet func(high bool)
}

func (r *Recorder) Set(high bool) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("gpio: line closed")
	}
	r.level = high
	r.writes = append(r.writes, high)
	hook := r.OnSet
	r.mu.Unlock()
	if hook != nil {
		hook(high)
	}
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Level returns the last written level.
func (r *Recorder) Level() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

// Writes returns a copy of every level written so far.
func (r *Recorder) Writes() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.writes...)
}

// Rising counts low-to-high transitions, starting from low.
func (r *Recorder) Rising() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	prev := false
	for _, w := range r.writes {
		if w && !prev {
			n++
		}
		prev = w
	}
	return n
}

// InputFunc adapts a function to Input.
type InputFunc func() (bool, error)

func (f InputFunc) Get() (bool, error) { return f() }
func (f InputFunc) Close() error       { return nil }
