package haptic

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Driver writes intensity vectors to the physical actuators.
//
// Close should be best-effort and leave every actuator off.
type Driver interface {
	Apply(v Vector) error
	Close() error
}

// dutyChannel is the minimal interface a backend provides per actuator.
// Duty is expressed in permille (0..MaxIntensity).
type dutyChannel interface {
	SetDuty(permille uint16) error
	Close() error
}

// DriverConfig selects and configures an actuator backend.
type DriverConfig struct {
	// Backend is one of "sysfs", "periph", "gpio" or "sim".
	Backend string
	// Pins are BCM GPIO numbers for channels A..D (periph and gpio backends).
	Pins [NumChannels]int
	// SysfsChannels are "pwmchipN/M" specs for channels A..D (sysfs backend).
	SysfsChannels [NumChannels]string
	// FrequencyHz is the PWM carrier frequency.
	FrequencyHz int
}

// Swappable for tests.
var (
	openSysfsFn  = openSysfs
	openPeriphFn = openPeriph
	openGPIOFn   = openGPIOChannels
)

// Open returns a driver for cfg.Backend.
func Open(cfg DriverConfig) (Driver, error) {
	if cfg.FrequencyHz <= 0 {
		cfg.FrequencyHz = 1000
	}
	var (
		chans [NumChannels]dutyChannel
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "sim", "":
		return NewRecorder(), nil
	case "sysfs":
		chans, err = openSysfsFn(cfg.SysfsChannels, cfg.FrequencyHz)
	case "periph":
		chans, err = openPeriphFn(cfg.Pins, cfg.FrequencyHz)
	case "gpio":
		chans, err = openGPIOFn(cfg.Pins)
	default:
		return nil, fmt.Errorf("haptic: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return &channelDriver{chans: chans}, nil
}

type channelDriver struct {
	mu    sync.Mutex
	chans [NumChannels]dutyChannel
}

func (d *channelDriver) Apply(v Vector) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for i, ch := range d.chans {
		if ch == nil {
			continue
		}
		duty := v[i]
		if duty > MaxIntensity {
			duty = MaxIntensity
		}
		if err := ch.SetDuty(duty); err != nil {
			errs = append(errs, fmt.Errorf("haptic: channel %s: %w", Channel(i), err))
		}
	}
	return errors.Join(errs...)
}

func (d *channelDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for i, ch := range d.chans {
		if ch == nil {
			continue
		}
		_ = ch.SetDuty(0)
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
		d.chans[i] = nil
	}
	return errors.Join(errs...)
}

func closeAll(chans []dutyChannel) {
	for _, ch := range chans {
		if ch != nil {
			_ = ch.Close()
		}
	}
}

// Recorder is an in-memory Driver for simulation and tests.
//
// Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	last    Vector
	applies int
	closed  bool
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Apply(v Vector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("haptic: driver closed")
	}
	r.last = v
	r.applies++
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = Vector{}
	r.closed = true
	return nil
}

// Last returns the most recently applied vector.
func (r *Recorder) Last() Vector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Applies returns how many vectors were applied.
func (r *Recorder) Applies() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applies
}
