// Package sonar reads distances from a trigger/echo ultrasonic ranger
// (HC-SR04 class) and filters them into one outlier-resistant sample.
package sonar

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hapticscan/internal/clock"
	"hapticscan/internal/gpio"
)

// ErrEchoTimeout is reported when the echo line never rises.
var ErrEchoTimeout = errors.New("sonar: echo timeout")

// Config holds the ranging timing and conversion constants.
type Config struct {
	// TriggerPulse is the high time of the trigger pulse.
	TriggerPulse time.Duration
	// EchoTimeout bounds each of the two edge waits.
	EchoTimeout time.Duration
	// PollInterval is the echo sampling period during an edge wait.
	PollInterval time.Duration
	// MaxDistanceCm is the clamp ceiling and the "no obstacle" value.
	MaxDistanceCm float64
	// MicrosPerCm converts half the echo time into centimeters (~29.1 at 20°C).
	MicrosPerCm float64
}

func (c Config) withDefaults() Config {
	if c.TriggerPulse <= 0 {
		c.TriggerPulse = 10 * time.Microsecond
	}
	if c.EchoTimeout <= 0 {
		c.EchoTimeout = 25 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Microsecond
	}
	if c.MaxDistanceCm <= 0 {
		c.MaxDistanceCm = 250
	}
	if c.MicrosPerCm <= 0 {
		c.MicrosPerCm = 29.1
	}
	return c
}

// WaitFor polls cond until it reports true or timeout elapses on c.
// It reports whether cond became true. cond is always evaluated at least
// once, and once more after the deadline passes.
func WaitFor(c clock.Clock, timeout, poll time.Duration, cond func() bool) bool {
	start := c.Now()
	for {
		if cond() {
			return true
		}
		if c.Now().Sub(start) >= timeout {
			return cond()
		}
		c.Sleep(poll)
	}
}

// Sensor is one trigger/echo ranger.
//
// Not safe for concurrent use.
type Sensor struct {
	trigger gpio.Output
	echo    gpio.Input
	clk     clock.Clock
	cfg     Config
	log     *slog.Logger
}

func NewSensor(trigger gpio.Output, echo gpio.Input, clk clock.Clock, cfg Config, logger *slog.Logger) *Sensor {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sensor{trigger: trigger, echo: echo, clk: clk, cfg: cfg.withDefaults(), log: logger}
}

// MaxDistance returns the configured clamp ceiling.
func (s *Sensor) MaxDistance() float64 { return s.cfg.MaxDistanceCm }

// Ping fires one measurement and returns the distance in centimeters.
//
// It never fails: a missing echo or an unreadable line is reported as the
// maximum distance, meaning "no obstacle".
func (s *Sensor) Ping() float64 {
	d, err := s.Measure()
	if err != nil {
		s.log.Debug("sonar ping failed", "err", err, "distance_cm", d)
	}
	return d
}

// Measure is Ping with the failure reason exposed. The returned distance is
// always usable, even when err is non-nil.
func (s *Sensor) Measure() (float64, error) {
	maxCm := s.cfg.MaxDistanceCm

	if err := s.trigger.Set(true); err != nil {
		return maxCm, fmt.Errorf("sonar: trigger high: %w", err)
	}
	s.clk.Sleep(s.cfg.TriggerPulse)
	if err := s.trigger.Set(false); err != nil {
		return maxCm, fmt.Errorf("sonar: trigger low: %w", err)
	}

	var readErr error
	level := func() bool {
		v, err := s.echo.Get()
		if err != nil {
			readErr = err
			return false
		}
		return v
	}

	rose := WaitFor(s.clk, s.cfg.EchoTimeout, s.cfg.PollInterval, level)
	if readErr != nil {
		return maxCm, fmt.Errorf("sonar: read echo: %w", readErr)
	}
	if !rose {
		return maxCm, ErrEchoTimeout
	}

	echoStart := s.clk.Now()
	WaitFor(s.clk, s.cfg.EchoTimeout, s.cfg.PollInterval, func() bool { return !level() })
	echoEnd := s.clk.Now()
	if readErr != nil {
		return maxCm, fmt.Errorf("sonar: read echo: %w", readErr)
	}

	return DistanceFromEcho(echoEnd.Sub(echoStart), s.cfg.MicrosPerCm, maxCm), nil
}

// DistanceFromEcho converts a round-trip echo duration to centimeters,
// clamped to [0, maxCm]. A non-positive duration is treated as no echo.
func DistanceFromEcho(echo time.Duration, microsPerCm, maxCm float64) float64 {
	if echo <= 0 {
		return maxCm
	}
	us := float64(echo) / float64(time.Microsecond)
	d := us / 2 / microsPerCm
	if d > maxCm {
		return maxCm
	}
	if d < 0 {
		return 0
	}
	return d
}
