package sonar

import (
	"errors"
	"math"
	"testing"
	"time"

	"hapticscan/internal/clock"
	"hapticscan/internal/gpio"
)

// echoRig simulates a ranger whose echo rises lead after the trigger falls and
// stays high for the round trip of distanceCm. distanceCm < 0 means no echo.
type echoRig struct {
	clk     *clock.Fake
	trigger *gpio.Recorder
	fallAt  time.Time
	lead    time.Duration
	stuck   bool

	distanceCm float64
}

func newEchoRig(distanceCm float64) *echoRig {
	r := &echoRig{clk: clock.NewFake(time.Time{}), lead: 100 * time.Microsecond, distanceCm: distanceCm}
	r.trigger = &gpio.Recorder{OnSet: func(high bool) {
		if !high {
			r.fallAt = r.clk.Now()
		}
	}}
	return r
}

func (r *echoRig) echo() gpio.Input {
	return gpio.InputFunc(func() (bool, error) {
		if r.fallAt.IsZero() {
			return false, nil
		}
		if r.stuck {
			return true, nil
		}
		if r.distanceCm < 0 {
			return false, nil
		}
		rise := r.fallAt.Add(r.lead)
		width := time.Duration(r.distanceCm * 2 * 29.1 * float64(time.Microsecond))
		now := r.clk.Now()
		return !now.Before(rise) && now.Before(rise.Add(width)), nil
	})
}

func (r *echoRig) sensor() *Sensor {
	return NewSensor(r.trigger, r.echo(), r.clk, Config{MaxDistanceCm: 250}, nil)
}

func TestSensor_MeasuresEchoWidth(t *testing.T) {
	rig := newEchoRig(100)
	d, err := rig.sensor().Measure()
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if math.Abs(d-100) > 0.05 {
		t.Fatalf("distance=%v want ~100", d)
	}
	if got := rig.trigger.Writes(); len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("trigger writes=%v want [true false]", got)
	}
}

func TestSensor_NoEchoFailsSafeToMax(t *testing.T) {
	rig := newEchoRig(-1)
	start := rig.clk.Now()
	d, err := rig.sensor().Measure()
	if !errors.Is(err, ErrEchoTimeout) {
		t.Fatalf("err=%v want ErrEchoTimeout", err)
	}
	if d != 250 {
		t.Fatalf("distance=%v want 250", d)
	}
	if el := rig.clk.Now().Sub(start); el > 26*time.Millisecond {
		t.Fatalf("elapsed=%v want bounded by ~25ms", el)
	}

	// Ping hides the error.
	rig2 := newEchoRig(-1)
	if got := rig2.sensor().Ping(); got != 250 {
		t.Fatalf("Ping=%v want 250", got)
	}
}

func TestSensor_StuckHighEchoIsBoundedAndClamped(t *testing.T) {
	rig := newEchoRig(0)
	rig.stuck = true
	start := rig.clk.Now()
	d, err := rig.sensor().Measure()
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if d != 250 {
		t.Fatalf("distance=%v want clamp 250", d)
	}
	if el := rig.clk.Now().Sub(start); el > 51*time.Millisecond {
		t.Fatalf("elapsed=%v want bounded by ~50ms", el)
	}
}

func TestSensor_EchoReadErrorReturnsMax(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	boom := errors.New("boom")
	echo := gpio.InputFunc(func() (bool, error) { return false, boom })
	s := NewSensor(&gpio.Recorder{}, echo, clk, Config{MaxDistanceCm: 250}, nil)
	d, err := s.Measure()
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if d != 250 {
		t.Fatalf("distance=%v want 250", d)
	}
}

func TestDistanceFromEcho(t *testing.T) {
	cases := []struct {
		name string
		echo time.Duration
		want float64
	}{
		{"Zero", 0, 250},
		{"Negative", -time.Millisecond, 250},
		{"Near", 582 * time.Microsecond, 10},
		{"BeyondMax", 25 * time.Millisecond, 250},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DistanceFromEcho(tc.echo, 29.1, 250)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("got=%v want %v", got, tc.want)
			}
		})
	}
}

func TestWaitFor_TimesOutOnClock(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	start := clk.Now()
	ok := WaitFor(clk, time.Millisecond, 10*time.Microsecond, func() bool { return false })
	if ok {
		t.Fatalf("expected timeout")
	}
	el := clk.Now().Sub(start)
	if el < time.Millisecond || el > time.Millisecond+10*time.Microsecond {
		t.Fatalf("elapsed=%v", el)
	}
}
