package sim

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"hapticscan/internal/clock"
	"hapticscan/internal/sonar"
)

func TestObstacle_CoversWrapsAroundZero(t *testing.T) {
	o := Obstacle{AngleDeg: 355, WidthDeg: 20, DistanceCm: 50}
	for _, a := range []float64{345, 355, 0, 4.9} {
		if !o.covers(a) {
			t.Fatalf("expected %v covered", a)
		}
	}
	if o.covers(10) || o.covers(180) {
		t.Fatalf("coverage too wide")
	}
}

func TestWorld_TracksStepperLines(t *testing.T) {
	w := NewWorld(WorldConfig{StepsPerRevolution: 8}, clock.NewFake(time.Time{}))
	_ = w.EnableLine().Set(false)
	_ = w.DirLine().Set(true)
	for i := 0; i < 3; i++ {
		_ = w.StepLine().Set(true)
		_ = w.StepLine().Set(false)
	}
	if got := w.AngleDeg(); got != 135 {
		t.Fatalf("angle=%v want 135", got)
	}
	_ = w.DirLine().Set(false)
	for i := 0; i < 5; i++ {
		_ = w.StepLine().Set(true)
		_ = w.StepLine().Set(false)
	}
	// 3 - 5 wraps to position 6.
	if got := w.AngleDeg(); got != 270 {
		t.Fatalf("angle=%v want 270", got)
	}

	// Disabled driver ignores pulses.
	_ = w.EnableLine().Set(true)
	_ = w.StepLine().Set(true)
	_ = w.StepLine().Set(false)
	if w.Steps() != 8 {
		t.Fatalf("steps=%d want 8", w.Steps())
	}
}

func TestWorld_SensorSeesNearestObstacle(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	w := NewWorld(WorldConfig{
		StepsPerRevolution: 360,
		Obstacles: []Obstacle{
			{AngleDeg: 0, WidthDeg: 30, DistanceCm: 120},
			{AngleDeg: 5, WidthDeg: 4, DistanceCm: 40},
		},
	}, clk)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := sonar.NewSensor(w.TriggerLine(), w.EchoLine(), clk, sonar.Config{MaxDistanceCm: 250, PollInterval: 5 * time.Microsecond}, logger)

	d, err := s.Measure()
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if math.Abs(d-120) > 0.5 {
		t.Fatalf("distance at 0°=%v want ~120", d)
	}

	_ = w.EnableLine().Set(false)
	for i := 0; i < 5; i++ {
		_ = w.StepLine().Set(true)
		_ = w.StepLine().Set(false)
	}
	d, err = s.Measure()
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if math.Abs(d-40) > 0.5 {
		t.Fatalf("distance at 5°=%v want ~40", d)
	}
}

func TestWorld_OpenSpaceTimesOut(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	w := NewWorld(WorldConfig{}, clk)
	s := sonar.NewSensor(w.TriggerLine(), w.EchoLine(), clk, sonar.Config{PollInterval: 50 * time.Microsecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if got := s.Ping(); got != 250 {
		t.Fatalf("open space distance=%v want 250", got)
	}
	if w.DistanceAt(90) != -1 {
		t.Fatalf("expected open space")
	}
}

func TestWorld_Spin(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	w := NewWorld(WorldConfig{
		Obstacles:  []Obstacle{{AngleDeg: 0, WidthDeg: 10, DistanceCm: 80}},
		SpinPeriod: 4 * time.Second,
	}, clk)
	if w.DistanceAt(0) != 80 || w.DistanceAt(90) != -1 {
		t.Fatalf("unexpected field at t0")
	}
	clk.Advance(time.Second)
	if w.DistanceAt(90) != 80 || w.DistanceAt(0) != -1 {
		t.Fatalf("field did not rotate a quarter turn")
	}
}
