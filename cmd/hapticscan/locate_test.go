package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"hapticscan/internal/config"
	"hapticscan/internal/location"
)

func TestLocationConfig_ConvertsWaypoints(t *testing.T) {
	cfg := config.Defaults()
	cfg.Location.StrictChecksum = true
	cfg.Location.Waypoints = []config.WaypointConfig{{Name: "Bakery", LatDeg: 1, LonDeg: 2, RadiusM: 30}}

	lc := locationConfig(cfg)
	if lc.Device != "/dev/serial0" || lc.Baud != 9600 || !lc.Reporter.StrictChecksum {
		t.Fatalf("config=%+v", lc)
	}
	want := location.Waypoint{Name: "Bakery", Lat: 1, Lon: 2, RadiusM: 30}
	if len(lc.Reporter.Waypoints) != 1 || lc.Reporter.Waypoints[0] != want {
		t.Fatalf("waypoints=%+v", lc.Reporter.Waypoints)
	}
}

type captureSink struct{ events []location.Event }

func (c *captureSink) Publish(ev location.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestLocationSinks_MQTT(t *testing.T) {
	var (
		got    location.MQTTConfig
		closed bool
	)
	sink := &captureSink{}
	orig := dialMQTTFn
	dialMQTTFn = func(cfg location.MQTTConfig) (location.Sink, func(), error) {
		got = cfg
		return sink, func() { closed = true }, nil
	}
	t.Cleanup(func() { dialMQTTFn = orig })

	cfg := config.Defaults()
	sinks, closeFn, err := locationSinks(cfg, discardLogger())
	if err != nil || len(sinks) != 0 {
		t.Fatalf("disabled: sinks=%v err=%v", sinks, err)
	}
	closeFn()

	cfg.Location.MQTT.Enable = true
	cfg.Location.MQTT.Broker = "tcp://broker:1883"
	cfg.Location.MQTT.QoS = 1
	sinks, closeFn, err = locationSinks(cfg, discardLogger())
	if err != nil {
		t.Fatalf("locationSinks() error: %v", err)
	}
	if len(sinks) != 1 || sinks[0] != location.Sink(sink) {
		t.Fatalf("sinks=%v", sinks)
	}
	if got.Broker != "tcp://broker:1883" || got.QoS != 1 || got.Topic != "hapticscan/gps" {
		t.Fatalf("mqtt config=%+v", got)
	}
	closeFn()
	if !closed {
		t.Fatalf("close func not called")
	}
}

func TestLocationSinks_DialError(t *testing.T) {
	orig := dialMQTTFn
	dialMQTTFn = func(location.MQTTConfig) (location.Sink, func(), error) {
		return nil, nil, errors.New("refused")
	}
	t.Cleanup(func() { dialMQTTFn = orig })

	cfg := config.Defaults()
	cfg.Location.MQTT.Enable = true
	cfg.Location.MQTT.Broker = "tcp://broker:1883"
	if _, _, err := locationSinks(cfg, discardLogger()); err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("err=%v", err)
	}
}

func TestRunLocateSim_ReportsWalkerFixes(t *testing.T) {
	cfg := config.Defaults()
	cfg.Sim.Walker.Interval = 5 * time.Millisecond
	cfg.Sim.Walker.NoFixEvery = 3

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	if err := runLocateSim(ctx, cfg, &out, discardLogger()); err != nil {
		t.Fatalf("runLocateSim() error: %v", err)
	}
	got := out.String()
	if !strings.HasPrefix(got, location.MsgStarted) {
		t.Fatalf("out=%q", got)
	}
	if !strings.Contains(got, "Lat: 48.11") || !strings.Contains(got, location.MsgNoSignal) {
		t.Fatalf("out=%q", got)
	}
}
