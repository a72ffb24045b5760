package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hapticscan/internal/haptic"
	"hapticscan/internal/location"
	"hapticscan/internal/scan"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAPIStatus(t *testing.T) {
	st := NewStatus()
	st.SetStatic("sim", "sim", map[string]any{"measurements_per_revolution": 12})
	st.ObserveScan(scan.Snapshot{AngleDeg: 90, DistanceCm: 50, Quadrant: "B", Intensities: haptic.Vector{0, 800, 0, 0}})
	st.SetLocationSource(func() location.Snapshot {
		return location.Snapshot{Enabled: true, Valid: true, LatDeg: 48.1173}
	})

	ts := httptest.NewServer(Handler(st, nil, nil, discardLogger()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	var snap StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Service != "hapticscan" || snap.Mode != "sim" {
		t.Fatalf("service=%q mode=%q", snap.Service, snap.Mode)
	}
	if snap.MeasurementsTotal != 1 || snap.Scan.Intensities[1] != 800 || snap.Scan.Quadrant != "B" {
		t.Fatalf("scan=%+v total=%d", snap.Scan, snap.MeasurementsTotal)
	}
	if snap.Location == nil || !snap.Location.Valid {
		t.Fatalf("location=%+v", snap.Location)
	}
}

func TestAPIStatus_MethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil, nil, discardLogger()))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/status", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
}

func TestHealthzAndRoot(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil, nil, discardLogger()))
	defer ts.Close()

	for path, want := range map[string]int{
		"/healthz":  http.StatusOK,
		"/":         http.StatusOK,
		"/nope":     http.StatusNotFound,
		"/api/logs": http.StatusNotFound,
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s status=%d want %d", path, resp.StatusCode, want)
		}
	}
}

func TestAPILogs(t *testing.T) {
	logs := NewLogBuffer(3)
	_, _ = logs.Write([]byte("one\ntwo\nthr"))
	_, _ = logs.Write([]byte("ee\nfour\n"))

	ts := httptest.NewServer(Handler(NewStatus(), logs, nil, discardLogger()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/logs")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	defer resp.Body.Close()
	var out LogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(out.Lines, ",") != "two,three,four" || out.Dropped != 1 {
		t.Fatalf("lines=%v dropped=%d", out.Lines, out.Dropped)
	}

	bad, err := http.Get(ts.URL + "/api/logs?tail=0")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("tail=0 status=%d", bad.StatusCode)
	}
}

func TestScanStream(t *testing.T) {
	b := NewBroadcaster()
	b.ObserveScan(scan.Snapshot{Measurement: 1, Quadrant: "A"})

	ts := httptest.NewServer(Handler(NewStatus(), nil, b, discardLogger()))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	read := func() scan.Snapshot {
		t.Helper()
		var env struct {
			Type string        `json:"type"`
			Data scan.Snapshot `json:"data"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read: %v", err)
		}
		if env.Type != "scan" {
			t.Fatalf("type=%q", env.Type)
		}
		return env.Data
	}

	// Last value first, then live samples.
	if got := read(); got.Measurement != 1 {
		t.Fatalf("first=%+v", got)
	}
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.ObserveScan(scan.Snapshot{Measurement: 2, Quadrant: "C"})
	if got := read(); got.Measurement != 2 || got.Quadrant != "C" {
		t.Fatalf("second=%+v", got)
	}
}

func TestBroadcaster_DropsWhenFull(t *testing.T) {
	b := NewBroadcaster()
	id, ch := b.Subscribe(1)
	b.ObserveScan(scan.Snapshot{Measurement: 1})
	b.ObserveScan(scan.Snapshot{Measurement: 2})
	if b.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", b.Dropped())
	}
	if got := <-ch; got.Measurement != 1 {
		t.Fatalf("got=%+v", got)
	}
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers=%d", b.Subscribers())
	}
}
