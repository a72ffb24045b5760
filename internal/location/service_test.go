package location

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type pipePort struct {
	r *io.PipeReader
}

func (p *pipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *pipePort) Close() error                { return p.r.Close() }

type linkPort struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *linkPort) Read([]byte) (int, error) { return 0, io.EOF }
func (l *linkPort) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(b)
}
func (l *linkPort) Close() error { return nil }
func (l *linkPort) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestService_ReportsOverLink(t *testing.T) {
	pr, pw := io.Pipe()
	link := &linkPort{}
	opened := map[string]int{}
	old := openSerialFn
	openSerialFn = func(path string, baud int) (io.ReadWriteCloser, error) {
		opened[path] = baud
		if path == "/dev/gps" {
			return &pipePort{r: pr}, nil
		}
		return link, nil
	}
	t.Cleanup(func() { openSerialFn = old })

	svc := New(Config{Enable: true, Device: "/dev/gps", LinkDevice: "/dev/bt", LinkBaud: 115200}, discardLogger())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(svc.Close)
	if opened["/dev/gps"] != 9600 || opened["/dev/bt"] != 115200 {
		t.Fatalf("opened=%v", opened)
	}

	go func() {
		_, _ = io.WriteString(pw, "$GPRMC,123519,V,,,,,,,230394,,\r\n"+nmeaLine(rmcPayload)+"\r\n")
	}()
	waitFor(t, func() bool { return svc.Snapshot().Valid })

	snap := svc.Snapshot()
	if !near(snap.LatDeg, 48.1173) || snap.LastFixUTC == "" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.Stats.Fixes != 1 || snap.Stats.NoFix != 1 {
		t.Fatalf("stats=%+v", snap.Stats)
	}
	want := MsgStarted + MsgNoSignal + "Lat: 48.117300, Lon: 11.516667\n"
	waitFor(t, func() bool { return link.String() == want })
}

func TestService_CloseStopsReader(t *testing.T) {
	pr, _ := io.Pipe()
	old := openSerialFn
	openSerialFn = func(path string, baud int) (io.ReadWriteCloser, error) {
		return &pipePort{r: pr}, nil
	}
	t.Cleanup(func() { openSerialFn = old })

	svc := New(Config{Enable: true, Device: "/dev/gps"}, discardLogger())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		svc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not return")
	}
	if msg := svc.Snapshot().LastError; msg != "" {
		t.Fatalf("unexpected error after clean close: %q", msg)
	}
}

func TestService_OpenError(t *testing.T) {
	old := openSerialFn
	openSerialFn = func(path string, baud int) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	}
	t.Cleanup(func() { openSerialFn = old })

	svc := New(Config{Enable: true, Device: "/dev/none"}, discardLogger())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(svc.Snapshot().LastError, "no such device") {
		t.Fatalf("snapshot=%+v", svc.Snapshot())
	}
}

func TestService_DisabledIsNoop(t *testing.T) {
	svc := New(Config{}, discardLogger())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Close()
	if svc.Snapshot().Enabled {
		t.Fatalf("disabled service reports enabled")
	}
}
