package location

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls the location service.
//
// Device is the GPS receiver. LinkDevice is the Bluetooth serial adapter the
// report lines are written to; empty disables the link.
type Config struct {
	Enable bool

	Device string
	Baud   int

	LinkDevice string
	LinkBaud   int

	Reporter ReporterConfig
}

// Snapshot is the externally visible service state.
type Snapshot struct {
	Enabled bool `json:"enabled"`
	Valid   bool `json:"valid"`

	Device     string `json:"device,omitempty"`
	LinkDevice string `json:"link_device,omitempty"`

	LatDeg float64 `json:"lat_deg,omitempty"`
	LonDeg float64 `json:"lon_deg,omitempty"`
	Near   string  `json:"near,omitempty"`

	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`

	Stats Stats `json:"stats"`
}

// Swappable for tests.
var openSerialFn = OpenSerial

// snapshotSink keeps the Service snapshot in step with reporter events.
type snapshotSink struct{ s *Service }

func (k snapshotSink) Publish(ev Event) error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	cur, _ := k.s.last.Load().(Snapshot)
	cur.Valid = ev.Valid
	if ev.Valid {
		cur.LatDeg = ev.Fix.Lat
		cur.LonDeg = ev.Fix.Lon
		cur.Near = ev.Near
		cur.LastFixUTC = ev.Time.Format(time.RFC3339)
	}
	k.s.last.Store(cur)
	return nil
}

// Service owns the serial ports and the reporter goroutine.
type Service struct {
	cfg   Config
	log   *slog.Logger
	sinks []Sink

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	reporter atomic.Pointer[Reporter]

	mu      sync.Mutex
	closers []io.Closer
}

func New(cfg Config, logger *slog.Logger, sinks ...Sink) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{cfg: cfg, log: logger, sinks: sinks}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Device: cfg.Device, LinkDevice: cfg.LinkDevice})
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("location service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		return fmt.Errorf("location: gps device is empty")
	}
	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}
	src, err := openSerialFn(device, baud)
	if err != nil {
		s.setErrorLocked(err.Error())
		return err
	}
	s.closers = append(s.closers, src)

	var link io.Writer
	if dev := strings.TrimSpace(s.cfg.LinkDevice); dev != "" {
		lb := s.cfg.LinkBaud
		if lb == 0 {
			lb = 9600
		}
		port, err := openSerialFn(dev, lb)
		if err != nil {
			_ = src.Close()
			s.closers = nil
			s.setErrorLocked(err.Error())
			return err
		}
		s.closers = append(s.closers, port)
		link = port
		s.log.Info("location link opened", "device", dev, "baud", lb)
	}

	sinks := append([]Sink{snapshotSink{s: s}}, s.sinks...)
	rep := NewReporter(s.cfg.Reporter, link, s.log, sinks...)
	s.reporter.Store(rep)

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("gps enabled", "device", device, "baud", baud, "strict", s.cfg.Reporter.StrictChecksum)
		if err := rep.Start(); err != nil {
			s.log.Warn("location banner", "error", err)
		}
		if err := rep.Run(childCtx, src); err != nil {
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
			return
		}
		if childCtx.Err() == nil {
			s.setError("gps read stopped: EOF")
		}
	}()
	return nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closers := s.closers
	s.cancel = nil
	s.closers = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, c := range closers {
		_ = c.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	snap := v.(Snapshot)
	if rep := s.reporter.Load(); rep != nil {
		snap.Stats = rep.Stats()
	}
	return snap
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	cur, _ := s.last.Load().(Snapshot)
	cur.LastError = msg
	s.last.Store(cur)
}
