package web

import (
	"sync/atomic"
	"time"

	"hapticscan/internal/location"
	"hapticscan/internal/scan"
)

// Status aggregates what /api/status reports. The scan loop feeds it through
// ObserveScan; everything else is set once at startup.
type Status struct {
	startUnixNano   int64
	measurements    uint64
	lastMeasureNano int64
	mode            atomic.Value // string
	backend         atomic.Value // string
	params          atomic.Value // map[string]any
	scan            atomic.Value // scan.Snapshot
	location        atomic.Value // func() location.Snapshot
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.mode.Store("")
	s.backend.Store("")
	s.params.Store(map[string]any{})
	s.scan.Store(scan.Snapshot{})
	return s
}

// SetStatic records the run mode ("live" or "sim"), the actuator backend and
// the scan parameters.
func (s *Status) SetStatic(mode, backend string, params map[string]any) {
	if mode != "" {
		s.mode.Store(mode)
	}
	if backend != "" {
		s.backend.Store(backend)
	}
	if params != nil {
		s.params.Store(params)
	}
}

// SetLocationSource attaches the location service snapshot.
func (s *Status) SetLocationSource(fn func() location.Snapshot) {
	if fn != nil {
		s.location.Store(fn)
	}
}

// ObserveScan implements scan.Observer.
func (s *Status) ObserveScan(snap scan.Snapshot) {
	s.scan.Store(snap)
	atomic.AddUint64(&s.measurements, 1)
	at := snap.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastMeasureNano, at.UnixNano())
}

type StatusSnapshot struct {
	Service           string             `json:"service"`
	NowUTC            string             `json:"now_utc"`
	UptimeSec         int64              `json:"uptime_sec"`
	Mode              string             `json:"mode"`
	Backend           string             `json:"actuator_backend"`
	Params            map[string]any     `json:"params"`
	MeasurementsTotal uint64             `json:"measurements_total"`
	LastMeasureUTC    string             `json:"last_measure_utc,omitempty"`
	Scan              scan.Snapshot      `json:"scan"`
	Location          *location.Snapshot `json:"location,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	last := atomic.LoadInt64(&s.lastMeasureNano)

	snap := StatusSnapshot{
		Service:           serviceName,
		NowUTC:            nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:         int64(nowUTC.Sub(start).Seconds()),
		Mode:              s.mode.Load().(string),
		Backend:           s.backend.Load().(string),
		Params:            s.params.Load().(map[string]any),
		MeasurementsTotal: atomic.LoadUint64(&s.measurements),
		Scan:              s.scan.Load().(scan.Snapshot),
	}
	if last != 0 {
		snap.LastMeasureUTC = time.Unix(0, last).UTC().Format(time.RFC3339Nano)
	}
	if fn, ok := s.location.Load().(func() location.Snapshot); ok {
		loc := fn()
		snap.Location = &loc
	}
	return snap
}
