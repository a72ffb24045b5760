package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Report lines sent over the link.
const (
	MsgStarted  = "GPS started\n"
	MsgNoSignal = "No GPS signal\n"
)

// Event is one decoded outcome of a position sentence.
type Event struct {
	Time    time.Time   `json:"time"`
	Valid   bool        `json:"valid"`
	Fix     Coordinates `json:"fix"`
	Raw     Coordinates `json:"raw"`
	Near    string      `json:"near,omitempty"`
	Entered bool        `json:"entered,omitempty"`
}

// Sink receives report events.
type Sink interface {
	Publish(Event) error
}

// ReporterConfig controls sentence decoding and post-processing.
type ReporterConfig struct {
	StrictChecksum bool
	AverageSamples int
	Waypoints      []Waypoint
	MaxLine        int
}

// Stats are running counters of a Reporter.
type Stats struct {
	Lines      uint64 `json:"lines"`
	Fixes      uint64 `json:"fixes"`
	NoFix      uint64 `json:"no_fix"`
	Malformed  uint64 `json:"malformed"`
	Overflows  uint64 `json:"overflows"`
	SinkErrors uint64 `json:"sink_errors"`
}

// Reporter turns NMEA lines into link messages and sink events.
type Reporter struct {
	out    io.Writer
	sinks  []Sink
	decode func(string) (Coordinates, error)
	avg    *Averager
	fence  *Geofence
	maxLn  int
	now    func() time.Time
	log    *slog.Logger

	mu    sync.Mutex
	stats Stats
	last  Event
}

// NewReporter writes link messages to out (may be nil) and forwards events
// to sinks.
func NewReporter(cfg ReporterConfig, out io.Writer, logger *slog.Logger, sinks ...Sink) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	decode := DecodeRMC
	if cfg.StrictChecksum {
		decode = DecodeRMCStrict
	}
	return &Reporter{
		out:    out,
		sinks:  sinks,
		decode: decode,
		avg:    NewAverager(cfg.AverageSamples),
		fence:  NewGeofence(cfg.Waypoints),
		maxLn:  cfg.MaxLine,
		now:    time.Now,
		log:    logger,
	}
}

// Start sends the startup banner.
func (r *Reporter) Start() error {
	return r.send(MsgStarted)
}

// HandleLine processes one framed line. Lines that are not position
// sentences are ignored. The returned error is a link write failure only.
func (r *Reporter) HandleLine(line string) error {
	r.mu.Lock()
	r.stats.Lines++
	r.mu.Unlock()
	if !IsPositionSentence(line) {
		return nil
	}

	ev := Event{Time: r.now().UTC()}
	raw, err := r.decode(line)
	if err != nil {
		r.mu.Lock()
		if errors.Is(err, ErrNoFix) {
			r.stats.NoFix++
		} else {
			r.stats.Malformed++
		}
		r.mu.Unlock()
		r.log.Debug("gps no fix", "error", err)
		r.avg.Reset()
		r.record(ev)
		return r.send(MsgNoSignal)
	}

	ev.Valid = true
	ev.Raw = raw
	ev.Fix = r.avg.Add(raw)
	name, entered := r.fence.Update(ev.Fix)
	ev.Near = r.fence.Current()
	ev.Entered = entered

	r.mu.Lock()
	r.stats.Fixes++
	r.mu.Unlock()
	r.record(ev)

	r.log.Debug("gps fix", "lat", ev.Fix.Lat, "lon", ev.Fix.Lon)
	if err := r.send(ev.Fix.String() + "\n"); err != nil {
		return err
	}
	if entered {
		r.log.Info("waypoint reached", "name", name)
		return r.send(fmt.Sprintf("Near: %s\n", name))
	}
	return nil
}

func (r *Reporter) record(ev Event) {
	r.mu.Lock()
	r.last = ev
	r.mu.Unlock()
	for _, s := range r.sinks {
		if err := s.Publish(ev); err != nil {
			r.mu.Lock()
			r.stats.SinkErrors++
			r.mu.Unlock()
			r.log.Warn("location sink publish failed", "error", err)
		}
	}
}

func (r *Reporter) send(msg string) error {
	if r.out == nil {
		return nil
	}
	if _, err := io.WriteString(r.out, msg); err != nil {
		return fmt.Errorf("location: write link: %w", err)
	}
	return nil
}

// Run frames bytes from src until EOF, a read error, or ctx is done. Link
// write failures are logged and do not stop the loop.
func (r *Reporter) Run(ctx context.Context, src io.Reader) error {
	f := NewFramer(r.maxLn)
	done := make(chan struct{})
	defer close(done)
	if c, ok := src.(io.Closer); ok {
		go func() {
			select {
			case <-ctx.Done():
				_ = c.Close()
			case <-done:
			}
		}()
	}
	err := f.ReadLines(src, func(line string, ferr error) {
		if ferr != nil {
			r.mu.Lock()
			r.stats.Overflows++
			r.mu.Unlock()
			r.log.Debug("gps line dropped", "error", ferr)
			return
		}
		if err := r.HandleLine(line); err != nil {
			r.log.Warn("location report failed", "error", err)
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Stats returns a copy of the counters.
func (r *Reporter) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Last returns the most recent event.
func (r *Reporter) Last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
