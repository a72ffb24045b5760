package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hapticscan/internal/haptic"
	"hapticscan/internal/scan"
)

// scanSummary accumulates per-quadrant measurement statistics between
// periodic log lines.
type scanSummary struct {
	mu          sync.Mutex
	counts      [haptic.NumChannels]int
	nearestCm   [haptic.NumChannels]float64
	revolutions uint64
	total       uint64
}

func newScanSummary() *scanSummary {
	s := &scanSummary{}
	s.resetLocked()
	return s
}

func (s *scanSummary) resetLocked() {
	s.counts = [haptic.NumChannels]int{}
	for i := range s.nearestCm {
		s.nearestCm[i] = -1
	}
}

// ObserveScan implements scan.Observer.
func (s *scanSummary) ObserveScan(snap scan.Snapshot) {
	ch := haptic.QuadrantOf(snap.AngleDeg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[ch]++
	if s.nearestCm[ch] < 0 || snap.DistanceCm < s.nearestCm[ch] {
		s.nearestCm[ch] = snap.DistanceCm
	}
	s.revolutions = snap.Revolutions
	s.total++
}

type summaryWindow struct {
	Counts      [haptic.NumChannels]int
	NearestCm   [haptic.NumChannels]float64
	Revolutions uint64
	Total       uint64
}

// take returns the current window and starts a new one.
func (s *scanSummary) take() summaryWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := summaryWindow{Counts: s.counts, NearestCm: s.nearestCm, Revolutions: s.revolutions, Total: s.total}
	s.resetLocked()
	return w
}

func (w summaryWindow) attrs() []any {
	out := []any{"measurements_total", w.Total, "revolutions", w.Revolutions}
	for ch := haptic.Channel(0); ch < haptic.NumChannels; ch++ {
		name := ch.String()
		out = append(out, "count_"+name, w.Counts[ch])
		if w.NearestCm[ch] >= 0 {
			out = append(out, "nearest_cm_"+name, w.NearestCm[ch])
		}
	}
	return out
}

func (s *scanSummary) logEvery(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("scan summary", s.take().attrs()...)
		}
	}
}
