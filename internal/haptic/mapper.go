// Package haptic turns filtered distances into vibration intensities for
// four body-worn actuators, one per 90° quadrant of the scan.
package haptic

import (
	"fmt"
	"math"
	"strings"
)

// MaxIntensity is full scale for one actuator channel.
const MaxIntensity = 1000

// Channel identifies one actuator.
type Channel int

const (
	ChannelA Channel = iota // [0°, 90°)
	ChannelB                // [90°, 180°)
	ChannelC                // [180°, 270°)
	ChannelD                // [270°, 360°)

	NumChannels = 4
)

func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	case ChannelC:
		return "C"
	case ChannelD:
		return "D"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// Vector holds one intensity per channel, each in [0, MaxIntensity].
type Vector [NumChannels]uint16

// Active returns the single non-zero channel, if any.
func (v Vector) Active() (Channel, bool) {
	for i, x := range v {
		if x != 0 {
			return Channel(i), true
		}
	}
	return 0, false
}

// SmoothingMode selects what the exponential filter remembers.
type SmoothingMode string

const (
	// SmoothShared keeps one memory for all channels, so the first reading in
	// a new quadrant is damped toward the last value of the previous one.
	SmoothShared SmoothingMode = "shared"
	// SmoothPerQuadrant keeps one memory per channel.
	SmoothPerQuadrant SmoothingMode = "per_quadrant"
)

func ParseSmoothingMode(s string) (SmoothingMode, error) {
	switch SmoothingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SmoothShared:
		return SmoothShared, nil
	case SmoothPerQuadrant:
		return SmoothPerQuadrant, nil
	default:
		return "", fmt.Errorf("haptic: unknown smoothing mode %q", s)
	}
}

// RawIntensity maps a distance to [0, MaxIntensity], nearer being stronger.
// Distances at or beyond maxDistance give 0.
func RawIntensity(distanceCm, maxDistanceCm float64) uint16 {
	if maxDistanceCm <= 0 || math.IsNaN(distanceCm) {
		return 0
	}
	raw := MaxIntensity * (maxDistanceCm - distanceCm) / maxDistanceCm
	if raw < 0 {
		raw = 0
	}
	if raw > MaxIntensity {
		raw = MaxIntensity
	}
	return uint16(raw)
}

// QuadrantOf returns the channel covering angleDeg. Angles outside [0, 360)
// are wrapped first.
func QuadrantOf(angleDeg float64) Channel {
	a := math.Mod(angleDeg, 360)
	if a < 0 {
		a += 360
	}
	switch {
	case a < 90:
		return ChannelA
	case a < 180:
		return ChannelB
	case a < 270:
		return ChannelC
	default:
		return ChannelD
	}
}

// Smooth applies one step of the first-order filter
// floor((last*(k-1) + raw) / k).
func Smooth(last, raw uint16, k int) uint16 {
	if k <= 1 {
		return raw
	}
	kk := uint32(k)
	return uint16((uint32(last)*(kk-1) + uint32(raw)) / kk)
}

// Mapper converts (distance, angle) pairs into actuator vectors.
//
// Not safe for concurrent use.
type Mapper struct {
	maxDistance float64
	k           int
	mode        SmoothingMode

	last [NumChannels]uint16
}

func NewMapper(maxDistanceCm float64, smoothingFactor int, mode SmoothingMode) (*Mapper, error) {
	if maxDistanceCm <= 0 {
		return nil, fmt.Errorf("haptic: max distance must be > 0, got %v", maxDistanceCm)
	}
	if smoothingFactor < 1 {
		return nil, fmt.Errorf("haptic: smoothing factor must be >= 1, got %d", smoothingFactor)
	}
	if mode == "" {
		mode = SmoothShared
	}
	return &Mapper{maxDistance: maxDistanceCm, k: smoothingFactor, mode: mode}, nil
}

// Update folds one filtered distance into the smoothing state and returns a
// vector where only the quadrant under angleDeg carries the result.
func (m *Mapper) Update(distanceCm, angleDeg float64) Vector {
	ch := QuadrantOf(angleDeg)
	slot := 0
	if m.mode == SmoothPerQuadrant {
		slot = int(ch)
	}
	raw := RawIntensity(distanceCm, m.maxDistance)
	smoothed := Smooth(m.last[slot], raw, m.k)
	m.last[slot] = smoothed

	var v Vector
	v[ch] = smoothed
	return v
}

// Last returns the smoothed value remembered for ch.
func (m *Mapper) Last(ch Channel) uint16 {
	if m.mode == SmoothPerQuadrant {
		return m.last[ch]
	}
	return m.last[0]
}
