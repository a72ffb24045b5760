// Package location reads NMEA from a GPS receiver and reports decimal
// positions over a serial link (Bluetooth SPP), optionally MQTT.
package location

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

var (
	// ErrNoFix means the receiver reported a void (status != 'A') fix.
	ErrNoFix = errors.New("location: no fix")
	// ErrMalformed means the sentence could not be decoded.
	ErrMalformed = errors.New("location: malformed sentence")
	// ErrLineTooLong is reported by Framer for discarded lines.
	ErrLineTooLong = errors.New("location: line too long")
)

// Coordinates are decimal degrees, south and west negative.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("Lat: %.6f, Lon: %.6f", c.Lat, c.Lon)
}

// IsPositionSentence reports whether line is a GPS or multi-constellation RMC.
func IsPositionSentence(line string) bool {
	return strings.HasPrefix(line, "$GPRMC") || strings.HasPrefix(line, "$GNRMC")
}

// ToDecimal converts an NMEA ddmm.mmmm (or dddmm.mmmm) value.
func ToDecimal(value float64, hemisphere byte) float64 {
	deg := math.Floor(value / 100)
	dec := deg + (value-deg*100)/60
	if hemisphere == 'S' || hemisphere == 'W' {
		dec = -dec
	}
	return dec
}

// ParseRMC decodes an RMC sentence without checksum verification. ok is
// false for void fixes and for anything that does not decode.
func ParseRMC(line string) (Coordinates, bool) {
	c, err := DecodeRMC(line)
	return c, err == nil
}

// DecodeRMC is ParseRMC with the failure reason: ErrNoFix or ErrMalformed.
//
// Fields are positional: empty fields keep their slot.
func DecodeRMC(line string) (Coordinates, error) {
	line = strings.TrimSpace(line)
	if star := strings.LastIndexByte(line, '*'); star >= 0 {
		line = line[:star]
	}
	parts := strings.Split(line, ",")
	if len(parts) < 7 {
		return Coordinates{}, fmt.Errorf("%w: %d fields", ErrMalformed, len(parts))
	}
	if parts[2] != "A" {
		return Coordinates{}, ErrNoFix
	}
	lat, err := decodeAxis(parts[3], parts[4], "NS")
	if err != nil {
		return Coordinates{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := decodeAxis(parts[5], parts[6], "EW")
	if err != nil {
		return Coordinates{}, fmt.Errorf("longitude: %w", err)
	}
	return Coordinates{Lat: lat, Lon: lon}, nil
}

func decodeAxis(value, hemi, allowed string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("%w: empty coordinate", ErrMalformed)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformed, value)
	}
	if len(hemi) != 1 || !strings.Contains(allowed, hemi) {
		return 0, fmt.Errorf("%w: hemisphere %q", ErrMalformed, hemi)
	}
	return ToDecimal(v, hemi[0]), nil
}

// DecodeRMCStrict decodes through go-nmea, which also rejects bad checksums.
func DecodeRMCStrict(line string) (Coordinates, error) {
	s, err := nmea.Parse(strings.TrimSpace(line))
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s.DataType() != nmea.TypeRMC {
		return Coordinates{}, fmt.Errorf("%w: type %s", ErrMalformed, s.DataType())
	}
	m, ok := s.(nmea.RMC)
	if !ok {
		return Coordinates{}, fmt.Errorf("%w: unexpected %T", ErrMalformed, s)
	}
	if m.Validity != nmea.ValidRMC {
		return Coordinates{}, ErrNoFix
	}
	return Coordinates{Lat: m.Latitude, Lon: m.Longitude}, nil
}
