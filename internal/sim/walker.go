package sim

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Walker is a pedestrian on a deterministic figure-eight around a center
// point, reported as NMEA RMC sentences.
type Walker struct {
	CenterLatDeg float64
	CenterLonDeg float64
	RadiusM      float64
	Period       time.Duration

	// NoFixEvery makes every n-th sentence a void fix (0 = never).
	NoFixEvery int
}

const metersPerDegLat = 111195.0

// Position returns the walker position and course over ground at now.
func (w Walker) Position(now time.Time) (latDeg, lonDeg, trackDeg float64) {
	period := w.Period
	if period <= 0 {
		period = 10 * time.Minute
	}
	radius := w.RadiusM
	if radius <= 0 {
		radius = 50
	}
	radiusDeg := radius / metersPerDegLat

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	wt := 2 * math.Pi * phase
	x := math.Cos(wt)
	y := 0.5 * math.Sin(2*wt)

	latDeg = w.CenterLatDeg + radiusDeg*y
	lonDeg = w.CenterLonDeg + (radiusDeg*x)/math.Cos(w.CenterLatDeg*math.Pi/180.0)

	vx := -2 * math.Pi * math.Sin(wt)
	vy := 2 * math.Pi * math.Cos(2*wt)
	trackDeg = math.Mod(math.Atan2(vx, vy)*180/math.Pi+360, 360)
	return latDeg, lonDeg, trackDeg
}

// Sentence renders the n-th RMC sentence at now, checksum included.
func (w Walker) Sentence(n int, now time.Time) string {
	now = now.UTC()
	hms := now.Format("150405") + fmt.Sprintf(".%02d", now.Nanosecond()/10_000_000)
	date := now.Format("020106")
	if w.NoFixEvery > 0 && n%w.NoFixEvery == w.NoFixEvery-1 {
		return withChecksum(fmt.Sprintf("GNRMC,%s,V,,,,,,,%s,,,N", hms, date))
	}
	lat, lon, trk := w.Position(now)
	latV, latH := nmeaAngle(lat, 2, "N", "S")
	lonV, lonH := nmeaAngle(lon, 3, "E", "W")
	// Walking pace, ~1.4 m/s.
	const speedKt = 2.7
	return withChecksum(fmt.Sprintf("GNRMC,%s,A,%s,%s,%s,%s,%.1f,%.1f,%s,,,A",
		hms, latV, latH, lonV, lonH, speedKt, trk, date))
}

// nmeaAngle formats decimal degrees as (d)ddmm.mmmmm.
func nmeaAngle(deg float64, degDigits int, pos, neg string) (string, string) {
	hemi := pos
	if deg < 0 {
		hemi = neg
		deg = -deg
	}
	whole := math.Floor(deg)
	minutes := (deg - whole) * 60
	if minutes >= 59.999995 {
		whole++
		minutes = 0
	}
	return fmt.Sprintf("%0*d%08.5f", degDigits, int(whole), minutes), hemi
}

func withChecksum(payload string) string {
	var ck byte
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return "$" + payload + "*" + strings.ToUpper(fmt.Sprintf("%02x", ck))
}
