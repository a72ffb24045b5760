package location

import "math"

const earthRadiusM = 6371000.0

// Waypoint is a named circular area.
type Waypoint struct {
	Name    string  `yaml:"name" json:"name"`
	Lat     float64 `yaml:"lat" json:"lat"`
	Lon     float64 `yaml:"lon" json:"lon"`
	RadiusM float64 `yaml:"radius_m" json:"radius_m"`
}

// DistanceM is the haversine great-circle distance in meters.
func DistanceM(a, b Coordinates) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Geofence reports arrival at waypoints. The first waypoint, in
// configuration order, whose radius contains the fix wins.
type Geofence struct {
	waypoints []Waypoint
	current   string
}

func NewGeofence(waypoints []Waypoint) *Geofence {
	return &Geofence{waypoints: append([]Waypoint(nil), waypoints...)}
}

// Match returns the waypoint containing c, if any.
func (g *Geofence) Match(c Coordinates) (Waypoint, bool) {
	for _, wp := range g.waypoints {
		if DistanceM(c, Coordinates{Lat: wp.Lat, Lon: wp.Lon}) <= wp.RadiusM {
			return wp, true
		}
	}
	return Waypoint{}, false
}

// Update records c and returns the waypoint name when c enters a place
// different from the previous fix. Leaving every waypoint clears the latch.
func (g *Geofence) Update(c Coordinates) (string, bool) {
	wp, ok := g.Match(c)
	if !ok {
		g.current = ""
		return "", false
	}
	if wp.Name == g.current {
		return "", false
	}
	g.current = wp.Name
	return wp.Name, true
}

// Current is the waypoint the last fix was inside, or "".
func (g *Geofence) Current() string { return g.current }

// Averager is the mean of the last n fixes.
type Averager struct {
	n    int
	ring []Coordinates
	next int
}

// NewAverager returns an averager over n fixes; n <= 1 passes fixes through.
func NewAverager(n int) *Averager {
	if n < 1 {
		n = 1
	}
	return &Averager{n: n, ring: make([]Coordinates, 0, n)}
}

func (a *Averager) Add(c Coordinates) Coordinates {
	if len(a.ring) < a.n {
		a.ring = append(a.ring, c)
	} else {
		a.ring[a.next] = c
	}
	a.next = (a.next + 1) % a.n

	var sum Coordinates
	for _, x := range a.ring {
		sum.Lat += x.Lat
		sum.Lon += x.Lon
	}
	k := float64(len(a.ring))
	return Coordinates{Lat: sum.Lat / k, Lon: sum.Lon / k}
}

func (a *Averager) Reset() {
	a.ring = a.ring[:0]
	a.next = 0
}
