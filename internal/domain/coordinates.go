package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Immutable geographic coordinates (latitude, longitude).
// Coord is comparable and is used directly as a map key.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c Coord) CoordsToList() []float64 { return []float64{c.Lon, c.Lat} }

// Point returns the coordinate as an orb point (lon, lat order).
func (c Coord) Point() orb.Point { return orb.Point{c.Lon, c.Lat} }

// DistanceTo returns the great-circle distance in meters.
func (c Coord) DistanceTo(o Coord) float64 {
	return geo.Distance(c.Point(), o.Point())
}

// String formats the coordinate as "lat,lon", the form planners expect in query strings.
func (c Coord) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// ParseCoord parses "lat,lon".
func ParseCoord(s string) (Coord, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coord{}, fmt.Errorf("parse coord %q: expected lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coord{}, fmt.Errorf("parse coord %q: lat: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coord{}, fmt.Errorf("parse coord %q: lon: %w", s, err)
	}
	return Coord{Lat: lat, Lon: lon}, nil
}
