package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Location is either a coordinate pair in game-engine units or a
// free-text description. Coordinates are planar, not lat/long; the
// distance metric is deliberately a simple Euclidean approximation and
// is kept pluggable at the dispatch layer.
type Location struct {
	X, Y    float64
	HasXY   bool
	Text    string
}

// NewCoordinate builds a coordinate location.
func NewCoordinate(x, y float64) *Location {
	return &Location{X: x, Y: y, HasXY: true}
}

// NewAddress builds a free-text location.
func NewAddress(text string) *Location {
	return &Location{Text: text}
}

// ParseLocation accepts either "x,y" coordinates or free text.
func ParseLocation(s string) (*Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty location")
	}
	if parts := strings.Split(s, ","); len(parts) == 2 {
		x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errX == nil && errY == nil {
			return NewCoordinate(x, y), nil
		}
	}
	return NewAddress(s), nil
}

// String renders the location for logs and API responses.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.HasXY {
		return fmt.Sprintf("%g,%g", l.X, l.Y)
	}
	return l.Text
}

// DistanceTo returns the planar distance to other. Locations without
// coordinates are treated as unreachable (+Inf) so callers can exclude
// them from proximity searches instead of sorting them arbitrarily.
func (l *Location) DistanceTo(other *Location) float64 {
	if l == nil || other == nil || !l.HasXY || !other.HasXY {
		return math.Inf(1)
	}
	dx := l.X - other.X
	dy := l.Y - other.Y
	return math.Hypot(dx, dy)
}
