// Package geo provides great-circle primitives for the planner.
package geo

import (
	"math"

	"riderdispatch/internal/model"
)

// Mean Earth radius in kilometers.
const earthRadiusKm = 6371.0

// Distance returns the haversine great-circle distance between a and b in
// kilometers. It is symmetric and zero iff a == b.
func Distance(a, b model.GeoPoint) float64 {
	if a == b {
		return 0
	}
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b model.GeoPoint) float64 {
	lat1 := rad(a.Lat)
	lat2 := rad(b.Lat)
	dLng := rad(b.Lng - a.Lng)
	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Midpoint returns the arithmetic mean of the two coordinates. This is a
// straight-line approximation for display waypoints, not a geodesic
// midpoint, and is unsuitable for pairs spanning the antimeridian.
func Midpoint(a, b model.GeoPoint) model.GeoPoint {
	return model.GeoPoint{Lat: (a.Lat + b.Lat) / 2, Lng: (a.Lng + b.Lng) / 2}
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
