package plan

import (
	"riderdispatch/internal/geo"
	"riderdispatch/internal/model"
)

// EstimateRoute builds the deterministic route model for a delivery leg:
// haversine distance scaled by the detour factor, duration at the
// configured average speed, and a three-point display polyline. Pure and
// total for valid coordinates.
func EstimateRoute(origin, destination model.GeoPoint, cfg Config) model.RouteEstimate {
	distKm := geo.Distance(origin, destination) * cfg.DetourFactor
	return model.RouteEstimate{
		DistanceKm:  distKm,
		DurationMin: distKm / cfg.AvgSpeedKmh * 60,
		Waypoints:   []model.GeoPoint{origin, geo.Midpoint(origin, destination), destination},
	}
}
