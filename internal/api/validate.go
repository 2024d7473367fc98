package api

import (
	"fmt"

	"riderdispatch/internal/model"
)

func validatePlanRequest(req *model.PlanRequest) error {
	if req.DetourFactor != 0 && req.DetourFactor <= 1.0 {
		return fmt.Errorf("detourFactor must be > 1.0")
	}
	if req.AvgSpeedKmh < 0 {
		return fmt.Errorf("avgSpeedKmh must be > 0")
	}
	return nil
}

func validPoint(p model.GeoPoint) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// validateDeliveryIn enforces the planner's registration invariants at the
// API edge so a bad delivery cannot poison a later planning run.
func validateDeliveryIn(d *model.DeliveryIn) error {
	if !validPoint(d.Origin) || !validPoint(d.Destination) {
		return fmt.Errorf("coordinate out of range")
	}
	if d.WeightKg <= 0 {
		return fmt.Errorf("weightKg must be > 0")
	}
	if d.VolumeM3 <= 0 {
		return fmt.Errorf("volumeM3 must be > 0")
	}
	if !d.WindowStart.Before(d.WindowEnd) {
		return fmt.Errorf("windowStart must precede windowEnd")
	}
	return nil
}

func validateRiderIn(rd *model.RiderIn) error {
	if rd.Name == "" {
		return fmt.Errorf("name is required")
	}
	if rd.CapacityKg <= 0 || rd.CapacityM3 <= 0 {
		return fmt.Errorf("capacity must be > 0")
	}
	if rd.Location != nil && !validPoint(*rd.Location) {
		return fmt.Errorf("location out of range")
	}
	if rd.ShiftStart != nil && rd.ShiftEnd != nil && !rd.ShiftStart.Before(*rd.ShiftEnd) {
		return fmt.Errorf("shiftStart must precede shiftEnd")
	}
	return nil
}
