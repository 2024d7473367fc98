package plan

import (
	"errors"
	"fmt"

	"riderdispatch/internal/model"
)

// ErrValidation marks malformed input. Validation failures abort a run
// before any delivery or rider state is touched.
var ErrValidation = errors.New("invalid input")

func validPoint(p model.GeoPoint) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// ValidateDelivery checks the registration invariants: coordinates in
// range, positive weight and volume, and a non-empty delivery window.
func ValidateDelivery(d model.Delivery) error {
	if !validPoint(d.Origin) || !validPoint(d.Destination) {
		return fmt.Errorf("%w: delivery %s: coordinate out of range", ErrValidation, d.ID)
	}
	if d.WeightKg <= 0 {
		return fmt.Errorf("%w: delivery %s: weightKg must be > 0", ErrValidation, d.ID)
	}
	if d.VolumeM3 <= 0 {
		return fmt.Errorf("%w: delivery %s: volumeM3 must be > 0", ErrValidation, d.ID)
	}
	if !d.WindowStart.Before(d.WindowEnd) {
		return fmt.Errorf("%w: delivery %s: window start must precede end", ErrValidation, d.ID)
	}
	return nil
}

// ValidateRider checks capacity, optional location and optional shift
// window invariants.
func ValidateRider(r model.Rider) error {
	if r.CapacityKg <= 0 {
		return fmt.Errorf("%w: rider %s: capacityKg must be > 0", ErrValidation, r.ID)
	}
	if r.CapacityM3 <= 0 {
		return fmt.Errorf("%w: rider %s: capacityM3 must be > 0", ErrValidation, r.ID)
	}
	if r.Location != nil && !validPoint(*r.Location) {
		return fmt.Errorf("%w: rider %s: location out of range", ErrValidation, r.ID)
	}
	if r.ShiftStart != nil && r.ShiftEnd != nil && !r.ShiftStart.Before(*r.ShiftEnd) {
		return fmt.Errorf("%w: rider %s: shift start must precede end", ErrValidation, r.ID)
	}
	return nil
}
