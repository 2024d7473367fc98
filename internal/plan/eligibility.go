package plan

import (
	"github.com/samber/lo"

	"riderdispatch/internal/model"
)

// Rejection reasons, most actionable first. When no rider qualifies, the
// reported reason is the first criterion that eliminated every remaining
// candidate, so the dispatcher sees what to fix rather than "no match".
const (
	ReasonNoRiderAvailable = "no rider available"
	ReasonNoCapacity       = "no rider with sufficient capacity"
	ReasonNoShift          = "no rider on shift for the delivery window"
	ReasonNoLocation       = "no rider with a known location"
)

func onShift(r model.Rider, d model.Delivery) bool {
	if r.ShiftStart != nil && r.ShiftStart.After(d.WindowStart) {
		return false
	}
	if r.ShiftEnd != nil && r.ShiftEnd.Before(d.WindowEnd) {
		return false
	}
	return true
}

// EligibleRiders returns the indices into riders of candidates able to
// serve d, skipping indices present in excluded. When the result is empty
// the returned reason names the filter that emptied the pool, evaluated in
// priority order: availability > capacity > shift window > location.
func EligibleRiders(d model.Delivery, riders []model.Rider, excluded map[int]bool) ([]int, string) {
	pool := []int{}
	for i := range riders {
		if !excluded[i] {
			pool = append(pool, i)
		}
	}

	stages := []struct {
		keep   func(model.Rider) bool
		reason string
	}{
		{func(r model.Rider) bool { return r.Available }, ReasonNoRiderAvailable},
		{func(r model.Rider) bool { return r.CapacityKg >= d.WeightKg && r.CapacityM3 >= d.VolumeM3 }, ReasonNoCapacity},
		{func(r model.Rider) bool { return onShift(r, d) }, ReasonNoShift},
		{func(r model.Rider) bool { return r.Location != nil }, ReasonNoLocation},
	}
	for _, st := range stages {
		pool = lo.Filter(pool, func(i int, _ int) bool { return st.keep(riders[i]) })
		if len(pool) == 0 {
			return nil, st.reason
		}
	}
	return pool, ""
}
