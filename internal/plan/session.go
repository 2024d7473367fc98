// Package plan implements the assignment-and-routing engine: a greedy
// matching of pending deliveries to eligible riders plus a geometric route
// estimate per pairing. A run is a synchronous, single-threaded pass over
// an in-memory snapshot; persistence of the resulting mutations is the
// caller's responsibility.
package plan

import (
	"fmt"

	"riderdispatch/internal/model"
)

// Plan validates the configuration and the full snapshot, then runs one
// matching pass. On a validation or configuration error no delivery or
// rider state is touched and no partial result is returned. Deliveries
// already assigned pass through unchanged. Successful pairings mutate the
// elements of deliveries in place.
func Plan(deliveries []model.Delivery, riders []model.Rider, cfg Config) (model.PlanningResult, error) {
	if err := cfg.Validate(); err != nil {
		return model.PlanningResult{}, err
	}
	for i := range deliveries {
		if err := ValidateDelivery(deliveries[i]); err != nil {
			return model.PlanningResult{}, fmt.Errorf("plan: %w", err)
		}
	}
	for i := range riders {
		if err := ValidateRider(riders[i]); err != nil {
			return model.PlanningResult{}, fmt.Errorf("plan: %w", err)
		}
	}
	return NewSolver(cfg).Run(deliveries, riders), nil
}
