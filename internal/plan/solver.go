package plan

import (
	"fmt"
	"sort"

	"riderdispatch/internal/geo"
	"riderdispatch/internal/model"
)

// Solver runs the greedy matching pass. Greedy nearest-eligible-rider with
// one pairing per rider per run is chosen over a global optimum: planning
// is interactive and must return deterministic, explainable results in one
// linear pass.
type Solver struct {
	cfg Config
}

func NewSolver(cfg Config) *Solver {
	return &Solver{cfg: cfg}
}

// Run processes deliveries in input order and mutates successful pairings
// in place (status, rider reference, route). Riders are never mutated;
// consumption is tracked in an exclusion set local to the run. Inputs are
// assumed validated.
func (s *Solver) Run(deliveries []model.Delivery, riders []model.Rider) model.PlanningResult {
	consumed := map[int]bool{}
	res := model.PlanningResult{
		Assignments: []model.Assignment{},
		Unassigned:  []model.UnassignedDelivery{},
	}

	for i := range deliveries {
		d := &deliveries[i]
		if d.Status != model.DeliveryPending {
			continue
		}

		candidates, reason := EligibleRiders(*d, riders, consumed)
		if len(candidates) == 0 {
			res.Unassigned = append(res.Unassigned, model.UnassignedDelivery{DeliveryID: d.ID, Reason: reason})
			continue
		}

		// Rank by distance to the pickup point; ties by rider ID so runs
		// over identical inputs are bit-for-bit reproducible.
		sort.SliceStable(candidates, func(a, b int) bool {
			da := geo.Distance(*riders[candidates[a]].Location, d.Origin)
			db := geo.Distance(*riders[candidates[b]].Location, d.Origin)
			if da != db {
				return da < db
			}
			return riders[candidates[a]].ID < riders[candidates[b]].ID
		})

		best := candidates[0]
		consumed[best] = true

		rider := riders[best]
		route := EstimateRoute(d.Origin, d.Destination, s.cfg)
		approachKm := geo.Distance(*rider.Location, d.Origin)

		d.Status = model.DeliveryAssigned
		d.RiderID = rider.ID
		d.Route = &route

		res.Assignments = append(res.Assignments, model.Assignment{
			DeliveryID: d.ID,
			RiderID:    rider.ID,
			Reason:     fmt.Sprintf("nearest available rider, %.1fkm away, capacity sufficient", approachKm),
			Route:      route,
		})
	}

	res.Message = fmt.Sprintf("%d assigned, %d unassigned", len(res.Assignments), len(res.Unassigned))
	return res
}
