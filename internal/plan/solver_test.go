package plan

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riderdispatch/internal/model"
)

var (
	tenAM  = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	noonPM = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
)

func testDelivery(id string, weight, volume float64) model.Delivery {
	return model.Delivery{
		ID:          id,
		Origin:      model.GeoPoint{Lat: 52.5200, Lng: 13.4050},
		Destination: model.GeoPoint{Lat: 52.5310, Lng: 13.3847},
		WeightKg:    weight,
		VolumeM3:    volume,
		WindowStart: tenAM,
		WindowEnd:   noonPM,
		Status:      model.DeliveryPending,
	}
}

func testRider(id string, capKg, capM3 float64, loc model.GeoPoint) model.Rider {
	return model.Rider{
		ID:         id,
		CapacityKg: capKg,
		CapacityM3: capM3,
		Location:   &loc,
		Available:  true,
	}
}

func TestSingleEligiblePairing(t *testing.T) {
	deliveries := []model.Delivery{testDelivery("d1", 5, 0.02)}
	riders := []model.Rider{testRider("r1", 10, 0.1, deliveries[0].Origin)}

	res, err := Plan(deliveries, riders, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	require.Empty(t, res.Unassigned)

	a := res.Assignments[0]
	require.Equal(t, "d1", a.DeliveryID)
	require.Equal(t, "r1", a.RiderID)
	require.Greater(t, a.Route.DistanceKm, 0.0)
	require.Equal(t, "1 assigned, 0 unassigned", res.Message)

	// Successful pairing mutates the delivery in place.
	require.Equal(t, model.DeliveryAssigned, deliveries[0].Status)
	require.Equal(t, "r1", deliveries[0].RiderID)
	require.NotNil(t, deliveries[0].Route)
}

func TestCapacityRejection(t *testing.T) {
	deliveries := []model.Delivery{testDelivery("d1", 50, 0.02)}
	riders := []model.Rider{testRider("r1", 10, 0.1, deliveries[0].Origin)}

	res, err := Plan(deliveries, riders, DefaultConfig())
	require.NoError(t, err)
	require.Empty(t, res.Assignments)
	require.Len(t, res.Unassigned, 1)
	require.Equal(t, ReasonNoCapacity, res.Unassigned[0].Reason)

	// Unsuccessful attempts leave the delivery untouched.
	require.Equal(t, model.DeliveryPending, deliveries[0].Status)
	require.Empty(t, deliveries[0].RiderID)
	require.Nil(t, deliveries[0].Route)
}

func TestRiderConsumedWithinRun(t *testing.T) {
	deliveries := []model.Delivery{testDelivery("d1", 5, 0.02), testDelivery("d2", 5, 0.02)}
	riders := []model.Rider{testRider("r1", 10, 0.1, deliveries[0].Origin)}

	res, err := Plan(deliveries, riders, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	require.Equal(t, "d1", res.Assignments[0].DeliveryID)
	require.Len(t, res.Unassigned, 1)
	require.Equal(t, "d2", res.Unassigned[0].DeliveryID)
	require.Equal(t, ReasonNoRiderAvailable, res.Unassigned[0].Reason)

	// The consumption set is run-local; the shared rider record stays as is.
	require.True(t, riders[0].Available)
}

func TestShiftMustContainWindow(t *testing.T) {
	deliveries := []model.Delivery{testDelivery("d1", 5, 0.02)}
	deliveries[0].WindowEnd = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	r := testRider("r1", 10, 0.1, deliveries[0].Origin)
	shiftStart := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	shiftEnd := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	r.ShiftStart = &shiftStart
	r.ShiftEnd = &shiftEnd

	res, err := Plan(deliveries, []model.Rider{r}, DefaultConfig())
	require.NoError(t, err)
	require.Empty(t, res.Assignments)
	require.Len(t, res.Unassigned, 1)
	require.Equal(t, ReasonNoShift, res.Unassigned[0].Reason)
}

func TestNearestRiderWinsTiesByID(t *testing.T) {
	deliveries := []model.Delivery{testDelivery("d1", 5, 0.02)}
	origin := deliveries[0].Origin

	near := testRider("r2", 10, 0.1, model.GeoPoint{Lat: origin.Lat + 0.001, Lng: origin.Lng})
	far := testRider("r1", 10, 0.1, model.GeoPoint{Lat: origin.Lat + 0.1, Lng: origin.Lng})
	res, err := Plan(deliveries, []model.Rider{far, near}, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "r2", res.Assignments[0].RiderID)

	// Equidistant riders: lowest ID wins regardless of input order.
	deliveries = []model.Delivery{testDelivery("d1", 5, 0.02)}
	a := testRider("rb", 10, 0.1, origin)
	b := testRider("ra", 10, 0.1, origin)
	res, err = Plan(deliveries, []model.Rider{a, b}, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "ra", res.Assignments[0].RiderID)
}

func TestEveryDeliveryAccountedOnce(t *testing.T) {
	deliveries := []model.Delivery{
		testDelivery("d1", 5, 0.02),
		testDelivery("d2", 50, 0.02), // too heavy for anyone
		testDelivery("d3", 5, 0.02),
	}
	riders := []model.Rider{
		testRider("r1", 10, 0.1, deliveries[0].Origin),
		testRider("r2", 10, 0.1, deliveries[0].Origin),
	}

	res, err := Plan(deliveries, riders, DefaultConfig())
	require.NoError(t, err)

	seen := map[string]int{}
	for _, a := range res.Assignments {
		seen[a.DeliveryID]++
	}
	for _, u := range res.Unassigned {
		seen[u.DeliveryID]++
	}
	require.Len(t, seen, 3)
	for id, n := range seen {
		require.Equal(t, 1, n, "delivery %s accounted %d times", id, n)
	}

	// No rider appears in more than one assignment.
	byRider := map[string]int{}
	for _, a := range res.Assignments {
		byRider[a.RiderID]++
	}
	for id, n := range byRider {
		require.Equal(t, 1, n, "rider %s used %d times", id, n)
	}
}

func TestAssignedDeliveriesPassThrough(t *testing.T) {
	done := testDelivery("d1", 5, 0.02)
	done.Status = model.DeliveryAssigned
	done.RiderID = "someone"
	deliveries := []model.Delivery{done, testDelivery("d2", 5, 0.02)}
	riders := []model.Rider{testRider("r1", 10, 0.1, deliveries[1].Origin)}

	res, err := Plan(deliveries, riders, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	require.Equal(t, "d2", res.Assignments[0].DeliveryID)
	require.Equal(t, "someone", deliveries[0].RiderID)
}

func TestDeterminism(t *testing.T) {
	build := func() ([]model.Delivery, []model.Rider) {
		ds := []model.Delivery{
			testDelivery("d1", 5, 0.02),
			testDelivery("d2", 3, 0.01),
			testDelivery("d3", 8, 0.05),
		}
		rs := []model.Rider{
			testRider("r1", 10, 0.1, model.GeoPoint{Lat: 52.52, Lng: 13.41}),
			testRider("r2", 10, 0.1, model.GeoPoint{Lat: 52.53, Lng: 13.40}),
			testRider("r3", 10, 0.1, model.GeoPoint{Lat: 52.51, Lng: 13.39}),
		}
		return ds, rs
	}

	d1, r1 := build()
	first, err := Plan(d1, r1, DefaultConfig())
	require.NoError(t, err)
	d2, r2 := build()
	second, err := Plan(d2, r2, DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, d1, d2)
}

func TestAssignmentReasonWording(t *testing.T) {
	deliveries := []model.Delivery{testDelivery("d1", 5, 0.02)}
	riders := []model.Rider{testRider("r1", 10, 0.1, deliveries[0].Origin)}

	res, err := Plan(deliveries, riders, DefaultConfig())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Assignments[0].Reason, "nearest available rider, "))
	require.Contains(t, res.Assignments[0].Reason, "capacity sufficient")
}

func TestValidationFailsWholeRun(t *testing.T) {
	bad := testDelivery("d1", -1, 0.02)
	good := testDelivery("d2", 5, 0.02)
	deliveries := []model.Delivery{good, bad}
	riders := []model.Rider{testRider("r1", 10, 0.1, good.Origin)}

	_, err := Plan(deliveries, riders, DefaultConfig())
	require.ErrorIs(t, err, ErrValidation)

	// No partial mutation even for deliveries that would have matched.
	require.Equal(t, model.DeliveryPending, deliveries[0].Status)
}

func TestBadConfigFailsBeforeProcessing(t *testing.T) {
	deliveries := []model.Delivery{testDelivery("d1", 5, 0.02)}
	riders := []model.Rider{testRider("r1", 10, 0.1, deliveries[0].Origin)}

	_, err := Plan(deliveries, riders, Config{DetourFactor: 1.0, AvgSpeedKmh: 30})
	require.ErrorIs(t, err, ErrConfig)
	_, err = Plan(deliveries, riders, Config{DetourFactor: 1.3, AvgSpeedKmh: 0})
	require.ErrorIs(t, err, ErrConfig)
	require.Equal(t, model.DeliveryPending, deliveries[0].Status)
}
