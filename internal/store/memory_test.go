package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riderdispatch/internal/model"
)

func seedDeliveries(t *testing.T, m *Memory, tenant string, n int) []model.Delivery {
	t.Helper()
	ctx := context.Background()
	in := make([]model.DeliveryIn, 0, n)
	for i := 0; i < n; i++ {
		in = append(in, model.DeliveryIn{
			Origin:      model.GeoPoint{Lat: 52.52, Lng: 13.405},
			Destination: model.GeoPoint{Lat: 52.50, Lng: 13.42},
			WeightKg:    1,
			VolumeM3:    0.01,
			WindowStart: time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC),
			WindowEnd:   time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		})
	}
	created, err := m.CreateDeliveries(ctx, tenant, in)
	require.NoError(t, err)
	require.Equal(t, n, created)
	out, err := m.LoadPendingDeliveries(ctx, tenant)
	require.NoError(t, err)
	return out
}

func TestMemoryDeliveriesLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedDeliveries(t, m, "t1", 3)

	items, next, err := m.ListDeliveries(ctx, "t1", model.DeliveryPending, "", 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Empty(t, next)

	// other tenants see nothing
	other, _, err := m.ListDeliveries(ctx, "t2", "", "", 10)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestMemoryCursorPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedDeliveries(t, m, "t1", 5)

	page1, next, err := m.ListDeliveries(ctx, "t1", "", "", 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, next)

	page2, next2, err := m.ListDeliveries(ctx, "t1", "", next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.NotEqual(t, page1[0].ID, page2[0].ID)
	require.NotEmpty(t, next2)

	page3, next3, err := m.ListDeliveries(ctx, "t1", "", next2, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.Empty(t, next3)
}

func TestMemoryRiderPatch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	r, err := m.CreateRider(ctx, "t1", model.RiderIn{Name: "ana", CapacityKg: 10, CapacityM3: 0.2})
	require.NoError(t, err)
	require.False(t, r.Available)

	avail := true
	loc := model.GeoPoint{Lat: 52.51, Lng: 13.40}
	got, err := m.PatchRider(ctx, "t1", r.ID, model.RiderPatch{Available: &avail, Location: &loc})
	require.NoError(t, err)
	require.True(t, got.Available)
	require.NotNil(t, got.Location)
	require.Equal(t, 52.51, got.Location.Lat)

	// partial patch leaves other fields alone
	off := false
	got, err = m.PatchRider(ctx, "t1", r.ID, model.RiderPatch{Available: &off})
	require.NoError(t, err)
	require.False(t, got.Available)
	require.NotNil(t, got.Location)

	_, err = m.PatchRider(ctx, "t2", r.ID, model.RiderPatch{Available: &avail})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySavePlanPersistsDeliveries(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	delivs := seedDeliveries(t, m, "t1", 2)

	delivs[0].Status = model.DeliveryAssigned
	delivs[0].RiderID = "r1"
	delivs[0].Route = &model.RouteEstimate{DistanceKm: 2.6, DurationMin: 5.2}
	result := model.PlanningResult{
		Assignments: []model.Assignment{{DeliveryID: delivs[0].ID, RiderID: "r1"}},
		Unassigned:  []model.UnassignedDelivery{{DeliveryID: delivs[1].ID, Reason: "no rider available"}},
		Message:     "1 assigned, 1 unassigned",
	}
	run, err := m.SavePlan(ctx, "t1", result, delivs)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	require.False(t, run.CreatedAt.IsZero())

	got, err := m.GetPlan(ctx, "t1", run.ID)
	require.NoError(t, err)
	require.Equal(t, result.Message, got.Result.Message)

	pending, err := m.LoadPendingDeliveries(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, delivs[1].ID, pending[0].ID)

	assigned, _, err := m.ListDeliveries(ctx, "t1", model.DeliveryAssigned, "", 10)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	require.Equal(t, "r1", assigned[0].RiderID)
	require.NotNil(t, assigned[0].Route)

	stats, err := m.PlanStats(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 1, stats["runs"])
	require.Equal(t, 1, stats["assigned"])
	require.Equal(t, 1, stats["unassigned"])
}

func TestMemorySubscriptionsMatchEvents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://a", Events: []string{"plan.completed"}})
	require.NoError(t, err)
	sub2, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://b", Events: []string{"plan.completed", "delivery.assigned"}})
	require.NoError(t, err)

	subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "delivery.assigned")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, sub2.ID, subs[0].ID)

	subs, err = m.GetSubscriptionsForEvent(ctx, "t1", "plan.completed")
	require.NoError(t, err)
	require.Len(t, subs, 2)

	require.NoError(t, m.DeleteSubscription(ctx, "t1", sub2.ID))
	subs, err = m.GetSubscriptionsForEvent(ctx, "t1", "delivery.assigned")
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueWebhook(ctx, "t1", "sub1", "plan.completed", "https://a", "secret", []byte(`{}`))
	require.NoError(t, err)

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, id, due[0].ID)

	// schedule a retry in the future; no longer due
	next := time.Now().Add(time.Hour)
	require.NoError(t, m.MarkWebhookDelivery(ctx, id, false, &next, "boom", 500, 12))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, due)

	// manual retry makes it due again
	require.NoError(t, m.RetryWebhookDelivery(ctx, "t1", id))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 8))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, due)

	items, _, err := m.ListWebhookDeliveries(ctx, "t1", "delivered", "", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0]["attempts"])
}
