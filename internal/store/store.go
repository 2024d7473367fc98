// Package store holds the persistence interface and its in-memory and
// Postgres implementations. The planner itself never touches a Store;
// the API layer loads a snapshot, runs the engine, and saves the result.
package store

import (
	"context"
	"errors"
	"time"

	"riderdispatch/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Deliveries
	CreateDeliveries(ctx context.Context, tenantID string, in []model.DeliveryIn) (created int, err error)
	ListDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Delivery, string, error)
	LoadPendingDeliveries(ctx context.Context, tenantID string) ([]model.Delivery, error)

	// Riders
	CreateRider(ctx context.Context, tenantID string, in model.RiderIn) (model.Rider, error)
	GetRider(ctx context.Context, tenantID, id string) (model.Rider, error)
	ListRiders(ctx context.Context, tenantID, cursor string, limit int) ([]model.Rider, string, error)
	LoadRiders(ctx context.Context, tenantID string) ([]model.Rider, error)
	PatchRider(ctx context.Context, tenantID, id string, patch model.RiderPatch) (model.Rider, error)

	// Planning runs. SavePlan persists the post-run delivery mutations
	// together with the run record.
	SavePlan(ctx context.Context, tenantID string, result model.PlanningResult, deliveries []model.Delivery) (model.PlanRun, error)
	GetPlan(ctx context.Context, tenantID, id string) (model.PlanRun, error)
	ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanRun, string, error)
	PlanStats(ctx context.Context, tenantID string) (map[string]any, error)

	// Webhook subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook delivery queue
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")
