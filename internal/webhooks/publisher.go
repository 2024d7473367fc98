package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riderdispatch/internal/store"
)

// Event types emitted by the dispatch service.
const (
	EventPlanCompleted    = "plan.completed"
	EventDeliveryAssigned = "delivery.assigned"
)

// Publisher fans an event out to the tenant's matching subscriptions by
// enqueueing one webhook delivery per subscription. Actual HTTP delivery
// happens asynchronously in the Worker.
type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues the event for all subscriptions registered for eventType.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":       fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
