package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"riderdispatch/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	delivs    map[string]model.Delivery // id -> delivery
	delivTen  map[string][]string       // tenant -> delivery ids, insertion order
	riders    map[string]model.Rider
	riderTen  map[string][]string
	runs      map[string]model.PlanRun
	runTen    map[string][]string
	subs      map[string][]model.Subscription // tenant -> subscriptions
	hooks     map[string]*memHook             // webhook delivery id -> state
	hookTen   map[string][]string
}

// memHook augments WebhookDelivery with scheduling/metrics state.
type memHook struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func NewMemory() *Memory {
	return &Memory{
		delivs:   map[string]model.Delivery{},
		delivTen: map[string][]string{},
		riders:   map[string]model.Rider{},
		riderTen: map[string][]string{},
		runs:     map[string]model.PlanRun{},
		runTen:   map[string][]string{},
		subs:     map[string][]model.Subscription{},
		hooks:    map[string]*memHook{},
		hookTen:  map[string][]string{},
	}
}

func (m *Memory) CreateDeliveries(ctx context.Context, tenantID string, in []model.DeliveryIn) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, d := range in {
		id := uuid.New().String()
		m.delivs[id] = model.Delivery{
			ID:          id,
			TenantID:    tenantID,
			ExternalRef: d.ExternalRef,
			Origin:      d.Origin,
			Destination: d.Destination,
			WeightKg:    d.WeightKg,
			VolumeM3:    d.VolumeM3,
			WindowStart: d.WindowStart,
			WindowEnd:   d.WindowEnd,
			Status:      model.DeliveryPending,
		}
		m.delivTen[tenantID] = append(m.delivTen[tenantID], id)
		created++
	}
	return created, nil
}

func (m *Memory) ListDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Delivery, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.delivTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.Delivery{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		d := m.delivs[ids[i]]
		if status == "" || d.Status == status {
			out = append(out, d)
		}
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) LoadPendingDeliveries(ctx context.Context, tenantID string) ([]model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Delivery{}
	for _, id := range m.delivTen[tenantID] {
		if d := m.delivs[id]; d.Status == model.DeliveryPending {
			out = append(out, d)
		}
	}
	// Insertion order is already stable; sort by id so planning order does
	// not depend on registration interleaving across restarts.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateRider(ctx context.Context, tenantID string, in model.RiderIn) (model.Rider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := model.Rider{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Name:       in.Name,
		CapacityKg: in.CapacityKg,
		CapacityM3: in.CapacityM3,
		Location:   in.Location,
		Available:  in.Available,
		ShiftStart: in.ShiftStart,
		ShiftEnd:   in.ShiftEnd,
	}
	m.riders[r.ID] = r
	m.riderTen[tenantID] = append(m.riderTen[tenantID], r.ID)
	return r, nil
}

func (m *Memory) GetRider(ctx context.Context, tenantID, id string) (model.Rider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.riders[id]
	if !ok || r.TenantID != tenantID {
		return model.Rider{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRiders(ctx context.Context, tenantID, cursor string, limit int) ([]model.Rider, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.riderTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.Rider{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.riders[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) LoadRiders(ctx context.Context, tenantID string) ([]model.Rider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Rider{}
	for _, id := range m.riderTen[tenantID] {
		out = append(out, m.riders[id])
	}
	return out, nil
}

func (m *Memory) PatchRider(ctx context.Context, tenantID, id string, patch model.RiderPatch) (model.Rider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.riders[id]
	if !ok || r.TenantID != tenantID {
		return model.Rider{}, ErrNotFound
	}
	if patch.Available != nil {
		r.Available = *patch.Available
	}
	if patch.Location != nil {
		r.Location = patch.Location
	}
	m.riders[id] = r
	return r, nil
}

func (m *Memory) SavePlan(ctx context.Context, tenantID string, result model.PlanningResult, deliveries []model.Delivery) (model.PlanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range deliveries {
		if cur, ok := m.delivs[d.ID]; ok && cur.TenantID == tenantID {
			m.delivs[d.ID] = d
		}
	}
	run := model.PlanRun{ID: uuid.New().String(), TenantID: tenantID, CreatedAt: time.Now().UTC(), Result: result}
	m.runs[run.ID] = run
	m.runTen[tenantID] = append(m.runTen[tenantID], run.ID)
	return run, nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, id string) (model.PlanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok || run.TenantID != tenantID {
		return model.PlanRun{}, ErrNotFound
	}
	return run, nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanRun, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.runTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.PlanRun{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.runs[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) PlanStats(ctx context.Context, tenantID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := 0
	assigned := 0
	unassigned := 0
	for _, id := range m.runTen[tenantID] {
		run := m.runs[id]
		runs++
		assigned += len(run.Result.Assignments)
		unassigned += len(run.Result.Unassigned)
	}
	return map[string]any{"runs": runs, "assigned": assigned, "unassigned": unassigned}, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	if len(out) == len(arr) {
		return ErrNotFound
	}
	m.subs[tenantID] = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	h := &memHook{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: time.Now()}
	m.hooks[id] = h
	m.hookTen[tenantID] = append(m.hookTen[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, ids := range m.hookTen {
		for _, id := range ids {
			h := m.hooks[id]
			if h == nil {
				continue
			}
			if (h.Status == "pending" || h.Status == "retry") && !h.NextAttemptAt.After(now) {
				out = append(out, h.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hooks[id]
	if h == nil {
		return nil
	}
	h.Attempts++
	h.ResponseCode = responseCode
	h.LatencyMs = latencyMs
	if success {
		h.Status = "delivered"
		now := time.Now()
		h.DeliveredAt = &now
	} else {
		h.Status = "retry"
		h.LastError = lastError
		if nextAttemptAt != nil {
			h.NextAttemptAt = *nextAttemptAt
		} else {
			h.NextAttemptAt = time.Now().Add(time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hooks[id]
	if h != nil {
		h.Attempts++
		h.Status = "failed"
		h.LastError = lastError
		h.ResponseCode = responseCode
		h.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.hookTen[tenantID] {
		h := m.hooks[id]
		if h == nil {
			continue
		}
		if status == "" || h.Status == status {
			item := map[string]any{"id": h.ID, "eventType": h.EventType, "status": h.Status, "attempts": h.Attempts, "url": h.URL}
			if !h.NextAttemptAt.IsZero() {
				item["nextAttemptAt"] = h.NextAttemptAt
			}
			if h.LastError != "" {
				item["lastError"] = h.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hooks[id]
	if h == nil || h.TenantID != tenantID {
		return ErrNotFound
	}
	h.Status = "pending"
	h.NextAttemptAt = time.Now()
	return nil
}

// cursorIndex resolves an opaque last-seen-id cursor to a start index.
func cursorIndex(ids []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, id := range ids {
		if id == cursor {
			return i + 1
		}
	}
	return 0
}
