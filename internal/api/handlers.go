package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"riderdispatch/internal/metrics"
	"riderdispatch/internal/model"
	"riderdispatch/internal/plan"
	"riderdispatch/internal/store"
	"riderdispatch/internal/webhooks"
)

// DeliveriesHandler handles POST/GET /v1/deliveries
func (s *Server) DeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.CanDispatch() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		var req struct {
			TenantID   string             `json:"tenantId"`
			Deliveries []model.DeliveryIn `json:"deliveries"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			_, req.TenantID = s.withTenant(r)
		}
		for i := range req.Deliveries {
			if err := validateDeliveryIn(&req.Deliveries[i]); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid delivery", err.Error(), r.URL.Path)
				return
			}
		}
		created, err := s.Store.CreateDeliveries(r.Context(), req.TenantID, req.Deliveries)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create deliveries failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"created": created})
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		status := r.URL.Query().Get("status")
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListDeliveries(r.Context(), tenant, status, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// DeliveryImportHandler handles POST /v1/deliveries/import with a CSV body.
func (s *Server) DeliveryImportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	ins, err := s.importCSV(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error(), r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	created, err := s.Store.CreateDeliveries(r.Context(), tenant, ins)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Import failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"created": created})
}

// RidersHandler handles POST/GET /v1/riders
func (s *Server) RidersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.CanDispatch() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
			return
		}
		var req model.RiderIn
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateRiderIn(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid rider", err.Error(), r.URL.Path)
			return
		}
		_, tenant := s.withTenant(r)
		rd, err := s.Store.CreateRider(r.Context(), tenant, req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create rider failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, rd)
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListRiders(r.Context(), tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List riders failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RiderByIDHandler handles GET/PATCH /v1/riders/{id}
func (s *Server) RiderByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/riders/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodGet:
		rd, err := s.Store.GetRider(r.Context(), tenant, id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Rider not found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, rd)
	case http.MethodPatch:
		p := s.getPrincipal(r)
		// riders may update their own availability and position
		if !p.CanDispatch() && !(p.Role == "rider" && p.RiderID == id) {
			writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for this rider", r.URL.Path)
			return
		}
		var patch model.RiderPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		rd, err := s.Store.PatchRider(r.Context(), tenant, id, patch)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Rider not found", err.Error(), r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Patch rider failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, rd)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PlanHandler handles POST /v1/plan: loads the pending snapshot, runs the
// engine and persists the run.
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanDispatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.PlanRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := validatePlanRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		_, req.TenantID = s.withTenant(r)
	}

	cfg := s.Planner
	if req.DetourFactor != 0 {
		cfg.DetourFactor = req.DetourFactor
	}
	if req.AvgSpeedKmh != 0 {
		cfg.AvgSpeedKmh = req.AvgSpeedKmh
	}

	deliveries, err := s.Store.LoadPendingDeliveries(r.Context(), req.TenantID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load deliveries failed", err.Error(), r.URL.Path)
		return
	}
	riders, err := s.Store.LoadRiders(r.Context(), req.TenantID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load riders failed", err.Error(), r.URL.Path)
		return
	}

	start := time.Now()
	result, err := plan.Plan(deliveries, riders, cfg)
	if err != nil {
		outcome := "error"
		status := http.StatusInternalServerError
		title := "Planning failed"
		if errors.Is(err, plan.ErrValidation) {
			outcome, status, title = "invalid", http.StatusUnprocessableEntity, "Invalid planning input"
		} else if errors.Is(err, plan.ErrConfig) {
			outcome, status, title = "invalid", http.StatusBadRequest, "Invalid planner config"
		}
		metrics.PlanRuns.WithLabelValues(outcome).Inc()
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	metrics.PlanRuns.WithLabelValues("ok").Inc()
	metrics.PlanDuration.Observe(time.Since(start).Seconds())
	metrics.PlanDeliveries.WithLabelValues("assigned").Add(float64(len(result.Assignments)))
	metrics.PlanDeliveries.WithLabelValues("unassigned").Add(float64(len(result.Unassigned)))

	run, err := s.Store.SavePlan(r.Context(), req.TenantID, result, deliveries)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save plan failed", err.Error(), r.URL.Path)
		return
	}

	s.Pub.Emit(r.Context(), req.TenantID, webhooks.EventPlanCompleted, map[string]any{
		"runId":      run.ID,
		"assigned":   len(result.Assignments),
		"unassigned": len(result.Unassigned),
		"message":    result.Message,
	})
	for _, a := range result.Assignments {
		s.Pub.Emit(r.Context(), req.TenantID, webhooks.EventDeliveryAssigned, map[string]any{
			"runId":      run.ID,
			"deliveryId": a.DeliveryID,
			"riderId":    a.RiderID,
			"distanceKm": a.Route.DistanceKm,
		})
		s.Broker.Publish(run.ID, SSEEvent{Type: "delivery.assigned", Data: a})
	}
	completed := SSEEvent{Type: "plan.completed", Data: map[string]any{"runId": run.ID, "message": result.Message}}
	s.Broker.Publish(run.ID, completed)
	s.Broker.Publish(PlanFeed, completed)

	writeJSON(w, http.StatusOK, run)
}

// PlansIndexHandler handles GET /v1/plans
func (s *Server) PlansIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	cursor := r.URL.Query().Get("cursor")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListPlans(r.Context(), tenant, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// PlanByIDHandler handles GET /v1/plans/{id} and GET /v1/plans/{id}/events/stream
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		s.streamPlanEvents(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	run, err := s.Store.GetPlan(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) streamPlanEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	// initial heartbeat
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"runId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			b, _ := json.Marshal(ev.Data)
			fmt.Fprintf(w, "event: %s\n", ev.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"runId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// PlanStatsHandler handles GET /v1/plans/stats
func (s *Server) PlanStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	stats, err := s.Store.PlanStats(r.Context(), tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Plan stats failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		if req.TenantID == "" {
			_, req.TenantID = s.withTenant(r)
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		_, tenant := s.withTenant(r)
		items, next, err := s.Store.ListSubscriptions(r.Context(), tenant, r.URL.Query().Get("cursor"), 100)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	if err := s.Store.DeleteSubscription(r.Context(), tenant, id); err != nil {
		writeProblem(w, http.StatusNotFound, "Subscription not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// WebhookDeliveriesHandler handles GET /v1/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	status := r.URL.Query().Get("status")
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), tenant, status, r.URL.Query().Get("cursor"), 100)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List webhook deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/webhook-deliveries/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "retry" || r.Method != http.MethodPost {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	if err := s.Store.RetryWebhookDelivery(r.Context(), tenant, parts[0]); err != nil {
		writeProblem(w, http.StatusNotFound, "Webhook delivery not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.LoadRiders(r.Context(), "t_demo"); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
