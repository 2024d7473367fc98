package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"riderdispatch/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// MigrateDir applies *.sql files from dir in lexical order. Dev helper;
// production deployments run migrations out of band.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return fmt.Errorf("migrate %s: %w", n, err)
		}
		if _, err := p.db.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("migrate %s: %w", n, err)
		}
	}
	return nil
}

func (p *Postgres) CreateDeliveries(ctx context.Context, tenantID string, in []model.DeliveryIn) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	created := 0
	for _, d := range in {
		_, err = tx.ExecContext(ctx, `INSERT INTO deliveries
			(id, tenant_id, external_ref, origin_lat, origin_lng, dest_lat, dest_lng,
			 weight_kg, volume_m3, window_start, window_end, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			uuid.New(), tenantID, nullIfEmpty(d.ExternalRef),
			d.Origin.Lat, d.Origin.Lng, d.Destination.Lat, d.Destination.Lng,
			d.WeightKg, d.VolumeM3, d.WindowStart, d.WindowEnd, model.DeliveryPending)
		if err != nil {
			return 0, err
		}
		created++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

const deliveryCols = `id::text, external_ref, origin_lat, origin_lng, dest_lat, dest_lng,
	weight_kg, volume_m3, window_start, window_end, status, rider_id, route`

func scanDelivery(rows interface{ Scan(...any) error }, tenantID string) (model.Delivery, error) {
	var d model.Delivery
	var ext, rider sql.NullString
	var route []byte
	err := rows.Scan(&d.ID, &ext, &d.Origin.Lat, &d.Origin.Lng, &d.Destination.Lat, &d.Destination.Lng,
		&d.WeightKg, &d.VolumeM3, &d.WindowStart, &d.WindowEnd, &d.Status, &rider, &route)
	if err != nil {
		return model.Delivery{}, err
	}
	d.TenantID = tenantID
	d.ExternalRef = ext.String
	d.RiderID = rider.String
	if len(route) > 0 {
		var est model.RouteEstimate
		if err := json.Unmarshal(route, &est); err == nil {
			d.Route = &est
		}
	}
	return d, nil
}

func (p *Postgres) ListDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Delivery, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + deliveryCols + ` FROM deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(" AND id::text > $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Delivery{}
	var last string
	for rows.Next() {
		d, err := scanDelivery(rows, tenantID)
		if err != nil {
			return nil, "", err
		}
		out = append(out, d)
		last = d.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) LoadPendingDeliveries(ctx context.Context, tenantID string) ([]model.Delivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+deliveryCols+` FROM deliveries
		WHERE tenant_id=$1 AND status=$2 ORDER BY id`, tenantID, model.DeliveryPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateRider(ctx context.Context, tenantID string, in model.RiderIn) (model.Rider, error) {
	id := uuid.New().String()
	var lat, lng any
	if in.Location != nil {
		lat, lng = in.Location.Lat, in.Location.Lng
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO riders
		(id, tenant_id, name, capacity_kg, capacity_m3, lat, lng, available, shift_start, shift_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		id, tenantID, nullIfEmpty(in.Name), in.CapacityKg, in.CapacityM3, lat, lng, in.Available, in.ShiftStart, in.ShiftEnd)
	if err != nil {
		return model.Rider{}, err
	}
	return p.GetRider(ctx, tenantID, id)
}

const riderCols = `id::text, name, capacity_kg, capacity_m3, lat, lng, available, shift_start, shift_end`

func scanRider(rows interface{ Scan(...any) error }, tenantID string) (model.Rider, error) {
	var r model.Rider
	var name sql.NullString
	var lat, lng sql.NullFloat64
	var shiftStart, shiftEnd sql.NullTime
	err := rows.Scan(&r.ID, &name, &r.CapacityKg, &r.CapacityM3, &lat, &lng, &r.Available, &shiftStart, &shiftEnd)
	if err != nil {
		return model.Rider{}, err
	}
	r.TenantID = tenantID
	r.Name = name.String
	if lat.Valid && lng.Valid {
		r.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	if shiftStart.Valid {
		t := shiftStart.Time
		r.ShiftStart = &t
	}
	if shiftEnd.Valid {
		t := shiftEnd.Time
		r.ShiftEnd = &t
	}
	return r, nil
}

func (p *Postgres) GetRider(ctx context.Context, tenantID, id string) (model.Rider, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+riderCols+` FROM riders WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
	r, err := scanRider(row, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Rider{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRiders(ctx context.Context, tenantID, cursor string, limit int) ([]model.Rider, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + riderCols + ` FROM riders WHERE tenant_id=$1`
	args := []any{tenantID}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(" AND id::text > $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Rider{}
	var last string
	for rows.Next() {
		r, err := scanRider(rows, tenantID)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
		last = r.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) LoadRiders(ctx context.Context, tenantID string) ([]model.Rider, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+riderCols+` FROM riders WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Rider{}
	for rows.Next() {
		r, err := scanRider(rows, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) PatchRider(ctx context.Context, tenantID, id string, patch model.RiderPatch) (model.Rider, error) {
	if patch.Available != nil {
		if _, err := p.db.ExecContext(ctx, `UPDATE riders SET available=$1 WHERE tenant_id=$2 AND id::text=$3`, *patch.Available, tenantID, id); err != nil {
			return model.Rider{}, err
		}
	}
	if patch.Location != nil {
		if _, err := p.db.ExecContext(ctx, `UPDATE riders SET lat=$1, lng=$2 WHERE tenant_id=$3 AND id::text=$4`, patch.Location.Lat, patch.Location.Lng, tenantID, id); err != nil {
			return model.Rider{}, err
		}
	}
	return p.GetRider(ctx, tenantID, id)
}

// SavePlan writes the run record and the post-run delivery mutations in one
// transaction, so a crash cannot leave assignments without their run.
func (p *Postgres) SavePlan(ctx context.Context, tenantID string, result model.PlanningResult, deliveries []model.Delivery) (model.PlanRun, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.PlanRun{}, err
	}
	defer func() { _ = tx.Rollback() }()

	run := model.PlanRun{ID: uuid.New().String(), TenantID: tenantID, CreatedAt: time.Now().UTC(), Result: result}
	if _, err := tx.ExecContext(ctx, `INSERT INTO plan_runs (id, tenant_id, created_at, result) VALUES ($1,$2,$3,$4)`,
		run.ID, tenantID, run.CreatedAt, toJSON(result)); err != nil {
		return model.PlanRun{}, err
	}
	for _, d := range deliveries {
		if d.Status != model.DeliveryAssigned {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE deliveries SET status=$1, rider_id=$2, route=$3
			WHERE tenant_id=$4 AND id::text=$5`,
			d.Status, d.RiderID, toJSON(d.Route), tenantID, d.ID); err != nil {
			return model.PlanRun{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.PlanRun{}, err
	}
	return run, nil
}

func (p *Postgres) GetPlan(ctx context.Context, tenantID, id string) (model.PlanRun, error) {
	var run model.PlanRun
	var result []byte
	err := p.db.QueryRowContext(ctx, `SELECT id::text, created_at, result FROM plan_runs WHERE tenant_id=$1 AND id::text=$2`, tenantID, id).
		Scan(&run.ID, &run.CreatedAt, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlanRun{}, ErrNotFound
	}
	if err != nil {
		return model.PlanRun{}, err
	}
	run.TenantID = tenantID
	if err := json.Unmarshal(result, &run.Result); err != nil {
		return model.PlanRun{}, err
	}
	return run, nil
}

func (p *Postgres) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanRun, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, created_at, result FROM plan_runs WHERE tenant_id=$1`
	args := []any{tenantID}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(" AND id::text > $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.PlanRun{}
	var last string
	for rows.Next() {
		var run model.PlanRun
		var result []byte
		if err := rows.Scan(&run.ID, &run.CreatedAt, &result); err != nil {
			return nil, "", err
		}
		run.TenantID = tenantID
		if err := json.Unmarshal(result, &run.Result); err != nil {
			return nil, "", err
		}
		out = append(out, run)
		last = run.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) PlanStats(ctx context.Context, tenantID string) (map[string]any, error) {
	var runs int
	var assigned, unassigned sql.NullInt64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(jsonb_array_length(result->'assignments')),0),
		COALESCE(SUM(jsonb_array_length(result->'unassigned')),0)
		FROM plan_runs WHERE tenant_id=$1`, tenantID).Scan(&runs, &assigned, &unassigned)
	if err != nil {
		return nil, err
	}
	return map[string]any{"runs": runs, "assigned": assigned.Int64, "unassigned": unassigned.Int64}, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.TenantID, s.URL, toJSON(s.Events), s.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, events, secret FROM subscriptions
		WHERE tenant_id=$1 AND events @> $2`, tenantID, toJSON([]string{eventType}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSubscription(rows interface{ Scan(...any) error }, tenantID string) (model.Subscription, error) {
	var s model.Subscription
	var events []byte
	if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
		return model.Subscription{}, err
	}
	s.TenantID = tenantID
	_ = json.Unmarshal(events, &s.Events)
	return s, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, url, events, secret FROM subscriptions WHERE tenant_id=$1`
	args := []any{tenantID}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(" AND id::text > $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		s, err := scanSubscription(rows, tenantID)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries
		(id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, nullIfEmpty(subscriptionID), eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries
		WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries
			SET status='delivered', attempts=attempts+1, response_code=$1, latency_ms=$2, delivered_at=now()
			WHERE id::text=$3`, responseCode, latencyMs, id)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries
		SET status='retry', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3, next_attempt_at=$4
		WHERE id::text=$5`, lastError, responseCode, latencyMs, next, id)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries
		SET status='failed', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3
		WHERE id::text=$4`, lastError, responseCode, latencyMs, id)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, url, COALESCE(last_error,''), next_attempt_at
		FROM webhook_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(" AND id::text > $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, eventType, st, url, lastErr string
		var attempts int
		var nextAttempt sql.NullTime
		if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &lastErr, &nextAttempt); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if lastErr != "" {
			item["lastError"] = lastErr
		}
		if nextAttempt.Valid {
			item["nextAttemptAt"] = nextAttempt.Time
		}
		out = append(out, item)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now()
		WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func toJSON(v any) []byte {
	if v == nil {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}
