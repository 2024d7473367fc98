package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riderdispatch/internal/store"
)

// recordStore wraps Memory and records mark/fail calls for assertions.
type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}

type markRec struct {
	ID      string
	Success bool
	Code    int
}

type failRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerDeliversWithSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}

	id, err := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventPlanCompleted, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	w.processOnce()

	require.Equal(t, EventPlanCompleted, gotType)
	require.True(t, VerifyHMAC("secret", gotBody, gotSig))
	require.Len(t, rs.marks, 1)
	require.True(t, rs.marks[0].Success)
}

func TestWorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventPlanCompleted, srv.URL, "", []byte(`{}`))

	w.processOnce()

	require.NotEmpty(t, rs.fails)
	require.Equal(t, 500, rs.fails[0].Code)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := SignHMAC("k", body)
	require.True(t, VerifyHMAC("k", body, sig))
	require.False(t, VerifyHMAC("other", body, sig))
	require.False(t, VerifyHMAC("k", []byte(`{"a":2}`), sig))
	require.False(t, VerifyHMAC("k", body, "not-hex"))
}
