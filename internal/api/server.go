// Package api implements the HTTP surface of the rider dispatch service.
package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"riderdispatch/internal/auth"
	"riderdispatch/internal/plan"
	"riderdispatch/internal/store"
	"riderdispatch/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Pub     *webhooks.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	Planner plan.Config
}

// NewServer wires the store, broker, verifier and planner defaults from
// the environment. No DATABASE_URL means the in-memory store; no
// REDIS_URL means the in-process broker.
func NewServer() (*Server, error) {
	var s store.Store
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Warn().Err(err).Msg("migrations skipped")
			}
		}
		s = sp
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		rb, err := NewRedisBroker()
		if err != nil {
			log.Warn().Err(err).Msg("redis broker unavailable, using in-memory broker")
			broker = NewBroker()
		} else {
			broker = rb
		}
	} else {
		broker = NewBroker()
	}

	cfg := plan.DefaultConfig()
	if path := os.Getenv("PLANNER_CONFIG"); path != "" {
		loaded, err := plan.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	return &Server{
		Store:   s,
		Pub:     webhooks.NewPublisher(s),
		Auth:    auth.NewVerifierFromEnv(),
		Broker:  broker,
		Planner: cfg,
	}, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates the background webhook delivery worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
