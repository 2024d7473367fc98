package main

import (
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"riderdispatch/internal/api"
	"riderdispatch/internal/buildinfo"
	"riderdispatch/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	metrics.RegisterDefault()

	srv, err := api.NewServer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init server")
	}

	mux := http.NewServeMux()

	// Deliveries
	mux.HandleFunc("/v1/deliveries", srv.DeliveriesHandler)
	mux.HandleFunc("/v1/deliveries/import", srv.DeliveryImportHandler)

	// Riders
	mux.HandleFunc("/v1/riders", srv.RidersHandler)
	mux.HandleFunc("/v1/riders/", srv.RiderByIDHandler)

	// Planning
	mux.HandleFunc("/v1/plan", srv.PlanHandler)
	mux.HandleFunc("/v1/plans", srv.PlansIndexHandler)
	mux.HandleFunc("/v1/plans/stats", srv.PlanStatsHandler)
	mux.HandleFunc("/v1/plans/", srv.PlanByIDHandler) // includes /events/stream
	mux.HandleFunc("/v1/plan-events/ws", srv.PlanEventsWSHandler)

	// Webhooks
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)
	mux.HandleFunc("/v1/webhook-deliveries", srv.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/webhook-deliveries/", srv.WebhookDeliveryRetryHandler)

	// Ops
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.HandleFunc("/debug/info", srv.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Docs
	mux.HandleFunc("/openapi.yaml", srv.OpenAPIHandler)
	mux.HandleFunc("/docs", srv.DocsHandler)

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           api.WithObservability(api.WithRateLimit(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	worker := srv.NewWebhookWorker()
	worker.Start()

	log.Info().Str("addr", addr).Str("version", buildinfo.Version).Msg("api listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
