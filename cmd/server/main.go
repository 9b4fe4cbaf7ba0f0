// Command server wires the activity engine behind its HTTP API: the
// docstore, the template catalog, the invariant checker, the addendum
// fan-out worker, and the middleware chain. Business logic lives in the
// internal packages.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldops/internal/activity/handler"
	"fieldops/internal/activity/invariant"
	"fieldops/internal/activity/models"
	"fieldops/internal/activity/service"
	"fieldops/internal/docstore"
	"fieldops/internal/geo"
	"fieldops/internal/idempotency"
	"fieldops/internal/identity"
	"fieldops/internal/office"
	"fieldops/internal/platform/config"
	"fieldops/internal/platform/httpserver"
	"fieldops/internal/platform/logger"
	"fieldops/internal/platform/metrics"
	"fieldops/internal/platform/middleware"
	"fieldops/internal/platform/redis"
	"fieldops/internal/stream"
	"fieldops/internal/template"
)

const addendumBuffer = 256

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store docstore.Store
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := docstore.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("postgres schema setup failed", "error", err)
			os.Exit(1)
		}
		store = pg
	} else {
		log.Warn("FIELDOPS_POSTGRES_URL unset, running on the in-memory docstore")
		store = docstore.NewMemory()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	m := metrics.New()

	catalogOpts := []template.Option{template.WithLogger(log)}
	var idem idempotency.Store = idempotency.NewMemory()
	if redisClient != nil {
		catalogOpts = append(catalogOpts, template.WithCache(redisClient.Client, config.TemplateCacheTTL))
		idem = idempotency.NewRedis(redisClient.Client, idempotency.DefaultTTL)
	}
	catalog := template.NewCatalog(store, catalogOpts...)
	offices := office.NewLoader(store, office.WithDefaultTimezone(cfg.DefaultTimezone))

	checkerOpts := []invariant.Option{
		invariant.WithLogger(log),
		invariant.WithFraudHook(m.CheckinFraud.Inc),
	}
	if cfg.GeocoderURL != "" {
		checkerOpts = append(checkerOpts, invariant.WithGeocoder(geo.NewHTTPGeocoder(cfg.GeocoderURL)))
	}
	checker := invariant.New(store, checkerOpts...)

	addenda := make(chan models.Addendum, addendumBuffer)
	engine, err := service.New(store, catalog, offices, checker,
		service.WithIdempotency(idem),
		service.WithAddendumStream(addenda),
		service.WithMetrics(m),
		service.WithLogger(log),
	)
	if err != nil {
		log.Error("engine setup failed", "error", err)
		os.Exit(1)
	}

	var publisher stream.Publisher = stream.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := stream.NewKafka(ctx, cfg.KafkaBrokers, cfg.AddendumTopic)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		publisher = kafka
	}
	defer publisher.Close()
	go func() {
		_ = stream.NewWorker(publisher, addenda, log, m.StreamPublishErrors.Inc).Run(ctx)
	}()

	validator := identity.NewJWTValidator(cfg.JWTSigningKey)
	h := handler.New(engine, log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(pr chi.Router) {
		pr.Use(identity.RequireAuth(validator, cfg.SupportSecretHash, log))
		pr.Use(identity.DeviceMetadata)
		h.Routes(pr)
	})

	srv := httpserver.New(cfg.Addr, r)
	go func() {
		log.Info("starting fieldops server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
