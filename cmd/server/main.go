package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tripforge/tripforge-backend/config"
	"github.com/tripforge/tripforge-backend/db"
	"github.com/tripforge/tripforge-backend/handlers"
	"github.com/tripforge/tripforge-backend/internal/store"
	"github.com/tripforge/tripforge-backend/internal/store/memory"
	"github.com/tripforge/tripforge-backend/logger"
	"github.com/tripforge/tripforge-backend/models/merge"
	"github.com/tripforge/tripforge-backend/models/registry"
	"github.com/tripforge/tripforge-backend/models/trip"
	"github.com/tripforge/tripforge-backend/router"
	"github.com/tripforge/tripforge-backend/types"
)

// multiRegistrar fans observations out to the in-process registry and the
// shared Redis backend. The schema read endpoints are served from the shared
// backend when it exists, since it sees every worker's registrations; the
// in-process copy keeps local lookups cheap.
type multiRegistrar struct {
	registrars []trip.FieldRegistrar
}

func (m multiRegistrar) RegisterObservations(ctx context.Context, observations []types.FieldObservation, sourceDocumentID string) error {
	for _, r := range m.registrars {
		if err := r.RegisterObservations(ctx, observations, sourceDocumentID); err != nil {
			return err
		}
	}
	return nil
}

func (m multiRegistrar) IncrementTotalTrips(ctx context.Context) (int64, error) {
	var last int64
	for _, r := range m.registrars {
		n, err := r.IncrementTotalTrips(ctx)
		if err != nil {
			return 0, err
		}
		last = n
	}
	return last, nil
}

func main() {
	logger.InitLogger()
	defer func() {
		if err := logger.Close(); err != nil {
			os.Exit(1)
		}
	}()
	log := logger.GetLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalw("Failed to load config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tripStore store.TripStore
	if cfg.Database.Host != "" {
		client, err := db.NewDatabaseClient(ctx, &cfg.Database)
		if err != nil {
			log.Fatalw("Failed to connect to database", "error", err)
		}
		defer client.Close()
		tripStore = db.NewTripDB(client.GetPool())
	} else {
		log.Infow("No database configured, using in-memory trip store")
		tripStore = memory.NewTripStore()
	}

	fieldRegistry := registry.New(cfg.Registry)
	registrar := trip.FieldRegistrar(fieldRegistry)
	schemaSource := store.RegistryStore(fieldRegistry)
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalw("Failed to connect to redis", "error", err)
		}
		log.Infow("Sharing field registry via redis", "address", cfg.Redis.Address)
		shared := db.NewFieldRegistryDB(redisClient, cfg.Registry)
		registrar = multiRegistrar{registrars: []trip.FieldRegistrar{fieldRegistry, shared}}
		schemaSource = shared
	}

	detector := merge.NewDetector(cfg.Merge)
	tripModel := trip.NewTripModel(tripStore, registrar, detector)

	engine := router.New(router.Dependencies{
		Config:          &cfg.Server,
		TripHandler:     handlers.NewTripHandler(tripModel),
		RegistryHandler: handlers.NewRegistryHandler(schemaSource),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("Server starting", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Graceful shutdown failed", "error", err)
	}
}
