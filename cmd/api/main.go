package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chachabrian/parkit-backend/internal/config"
	"github.com/chachabrian/parkit-backend/internal/database"
	"github.com/chachabrian/parkit-backend/internal/docstore"
	"github.com/chachabrian/parkit-backend/internal/handlers"
	"github.com/chachabrian/parkit-backend/internal/identity"
	"github.com/chachabrian/parkit-backend/internal/parking"
	"github.com/chachabrian/parkit-backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	ctx := context.Background()

	// Initialize Firebase (optional - will log warning if not configured)
	app, err := services.InitFirebase(ctx, cfg.FirebaseServiceAccountPath, cfg.FirebaseProjectID)
	if err != nil {
		log.Printf("Firebase initialization warning: %v", err)
	}

	store, err := openStore(ctx, cfg, app)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.StoreBackend, err)
	}
	defer store.Close()

	verifier, err := buildVerifier(ctx, cfg, app)
	if err != nil {
		log.Fatalf("Failed to initialize authentication: %v", err)
	}

	// Initialize WebSocket hub
	hub := services.NewHub()
	go hub.Run()
	defer hub.Stop()

	metrics := services.NewMetrics(prometheus.DefaultRegisterer)
	publishers := parking.Fanout{hub, metrics}

	deps := handlers.Deps{
		Verifier: verifier,
		Hub:      hub,
		Metrics:  metrics,
		Origins:  cfg.CORSOrigins,
	}

	// Initialize Redis (optional - status cache, event relay and FCM tokens)
	var redisStore *services.RedisStore
	if cfg.RedisURL != "" {
		if err := services.InitRedis(cfg.RedisURL); err != nil {
			log.Printf("Redis initialization warning: %v", err)
		} else {
			redisStore = services.NewRedisStore(services.RedisClient, cfg.StatusCacheTTL)
			publishers = append(publishers, redisStore)
			deps.Cache = redisStore
			deps.Tokens = redisStore
			log.Println("Redis initialized successfully")
		}
	}

	if app != nil && redisStore != nil {
		client, err := app.Messaging(ctx)
		if err != nil {
			log.Printf("Firebase messaging warning: %v", err)
		} else {
			notifier := services.NewNotifier(client, redisStore)
			publishers = append(publishers, notifier)
			deps.Topics = notifier
		}
	}

	if cfg.RabbitMQURL != "" {
		publishers = append(publishers, services.NewEventPublisher(cfg.RabbitMQURL))
	}

	svc := parking.NewService(store,
		parking.WithUnitRate(cfg.UnitRate),
		parking.WithTimeout(cfg.StoreTimeout),
		parking.WithPublisher(publishers),
	)
	deps.Service = svc

	rec, created, err := svc.EnsureStatus(ctx, cfg.SlotCount)
	if err != nil {
		log.Fatalf("Failed to read parking status: %v", err)
	}
	if created {
		log.Printf("Created parking status with %d free slots", len(rec.Slots))
	}

	var cache services.StatusCache
	if redisStore != nil {
		cache = redisStore
	}
	poller := services.NewPoller(svc, cache, cfg.PollInterval)
	poller.OnChange(hub.BroadcastStatus)
	poller.OnChange(metrics.ObserveStatus)
	if err := poller.Start(); err != nil {
		log.Fatalf("Failed to start status poller: %v", err)
	}
	defer poller.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(deps),
	}

	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.App, app *firebase.App) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := database.InitDB(cfg.PostgresDSN(), cfg.Production())
		if err != nil {
			return nil, err
		}
		log.Println("Postgres document store initialized")
		return docstore.NewPostgres(db), nil
	case config.StoreFirestore:
		if app == nil {
			return nil, errors.New("firebase is not initialized")
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, err
		}
		log.Println("Firestore document store initialized")
		return docstore.NewFirestore(client), nil
	}
	log.Println("Warning: using in-memory store, data is lost on restart")
	return docstore.NewMemory(), nil
}

// buildVerifier accepts our own JWTs and, when Firebase is configured,
// Firebase ID tokens
func buildVerifier(ctx context.Context, cfg config.App, app *firebase.App) (identity.Verifier, error) {
	var chain identity.Chain
	if cfg.JWTSecret != "" {
		chain = append(chain, identity.JWTVerifier{Secret: cfg.JWTSecret})
	}
	if app != nil {
		client, err := app.Auth(ctx)
		if err != nil {
			return nil, err
		}
		chain = append(chain, identity.FirebaseVerifier{Client: client})
	}
	if len(chain) == 0 {
		return nil, errors.New("set JWT_SECRET or configure Firebase")
	}
	return chain, nil
}
