package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chachabrian/parkit-backend/internal/config"
	"github.com/chachabrian/parkit-backend/internal/database"
	"github.com/chachabrian/parkit-backend/internal/docstore"
	"github.com/chachabrian/parkit-backend/internal/parking"
	"github.com/chachabrian/parkit-backend/internal/sensor"
	"github.com/chachabrian/parkit-backend/internal/services"
)

// The sensor logger reads controller frames from stdin or SENSOR_DEVICE
// (a serial device already configured for 9600 baud), logs every accepted
// change and writes it to the shared status record.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.StoreBackend, err)
	}
	defer store.Close()

	archiver, err := services.InitStorage(services.StorageConfig{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Bucket:          cfg.AWSS3Bucket,
		LocalDir:        cfg.SensorArchiveDir,
	})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	dailyLog, err := sensor.NewDailyLog(cfg.SensorLogDir, archiver)
	if err != nil {
		log.Fatalf("Failed to set up log directory: %v", err)
	}

	svc := parking.NewService(store, parking.WithTimeout(cfg.StoreTimeout))
	runner := sensor.NewRunner(
		sensor.NewDetector(cfg.SensorMinStateDuration),
		dailyLog,
		svc,
		sensor.WithSlotCount(cfg.SensorExpectedSlotCount),
	)

	var src io.Reader = os.Stdin
	if cfg.SensorDevice != "-" {
		f, err := os.Open(cfg.SensorDevice)
		if err != nil {
			log.Fatalf("Serial connection error: %v", err)
		}
		defer f.Close()
		src = f
		log.Printf("Connected to controller on %s", cfg.SensorDevice)
	}

	log.Println("Starting data collection... Press Ctrl+C to stop")
	if err := runner.Run(ctx, src); err != nil {
		log.Printf("[sensor] read error: %v", err)
	}
	log.Println("Stopping data collection...")
}

func openStore(ctx context.Context, cfg config.App) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := database.InitDB(cfg.PostgresDSN(), cfg.Production())
		if err != nil {
			return nil, err
		}
		return docstore.NewPostgres(db), nil
	case config.StoreFirestore:
		app, err := services.InitFirebase(ctx, cfg.FirebaseServiceAccountPath, cfg.FirebaseProjectID)
		if err != nil {
			return nil, err
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, err
		}
		return docstore.NewFirestore(client), nil
	}
	log.Println("Warning: STORE_BACKEND=memory, changes are only logged to CSV")
	return docstore.NewMemory(), nil
}
