package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store backends selectable with STORE_BACKEND.
const (
	StoreMemory    = "memory"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

type App struct {
	// HTTP
	Port        string   `envconfig:"PORT" default:"8080"`
	Env         string   `envconfig:"APP_ENV" default:"development"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
	// Store
	StoreBackend string        `envconfig:"STORE_BACKEND" default:"memory"`
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`
	// Firebase
	FirebaseServiceAccountPath string `envconfig:"FIREBASE_SERVICE_ACCOUNT_PATH"`
	FirebaseProjectID          string `envconfig:"FIREBASE_PROJECT_ID"`
	// DB
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"parkit"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	// Redis
	RedisURL       string        `envconfig:"REDIS_URL"`
	StatusCacheTTL time.Duration `envconfig:"STATUS_CACHE_TTL" default:"60s"`
	// RabbitMQ
	RabbitMQURL string `envconfig:"RABBITMQ_URL"`
	// JWT
	JWTSecret string `envconfig:"JWT_SECRET"`
	// Parking
	SlotCount    int           `envconfig:"SLOT_COUNT" default:"6"`
	UnitRate     float64       `envconfig:"UNIT_RATE" default:"1"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	// AWS
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSAccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	AWSS3Bucket        string `envconfig:"AWS_S3_BUCKET"`
	// Sensor
	SensorDevice            string        `envconfig:"SENSOR_DEVICE" default:"-"`
	SensorLogDir            string        `envconfig:"SENSOR_LOG_DIR" default:"./logs"`
	SensorArchiveDir        string        `envconfig:"SENSOR_ARCHIVE_DIR" default:"./archive"`
	SensorMinStateDuration  time.Duration `envconfig:"SENSOR_MIN_STATE_DURATION" default:"2s"`
	SensorExpectedSlotCount int           `envconfig:"SENSOR_SLOT_COUNT" default:"0"`
}

// Load reads .env when present and decodes the environment.
func Load() (App, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	var c App
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c App) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StorePostgres:
	case StoreFirestore:
		if c.FirebaseServiceAccountPath == "" && c.FirebaseProjectID == "" {
			return fmt.Errorf("STORE_BACKEND=firestore needs FIREBASE_SERVICE_ACCOUNT_PATH or FIREBASE_PROJECT_ID")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.SlotCount < 1 {
		return fmt.Errorf("SLOT_COUNT must be positive")
	}
	if c.UnitRate <= 0 {
		return fmt.Errorf("UNIT_RATE must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	return nil
}

// PostgresDSN builds the gorm postgres DSN.
func (c App) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

func (c App) Production() bool {
	return c.Env == "production"
}
