package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"breadcrumb-pipeline/internal/breadcrumb"
	"breadcrumb-pipeline/internal/db"
)

type Config struct {
	StoreDriver string `validate:"oneof=postgres sqlite"`
	DatabaseURL string
	SQLitePath  string

	NATSURL           string `validate:"required"`
	NATSStreamName    string `validate:"required"`
	NATSSubjectPrefix string `validate:"required"`
	NATSConsumer      string `validate:"required"`
	LogNATSSubjects   bool

	APIURL           string `validate:"required,url"`
	VehicleIDsFile   string `validate:"required"`
	CollectorWorkers int    `validate:"gt=0"`
	HTTPTimeout      time.Duration
	RawDataDir       string

	OutputDir       string `validate:"required"`
	BatchSize       int    `validate:"gt=0"`
	SpeedWorkers    int    `validate:"gt=0"`
	Calendar        breadcrumb.ServiceCalendar
	Direction       string `validate:"required"`
	TransformOnExit bool

	MetricsAddr string
	Location    *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.StoreDriver = strings.ToLower(getenvDefault("STORE_DRIVER", db.DriverPostgres))
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "./busdata/busdata.db")
	if cfg.StoreDriver == db.DriverPostgres {
		dsn, err := postgresDSN()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSStreamName = getenvDefault("NATS_STREAM_NAME", "BREADCRUMBS")
	cfg.NATSSubjectPrefix = strings.TrimSuffix(getenvDefault("NATS_SUBJECT_PREFIX", "breadcrumbs"), ".")
	cfg.NATSConsumer = getenvDefault("NATS_CONSUMER", "breadcrumb-writer")
	cfg.LogNATSSubjects = getenvBool("LOG_NATS_SUBJECTS")

	cfg.APIURL = getenvDefault("BREADCRUMB_API_URL", "https://busdata.cs.pdx.edu/api/getBreadCrumbs")
	cfg.VehicleIDsFile = getenvDefault("VEHICLE_IDS_FILE", "ids.txt")
	cfg.RawDataDir = getenvDefault("RAW_DATA_DIR", "./busdata/raw_data")
	cfg.OutputDir = getenvDefault("OUTPUT_DIR", "./busdata/output")

	var err error
	if cfg.CollectorWorkers, err = getenvInt("COLLECTOR_WORKERS", 10); err != nil {
		return nil, err
	}
	sec, err := getenvInt("HTTP_TIMEOUT_SEC", 30)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = time.Duration(sec) * time.Second
	if cfg.BatchSize, err = getenvInt("TRANSFORM_BATCH_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.SpeedWorkers, err = getenvInt("SPEED_WORKERS", 4); err != nil {
		return nil, err
	}

	// Service-key weekday mapping
	cfg.Calendar = breadcrumb.DefaultServiceCalendar
	if v := os.Getenv("SERVICE_SATURDAY_WEEKDAY"); v != "" {
		d, err := breadcrumb.ParseWeekday(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVICE_SATURDAY_WEEKDAY: %w", err)
		}
		cfg.Calendar.Saturday = d
	}
	if v := os.Getenv("SERVICE_SUNDAY_WEEKDAY"); v != "" {
		d, err := breadcrumb.ParseWeekday(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVICE_SUNDAY_WEEKDAY: %w", err)
		}
		cfg.Calendar.Sunday = d
	}
	if err := cfg.Calendar.Validate(); err != nil {
		return nil, err
	}

	cfg.Direction = getenvDefault("TRIP_DIRECTION", breadcrumb.DefaultDirection)
	cfg.TransformOnExit = getenvBool("TRANSFORM_ON_EXIT")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// StoreDSN is the data source for the configured store driver.
func (c *Config) StoreDSN() string {
	if c.StoreDriver == db.DriverSQLite {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

// postgresDSN prefers DATABASE_URL / PG_DSN, else builds a URL from PG* vars.
func postgresDSN() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	database := os.Getenv("PGDATABASE")
	if database == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set (or STORE_DRIVER=sqlite)")
	}
	return db.PostgresURL(
		getenvDefault("PGHOST", "127.0.0.1"),
		getenvDefault("PGPORT", "5432"),
		getenvDefault("PGUSER", "postgres"),
		os.Getenv("PGPASSWORD"),
		database,
		getenvDefault("PGSSLMODE", "disable"),
	), nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func getenvBool(k string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
