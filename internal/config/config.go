package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Sensor source modes.
const (
	ModeSimulated = "simulated"
	ModeDevice    = "device"
)

// AppConfig is the application configuration.
type AppConfig struct {
	// PollingInterval controls how often one ingestion cycle runs.
	PollingInterval time.Duration `yaml:"polling_interval" validate:"gt=0"`

	// MaxRecords is the retention capacity of the history store.
	MaxRecords int `yaml:"max_records" validate:"gt=0"`

	Simulation RangeConfig  `yaml:"simulation"`
	Acceptance RangeConfig  `yaml:"acceptance"`
	Sensor     SensorConfig `yaml:"sensor"`
	Log        LogConfig    `yaml:"log"`

	Port string `yaml:"port" validate:"required,numeric"`
}

// RangeConfig is an inclusive temperature interval.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max" validate:"gtefield=Min"`
}

// SensorConfig selects and identifies the reading source.
type SensorConfig struct {
	ID       string `yaml:"id" validate:"required"`
	Location string `yaml:"location"`
	Mode     string `yaml:"mode" validate:"oneof=simulated device"`

	// Device mode only.
	DeviceURL     string        `yaml:"device_url" validate:"omitempty,url"`
	DeviceTimeout time.Duration `yaml:"device_timeout" validate:"gt=0"`
}

// LogConfig controls logger level and output format.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

var validate = validator.New()

// Default returns the configuration used when nothing is overridden.
func Default() *AppConfig {
	return &AppConfig{
		PollingInterval: 5 * time.Second,
		MaxRecords:      100,
		Simulation:      RangeConfig{Min: 15, Max: 30},
		Acceptance:      RangeConfig{Min: -50, Max: 100},
		Sensor: SensorConfig{
			ID:            "TEMP_001",
			Location:      "Office Building - Floor 1",
			Mode:          ModeSimulated,
			DeviceTimeout: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Port: "8080",
	}
}

// Load reads configuration in layers: defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables (a .env file is honored).
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found or error loading it", "error", err)
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv("ETL_POLLING_INTERVAL"); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("invalid ETL_POLLING_INTERVAL: %w", err)
		}
		cfg.PollingInterval = d
	}
	if v := os.Getenv("DEVICE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DEVICE_TIMEOUT: %w", err)
		}
		cfg.Sensor.DeviceTimeout = d
	}

	cfg.MaxRecords = getenvInt("MAX_RECORDS", cfg.MaxRecords)

	var err error
	floats := []struct {
		key string
		dst *float64
	}{
		{"MIN_TEMP", &cfg.Simulation.Min},
		{"MAX_TEMP", &cfg.Simulation.Max},
		{"VALID_MIN_TEMP", &cfg.Acceptance.Min},
		{"VALID_MAX_TEMP", &cfg.Acceptance.Max},
	}
	for _, f := range floats {
		if *f.dst, err = getenvFloat(f.key, *f.dst); err != nil {
			return err
		}
	}

	cfg.Sensor.ID = getenvDefault("SENSOR_ID", cfg.Sensor.ID)
	cfg.Sensor.Location = getenvDefault("SENSOR_LOCATION", cfg.Sensor.Location)
	cfg.Sensor.Mode = strings.ToLower(getenvDefault("SENSOR_MODE", cfg.Sensor.Mode))
	cfg.Sensor.DeviceURL = getenvDefault("DEVICE_URL", cfg.Sensor.DeviceURL)

	cfg.Log.Level = strings.ToLower(getenvDefault("LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(getenvDefault("LOG_FORMAT", cfg.Log.Format))
	cfg.Port = getenvDefault("PORT", cfg.Port)
	return nil
}

// Validate checks field constraints and cross-field invariants.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: failed %q constraint", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	if c.Sensor.Mode == ModeDevice && c.Sensor.DeviceURL == "" {
		return errors.New("device url is required in device mode")
	}
	return nil
}

// parseInterval accepts a Go duration ("5s") or a bare number of milliseconds ("5000").
func parseInterval(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
