package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Imagery      ImageryConfig      `koanf:"imagery"`
	Pipeline     PipelineConfig     `koanf:"pipeline"`
	Violation    ViolationConfig    `koanf:"violation"`
	EarlyWarning EarlyWarningConfig `koanf:"early_warning"`
	Alerts       AlertsConfig       `koanf:"alerts"`
	Security     SecurityConfig     `koanf:"security"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	SamplingRate  float64       `koanf:"sampling_rate" validate:"min=0,max=1"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
	BatchTimeout  time.Duration `koanf:"batch_timeout"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type ImageryConfig struct {
	ProviderURL   string        `koanf:"provider_url" validate:"omitempty,url"`
	APIKey        string        `koanf:"api_key"`
	Timeout       time.Duration `koanf:"timeout"`
	RateLimitRPS  int           `koanf:"rate_limit_rps" validate:"min=1"`
	MaxCloudCover float64       `koanf:"max_cloud_cover" validate:"min=0,max=1"`
	ResolutionM   float64       `koanf:"resolution_m" validate:"gt=0"`
}

type PipelineConfig struct {
	SigmaThreshold  float64       `koanf:"sigma_threshold" validate:"gt=0"`
	NDVICutoff      float64       `koanf:"ndvi_cutoff" validate:"gte=-1,lte=1"`
	CloudPenaltyCap float64       `koanf:"cloud_penalty_cap" validate:"min=0,max=1"`
	MinConfidence   float64       `koanf:"min_confidence" validate:"min=0,max=1"`
	SmoothingWindow int           `koanf:"smoothing_window" validate:"min=3"`
	MinHistory      int           `koanf:"min_history" validate:"min=1"`
	LookbackYears   int           `koanf:"lookback_years" validate:"min=1"`
	BaselineTTL     time.Duration `koanf:"baseline_ttl"`
	MaxRetries      int           `koanf:"max_retries" validate:"min=0"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
}

type ViolationConfig struct {
	MinAreaHa   float64 `koanf:"min_area_ha" validate:"gt=0"`
	GrowthAbsHa float64 `koanf:"growth_abs_ha" validate:"gt=0"`
	GrowthRatio float64 `koanf:"growth_ratio" validate:"gt=0"`
	LowMaxHa    float64 `koanf:"low_max_ha" validate:"gt=0"`
	MediumMaxHa float64 `koanf:"medium_max_ha" validate:"gt=0"`
	HighMaxHa   float64 `koanf:"high_max_ha" validate:"gt=0"`
}

type EarlyWarningConfig struct {
	BufferDistanceM   float64 `koanf:"buffer_distance_m" validate:"gt=0"`
	CriticalDistanceM float64 `koanf:"critical_distance_m" validate:"gt=0"`
}

type AlertsConfig struct {
	WebhookURL     string        `koanf:"webhook_url" validate:"omitempty,url"`
	WebhookSecret  string        `koanf:"webhook_secret"`
	WebhookTimeout time.Duration `koanf:"webhook_timeout"`
	WebhookRetries int           `koanf:"webhook_retries" validate:"min=1"`
	// MinSeverity is the lowest severity delivered to the webhook endpoint.
	MinSeverity string `koanf:"min_severity" validate:"oneof=LOW MEDIUM HIGH CRITICAL"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second" validate:"min=1"`
	BurstSize         int `koanf:"burst_size" validate:"min=1"`
}

func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Imagery: ImageryConfig{
			Timeout:       30 * time.Second,
			RateLimitRPS:  5,
			MaxCloudCover: 0.40,
			ResolutionM:   10,
		},
		Pipeline: PipelineConfig{
			SigmaThreshold:  2.0,
			NDVICutoff:      0.4,
			CloudPenaltyCap: 0.15,
			MinConfidence:   0.6,
			SmoothingWindow: 7,
			MinHistory:      5,
			LookbackYears:   5,
			BaselineTTL:     6 * time.Hour,
			MaxRetries:      3,
			RetryBackoff:    500 * time.Millisecond,
		},
		Violation: ViolationConfig{
			MinAreaHa:   0.01,
			GrowthAbsHa: 0.1,
			GrowthRatio: 0.25,
			LowMaxHa:    0.05,
			MediumMaxHa: 0.5,
			HighMaxHa:   2.0,
		},
		EarlyWarning: EarlyWarningConfig{
			BufferDistanceM:   500,
			CriticalDistanceM: 100,
		},
		Alerts: AlertsConfig{
			WebhookTimeout: 10 * time.Second,
			WebhookRetries: 3,
			MinSeverity:    "LOW",
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			OTLPEndpoint:  "localhost:4317",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
			BatchTimeout:  5 * time.Second,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional.
	_ = k.Load(file.Provider("configs/config.yaml"), yaml.Parser())

	if err := k.Load(env.Provider("EXMON_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "EXMON_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded configuration's invariants, including the
// ordering of the severity bands.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	v := c.Violation
	if !(v.LowMaxHa < v.MediumMaxHa && v.MediumMaxHa < v.HighMaxHa) {
		return fmt.Errorf("severity bands must be strictly increasing: %f, %f, %f",
			v.LowMaxHa, v.MediumMaxHa, v.HighMaxHa)
	}
	if c.EarlyWarning.CriticalDistanceM > c.EarlyWarning.BufferDistanceM {
		return fmt.Errorf("critical distance %f exceeds buffer distance %f",
			c.EarlyWarning.CriticalDistanceM, c.EarlyWarning.BufferDistanceM)
	}
	return nil
}
