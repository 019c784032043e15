// CLAUDE:SUMMARY Service configuration: YAML file over defaults, AUTOHVAC_* environment overrides, validation.
// Package config loads the autohvac configuration. Every section has usable
// defaults, so a missing file is not an error for Load("").
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adixon02/AutoHVAC-sub002/climate"
	"github.com/adixon02/AutoHVAC-sub002/geometry"
	"github.com/adixon02/AutoHVAC-sub002/manualj"
	"github.com/adixon02/AutoHVAC-sub002/roomfilter"
	"github.com/adixon02/AutoHVAC-sub002/scale"
	"github.com/adixon02/AutoHVAC-sub002/textract"
	"github.com/adixon02/AutoHVAC-sub002/validate"
)

// Config is the top-level configuration.
type Config struct {
	Log      LogConfig         `yaml:"log"`
	Server   ServerConfig      `yaml:"server"`
	Storage  StorageConfig     `yaml:"storage"`
	Worker   WorkerConfig      `yaml:"worker"`
	Pipeline PipelineConfig    `yaml:"pipeline"`
	Geometry geometry.Options  `yaml:"geometry"`
	Text     textract.Config   `yaml:"text"`
	Scale    scale.Options     `yaml:"scale"`
	Gates    validate.Policy   `yaml:"gates"`
	Filter   roomfilter.Policy `yaml:"filter"`
	AI       AIConfig          `yaml:"ai"`
	OCR      OCRConfig         `yaml:"ocr"`
	Render   RenderConfig      `yaml:"render"`
	Climate  ClimateConfig     `yaml:"climate"`
	ManualJ  manualj.Params    `yaml:"manualj"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// ServerConfig is the HTTP API.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	UploadDir    string        `yaml:"upload_dir"`
	MaxUploadMB  int           `yaml:"max_upload_mb"`
	RatePerSec   float64       `yaml:"rate_per_sec"` // submissions
	RateBurst    int           `yaml:"rate_burst"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig locates the SQLite database shared by jobs, queue, events
// and the climate cache.
type StorageConfig struct {
	DBPath         string        `yaml:"db_path"`
	BusyTimeout    time.Duration `yaml:"busy_timeout"`
	EventRetention time.Duration `yaml:"event_retention"`
}

// WorkerConfig sizes the job worker.
type WorkerConfig struct {
	Name              string        `yaml:"name"`
	Concurrency       int           `yaml:"concurrency"`
	BatchSize         int           `yaml:"batch_size"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	Visibility        time.Duration `yaml:"visibility"`
	MaxAttempts       int           `yaml:"max_attempts"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// PipelineConfig holds per-job limits and timeouts.
type PipelineConfig struct {
	MaxPages     int           `yaml:"max_pages"`
	MaxPDFMB     int           `yaml:"max_pdf_mb"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	TextTimeout  time.Duration `yaml:"text_timeout"`
	AITimeout    time.Duration `yaml:"ai_timeout"` // per attempt
	AIMaxRetries int           `yaml:"ai_max_retries"`
	AIBackoff    time.Duration `yaml:"ai_backoff"`
}

// AIConfig configures the vision model. The key itself is read from the
// environment variable named by APIKeyEnv.
type AIConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"base_url"`
	APIKeyEnv        string        `yaml:"api_key_env"`
	DPI              int           `yaml:"dpi"`
	MaxImagePixels   int           `yaml:"max_image_pixels"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// APIKey returns the key from the environment, empty when unset.
func (a AIConfig) APIKey() string { return os.Getenv(a.APIKeyEnv) }

// OCRConfig configures Tesseract.
type OCRConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"`
}

// RenderConfig configures pdftoppm.
type RenderConfig struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// ClimateConfig selects the climate sources.
type ClimateConfig struct {
	Remote    climate.HTTPConfig `yaml:"remote"`
	APIKeyEnv string             `yaml:"api_key_env"`
	CacheTTL  time.Duration      `yaml:"cache_ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{
			Listen:       ":8080",
			UploadDir:    "uploads",
			MaxUploadMB:  50,
			RatePerSec:   2,
			RateBurst:    10,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:         "autohvac.db",
			BusyTimeout:    10 * time.Second,
			EventRetention: 30 * 24 * time.Hour,
		},
		Worker: WorkerConfig{
			Name:              "worker",
			Concurrency:       2,
			BatchSize:         4,
			PollInterval:      time.Second,
			Visibility:        15 * time.Minute,
			MaxAttempts:       3,
			HeartbeatInterval: 15 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxPages:     10,
			MaxPDFMB:     50,
			JobTimeout:   10 * time.Minute,
			TextTimeout:  2 * time.Minute,
			AITimeout:    60 * time.Second,
			AIMaxRetries: 2,
			AIBackoff:    2 * time.Second,
		},
		Geometry: geometry.Options{
			SampleThreshold: 5000,
			MaxElements:     20000,
			MaxRawSegments:  500000,
			Timeout:         10 * time.Second,
			MinWallLength:   9,
			MinPolygonArea:  100,
		},
		Text: textract.Config{
			MinNativeChars:    20,
			MinPrintableRatio: 0.8,
			OCRDPI:            300,
		},
		Scale:  scale.Options{Tolerance: 0.03},
		Gates:  validate.DefaultPolicy(),
		Filter: roomfilter.DefaultPolicy(),
		AI: AIConfig{
			Enabled:          false,
			Model:            "gpt-4o-mini",
			APIKeyEnv:        "OPENAI_API_KEY",
			DPI:              150,
			MaxImagePixels:   2048,
			BreakerThreshold: 5,
			BreakerReset:     time.Minute,
		},
		OCR:    OCRConfig{Enabled: true, Language: "eng"},
		Render: RenderConfig{Binary: "pdftoppm", Timeout: 30 * time.Second},
		Climate: ClimateConfig{
			Remote: climate.HTTPConfig{
				AttemptTimeout: 5 * time.Second,
				MaxRetries:     2,
				Backoff:        500 * time.Millisecond,
			},
			APIKeyEnv: "AUTOHVAC_CLIMATE_API_KEY",
			CacheTTL:  30 * 24 * time.Hour,
		},
		ManualJ: manualj.DefaultParams(),
	}
}

// Load reads path over Default, applies AUTOHVAC_* environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	envStr := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	envDur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	envBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	envStr("LOG_LEVEL", &c.Log.Level)
	envStr("AUTOHVAC_LOG_LEVEL", &c.Log.Level)
	envStr("AUTOHVAC_LOG_FORMAT", &c.Log.Format)
	envStr("AUTOHVAC_LISTEN", &c.Server.Listen)
	envStr("AUTOHVAC_UPLOAD_DIR", &c.Server.UploadDir)
	envStr("AUTOHVAC_DB_PATH", &c.Storage.DBPath)
	envStr("AUTOHVAC_WORKER_NAME", &c.Worker.Name)
	envInt("AUTOHVAC_WORKER_CONCURRENCY", &c.Worker.Concurrency)
	envInt("AUTOHVAC_MAX_PAGES", &c.Pipeline.MaxPages)
	envDur("AUTOHVAC_JOB_TIMEOUT", &c.Pipeline.JobTimeout)
	envDur("AUTOHVAC_AI_TIMEOUT", &c.Pipeline.AITimeout)
	envBool("AUTOHVAC_AI_ENABLED", &c.AI.Enabled)
	envStr("AUTOHVAC_AI_MODEL", &c.AI.Model)
	envStr("AUTOHVAC_AI_BASE_URL", &c.AI.BaseURL)
	envBool("AUTOHVAC_OCR_ENABLED", &c.OCR.Enabled)
	envStr("AUTOHVAC_CLIMATE_URL", &c.Climate.Remote.BaseURL)
	if v, ok := os.LookupEnv(c.Climate.APIKeyEnv); ok && c.Climate.APIKeyEnv != "" {
		c.Climate.Remote.APIKey = v
	}
	return errors.Join(errs...)
}

// Validate checks the values the service cannot run without.
func (c *Config) Validate() error {
	var errs []string
	if c.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path is required")
	}
	if c.Server.UploadDir == "" {
		errs = append(errs, "server.upload_dir is required")
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, "server.max_upload_mb must be > 0")
	}
	if c.Server.RatePerSec <= 0 || c.Server.RateBurst <= 0 {
		errs = append(errs, "server.rate_per_sec and server.rate_burst must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, "worker.concurrency must be > 0")
	}
	if c.Worker.Visibility <= c.Pipeline.JobTimeout {
		errs = append(errs, "worker.visibility must exceed pipeline.job_timeout")
	}
	if c.Pipeline.MaxPages <= 0 {
		errs = append(errs, "pipeline.max_pages must be > 0")
	}
	if c.Pipeline.JobTimeout <= 0 {
		errs = append(errs, "pipeline.job_timeout must be > 0")
	}
	if c.Pipeline.AITimeout >= c.Pipeline.JobTimeout {
		errs = append(errs, "pipeline.ai_timeout must be shorter than pipeline.job_timeout")
	}
	if c.Scale.Tolerance <= 0 || c.Scale.Tolerance >= 0.5 {
		errs = append(errs, "scale.tolerance must be in (0, 0.5)")
	}
	if c.Gates.MinTotalArea >= c.Gates.MaxTotalArea {
		errs = append(errs, "gates.min_total_area must be below gates.max_total_area")
	}
	if c.AI.Enabled && c.AI.Model == "" {
		errs = append(errs, "ai.model is required when ai.enabled")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q (use json or text)", c.Log.Format))
	}
	if err := c.ManualJ.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MaxUploadBytes is the API upload limit.
func (c *Config) MaxUploadBytes() int64 { return int64(c.Server.MaxUploadMB) << 20 }

// MaxPDFBytes is the per-job document limit.
func (c *Config) MaxPDFBytes() int64 { return int64(c.Pipeline.MaxPDFMB) << 20 }
