// Package config loads the engine's immutable configuration
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ErrLLMNotConfigured is returned when an llm rule exists but no provider is set up
var ErrLLMNotConfigured = errors.New("llm scorer requested but no provider/api key is configured")

// Duration accepts either milliseconds or a Go duration string in JSON
type Duration time.Duration

// UnmarshalJSON decodes 30000 or "30s"
func (d *Duration) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, `"`) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("invalid duration %s: %w", text, err)
	}
	*d = Duration(time.Duration(ms * float64(time.Millisecond)))
	return nil
}

// MarshalJSON encodes the duration as a Go duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Weights are the default soft-score weights used when a rule leaves its own unset
type Weights struct {
	Proximity    float64 `json:"proximity" validate:"min=0,max=100"`
	Availability float64 `json:"availability" validate:"min=0,max=100"`
	Experience   float64 `json:"experience" validate:"min=0,max=100"`
	Performance  float64 `json:"performance" validate:"min=0,max=100"`
}

// Constraints are the global hard-constraint limits
type Constraints struct {
	MaxDistance          float64 `json:"maxDistance" validate:"gt=0"`
	MinConfidence        float64 `json:"minConfidence" validate:"min=0,max=1"`
	MaxGamesPerDay       int     `json:"maxGamesPerDay" validate:"min=0"`
	MaxGamesPerWeek      int     `json:"maxGamesPerWeek" validate:"min=0"`
	MinRestBetweenGames  int     `json:"minRestBetweenGames" validate:"min=0,max=1440"`
	AvoidBackToBack      bool    `json:"avoidBackToBack"`
	PrioritizeExperience bool    `json:"prioritizeExperience"`
}

// MinRest returns the configured rest gap
func (c Constraints) MinRest() time.Duration {
	return time.Duration(c.MinRestBetweenGames) * time.Minute
}

// LLM configures the language-model scoring service
type LLM struct {
	Provider       string   `json:"provider" env:"LLM_PROVIDER" validate:"omitempty,oneof=openai"`
	Model          string   `json:"model" env:"LLM_MODEL"`
	BaseURL        string   `json:"baseURL" env:"LLM_BASE_URL" validate:"omitempty,url"`
	APIKey         string   `json:"-" env:"LLM_API_KEY"`
	Timeout        Duration `json:"timeout" validate:"gt=0"`
	MaxRetries     int      `json:"maxRetries" validate:"min=0,max=10"`
	RetryBaseDelay Duration `json:"retryBaseDelay" validate:"min=0"`
	Temperature    float64  `json:"temperature" validate:"min=0,max=2"`
	MaxTokens      int      `json:"maxTokens" validate:"min=1"`
}

// Configured reports whether an LLM provider can be reached
func (l LLM) Configured() bool {
	return strings.TrimSpace(l.Provider) != "" && strings.TrimSpace(l.APIKey) != ""
}

// Cache configures the LLM response cache
type Cache struct {
	Enabled     bool     `json:"enabled"`
	MaxSize     int      `json:"maxSize" validate:"min=0"`
	TTL         Duration `json:"ttl" validate:"min=0"`
	MemoryLimit int64    `json:"memoryLimit" validate:"min=0"`
}

// Batching configures how a run is split into scoring tasks
type Batching struct {
	Enabled             bool     `json:"enabled"`
	MaxGamesPerBatch    int      `json:"maxGamesPerBatch" validate:"min=1"`
	MaxRefereesPerBatch int      `json:"maxRefereesPerBatch" validate:"min=1"`
	BatchTimeout        Duration `json:"batchTimeout" validate:"gt=0"`
	Workers             int      `json:"workers" validate:"min=1,max=64"`
}

// AlertThresholds trigger alert log lines when crossed
type AlertThresholds struct {
	ResponseTime Duration `json:"responseTime" validate:"min=0"`
	ErrorRate    float64  `json:"errorRate" validate:"min=0,max=1"`
	FallbackRate float64  `json:"fallbackRate" validate:"min=0,max=1"`
}

// Monitoring configures slow request logging and metrics
type Monitoring struct {
	Enabled         bool            `json:"enabled"`
	LogSlowRequests bool            `json:"logSlowRequests"`
	TrackMetrics    bool            `json:"trackMetrics"`
	AlertThresholds AlertThresholds `json:"alertThresholds"`
}

// Engine holds run-level limits
type Engine struct {
	RunTimeout        Duration `json:"runTimeout" validate:"gt=0"`
	Timezone          string   `json:"timezone" env:"ASSIGNER_TIMEZONE" validate:"required"`
	SchedulerInterval Duration `json:"schedulerInterval" validate:"gt=0"`
}

// Server holds process settings that only come from the environment
type Server struct {
	Port            string `env:"PORT" envDefault:"8000"`
	DatabaseURL     string `env:"DATABASE_URL"`
	DataPath        string `env:"DATA_PATH" envDefault:"assigner.db"`
	JWTSecret       string `env:"JWT_SECRET"`
	APIMasterSecret string `env:"API_MASTER_SECRET"`
	AdminUsername   string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword   string `env:"ADMIN_PASSWORD" envDefault:"admin123"`
	OTelEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ReleaseMode     bool   `env:"RELEASE_MODE" envDefault:"true"`
}

// Config is the complete engine configuration
type Config struct {
	Weights     Weights     `json:"weights"`
	Constraints Constraints `json:"constraints"`
	LLM         LLM         `json:"llm"`
	Cache       Cache       `json:"caching"`
	Batching    Batching    `json:"batching"`
	Monitoring  Monitoring  `json:"monitoring"`
	Engine      Engine      `json:"engine"`
	Server      Server      `json:"-"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Weights: Weights{
			Proximity:    40,
			Availability: 30,
			Experience:   20,
			Performance:  10,
		},
		Constraints: Constraints{
			MaxDistance:         50,
			MaxGamesPerDay:      3,
			MaxGamesPerWeek:     10,
			MinRestBetweenGames: 30,
		},
		LLM: LLM{
			Model:          "gpt-4o-mini",
			Timeout:        Duration(30 * time.Second),
			MaxRetries:     2,
			RetryBaseDelay: Duration(500 * time.Millisecond),
			Temperature:    0.3,
			MaxTokens:      1024,
		},
		Cache: Cache{
			Enabled:     true,
			MaxSize:     500,
			TTL:         Duration(time.Hour),
			MemoryLimit: 16 << 20,
		},
		Batching: Batching{
			Enabled:             true,
			MaxGamesPerBatch:    20,
			MaxRefereesPerBatch: 50,
			BatchTimeout:        Duration(time.Minute),
			Workers:             4,
		},
		Monitoring: Monitoring{
			Enabled:         true,
			LogSlowRequests: true,
			TrackMetrics:    true,
			AlertThresholds: AlertThresholds{
				ResponseTime: Duration(10 * time.Second),
				ErrorRate:    0.2,
				FallbackRate: 0.5,
			},
		},
		Engine: Engine{
			RunTimeout:        Duration(5 * time.Minute),
			Timezone:          "UTC",
			SchedulerInterval: Duration(time.Minute),
		},
	}
}

// LoadEnvFiles loads the first .env file found among the candidate paths
func LoadEnvFiles(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", "../.env", "../../.env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Load builds the configuration from defaults, an optional JSON file, and the environment
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a JSON document on top of the defaults without consulting the environment
func Parse(r io.Reader) (Config, error) {
	cfg := Defaults()
	if err := decodeStrict(r, &cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return decodeStrict(file, cfg)
}

// decodeStrict rejects unknown keys and trailing content
func decodeStrict(r io.Reader, cfg *Config) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return err
	}
	var extra any
	if err := decoder.Decode(&extra); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return errors.New("invalid trailing content after JSON object")
}

var validate = validator.New()

// Validate checks ranges and cross-field rules
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c := cfg.Constraints
	if c.MaxGamesPerDay > 0 && c.MaxGamesPerWeek > 0 && c.MaxGamesPerWeek < c.MaxGamesPerDay {
		return fmt.Errorf("invalid config: maxGamesPerWeek (%d) is below maxGamesPerDay (%d)", c.MaxGamesPerWeek, c.MaxGamesPerDay)
	}
	if _, err := time.LoadLocation(cfg.Engine.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", cfg.Engine.Timezone, err)
	}
	return nil
}

// Location returns the time zone used for day and week boundaries
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RequireLLM returns ErrLLMNotConfigured when no provider can serve llm rules
func (c Config) RequireLLM() error {
	if !c.LLM.Configured() {
		return ErrLLMNotConfigured
	}
	return nil
}
