package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Events     EventsConfig     `yaml:"events"`
	Backends   BackendsConfig   `yaml:"backends"`
	Cache      CacheConfig      `yaml:"cache"`
	Layers     []LayerConfig    `yaml:"layers"`
	Targets    []TargetConfig   `yaml:"targets"`
	Registry   RegistryConfig   `yaml:"registry"`
	Contextual ContextualConfig `yaml:"contextual"`
	Tuner      TunerConfig      `yaml:"tuner"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
	RateLimit   int    `yaml:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type EventsConfig struct {
	URL string `yaml:"url"`
}

type BackendConfig struct {
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

type BackendsConfig struct {
	Embedding  BackendConfig `yaml:"embedding"`
	Retrieval  BackendConfig `yaml:"retrieval"`
	Classifier BackendConfig `yaml:"classifier"`
}

type CacheConfig struct {
	Enabled  bool  `yaml:"enabled"`
	TTLMs    int   `yaml:"ttl_ms"`
	MaxBytes int64 `yaml:"max_bytes"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

// LayerConfig is one cascade layer. Attempt order follows ascending ID.
type LayerConfig struct {
	ID                  int     `yaml:"id"`
	Name                string  `yaml:"name"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MaxLatencyBudgetMs  int     `yaml:"max_latency_budget_ms"`
}

type TargetConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Endpoint    string   `yaml:"endpoint"`
	Keywords    []string `yaml:"keywords"`
}

type RegistryConfig struct {
	MinClassifierSamples int `yaml:"min_classifier_samples"`
}

type ContextualConfig struct {
	BlendAlpha float64 `yaml:"blend_alpha"`
	Neighbors  int     `yaml:"neighbors"`
}

type TunerConfig struct {
	IntervalMs  int     `yaml:"interval_ms"`
	WindowHours int     `yaml:"window_hours"`
	MinSamples  int     `yaml:"min_samples"`
	StepSize    float64 `yaml:"step_size"`
	Aggressive  bool    `yaml:"aggressive"`
}

func (t TunerConfig) Interval() time.Duration {
	return time.Duration(t.IntervalMs) * time.Millisecond
}

func (t TunerConfig) Window() time.Duration {
	return time.Duration(t.WindowHours) * time.Hour
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
			RateLimit:   120,
		},
		Events: EventsConfig{
			URL: "nats://localhost:4222",
		},
		Backends: BackendsConfig{
			Embedding:  BackendConfig{URL: "http://localhost:8081", TimeoutMs: 5000},
			Retrieval:  BackendConfig{URL: "http://localhost:8082", TimeoutMs: 5000},
			Classifier: BackendConfig{URL: "http://localhost:8083", TimeoutMs: 5000},
		},
		Cache: CacheConfig{
			Enabled:  true,
			TTLMs:    3600000,
			MaxBytes: 16 << 20,
		},
		Layers: []LayerConfig{
			{ID: 1, Name: "keyword", ConfidenceThreshold: 0.85, MaxLatencyBudgetMs: 50},
			{ID: 2, Name: "semantic", ConfidenceThreshold: 0.70, MaxLatencyBudgetMs: 500},
			{ID: 3, Name: "contextual", ConfidenceThreshold: 0.65, MaxLatencyBudgetMs: 1500},
			{ID: 4, Name: "classifier", ConfidenceThreshold: 0.60, MaxLatencyBudgetMs: 2000},
		},
		Registry: RegistryConfig{
			MinClassifierSamples: 25,
		},
		Contextual: ContextualConfig{
			BlendAlpha: 0.6,
			Neighbors:  10,
		},
		Tuner: TunerConfig{
			IntervalMs:  3600000,
			WindowHours: 168,
			MinSamples:  100,
			StepSize:    0.05,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Layers) == 0 {
		return fmt.Errorf("at least one cascade layer required")
	}
	seen := make(map[string]bool, len(c.Layers))
	for i, l := range c.Layers {
		if l.Name == "" {
			return fmt.Errorf("layer %d has no name", l.ID)
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate layer %q", l.Name)
		}
		seen[l.Name] = true
		if l.ConfidenceThreshold < 0 || l.ConfidenceThreshold > 1 {
			return fmt.Errorf("layer %q threshold %.4f out of range [0,1]", l.Name, l.ConfidenceThreshold)
		}
		if i > 0 && c.Layers[i-1].ID >= l.ID {
			return fmt.Errorf("layers must be listed in ascending id order")
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CASCADE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("CASCADE_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("CASCADE_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("CASCADE_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("CASCADE_EVENTS_URL"); v != "" {
		cfg.Events.URL = v
	}
	if v := os.Getenv("CASCADE_EMBEDDING_URL"); v != "" {
		cfg.Backends.Embedding.URL = v
	}
	if v := os.Getenv("CASCADE_RETRIEVAL_URL"); v != "" {
		cfg.Backends.Retrieval.URL = v
	}
	if v := os.Getenv("CASCADE_CLASSIFIER_URL"); v != "" {
		cfg.Backends.Classifier.URL = v
	}
	if v := os.Getenv("CASCADE_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("CASCADE_TUNER_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tuner.IntervalMs = n
		}
	}
	if v := os.Getenv("CASCADE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
