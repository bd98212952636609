package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Avatar2001/retail-analytics-copilot/internal/cache"
	"github.com/Avatar2001/retail-analytics-copilot/internal/llm"
	"github.com/Avatar2001/retail-analytics-copilot/internal/tracing"
)

// Config is the full service configuration. Values come from an optional YAML
// file with COPILOT_* environment overrides.
type Config struct {
	Database struct {
		Path      string `mapstructure:"path"`
		ViewsFile string `mapstructure:"views_file"`
	} `mapstructure:"database"`

	Docs struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"docs"`

	Predictor llm.Config `mapstructure:"predictor"`

	Workflow struct {
		TopK            int           `mapstructure:"top_k"`
		QuestionTimeout time.Duration `mapstructure:"question_timeout"`
	} `mapstructure:"workflow"`

	Cache cache.Config `mapstructure:"cache"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`

	Tracing tracing.Config `mapstructure:"tracing"`
}

// Load reads configuration from path (optional) merged with environment
// overrides, e.g. COPILOT_PREDICTOR_BASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.path", "data/northwind.sqlite")
	v.SetDefault("database.views_file", "")
	v.SetDefault("docs.dir", "docs")
	v.SetDefault("predictor.base_url", "http://localhost:8000")
	v.SetDefault("predictor.timeout", "120s")
	v.SetDefault("workflow.top_k", 3)
	v.SetDefault("workflow.question_timeout", "5m")
	v.SetDefault("cache.addr", "")
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "retail-analytics-copilot")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetEnvPrefix("COPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
