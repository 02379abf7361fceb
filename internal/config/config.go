package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/esg-cli/internal/db"
	"github.com/sells-group/esg-cli/internal/model"
	"github.com/sells-group/esg-cli/internal/resilience"
	"github.com/sells-group/esg-cli/internal/sparql"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	History  HistoryConfig  `yaml:"history" mapstructure:"history"`
	Graph    GraphConfig    `yaml:"graph" mapstructure:"graph"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Defaults DefaultsConfig `yaml:"defaults" mapstructure:"defaults"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the warehouse connection.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// Pool returns the pool sizing for db.Connect.
func (s StoreConfig) Pool() db.PoolConfig {
	return db.PoolConfig{MaxConns: s.MaxConns, MinConns: s.MinConns}
}

// HistoryConfig selects where report_history lives.
type HistoryConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// GraphConfig holds the Stardog connection details.
type GraphConfig struct {
	Endpoint         string  `yaml:"endpoint" mapstructure:"endpoint"`
	Username         string  `yaml:"username" mapstructure:"username"`
	Password         string  `yaml:"password" mapstructure:"password"`
	Database         string  `yaml:"database" mapstructure:"database"`
	Namespace        string  `yaml:"namespace" mapstructure:"namespace"`
	Prefix           string  `yaml:"prefix" mapstructure:"prefix"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RetryAttempts    int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	CircuitThreshold int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// NS returns the ontology namespace queries are built in.
func (g GraphConfig) NS() sparql.Namespace {
	return sparql.Namespace{Prefix: g.Prefix, IRI: g.Namespace}
}

// Retry returns the client retry policy.
func (g GraphConfig) Retry() resilience.RetryPolicy {
	p := resilience.DefaultRetryPolicy()
	p.MaxAttempts = g.RetryAttempts
	return p
}

// CircuitReset returns the breaker reset timeout.
func (g GraphConfig) CircuitReset() time.Duration {
	return time.Duration(g.CircuitResetSecs) * time.Second
}

// Timeout returns the HTTP client timeout.
func (g GraphConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// ScoringConfig bounds external calls made during an aggregation.
type ScoringConfig struct {
	CallTimeoutSecs int `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
}

// CallTimeout returns the per-call bound.
func (s ScoringConfig) CallTimeout() time.Duration {
	return time.Duration(s.CallTimeoutSecs) * time.Second
}

// DefaultsConfig fills request parameters the caller leaves blank.
type DefaultsConfig struct {
	ModelURI   string `yaml:"model_uri" mapstructure:"model_uri"`
	Industry   string `yaml:"industry" mapstructure:"industry"`
	MetricYear string `yaml:"metric_year" mapstructure:"metric_year"`
	Company    string `yaml:"company" mapstructure:"company"`
}

// Request returns the defaults as a request template.
func (d DefaultsConfig) Request() model.Request {
	return model.Request{
		ModelURI:   d.ModelURI,
		Industry:   d.Industry,
		MetricYear: d.MetricYear,
		Company:    d.Company,
	}
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// BatchConfig configures batch scoring.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ESG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a meaningful default are still registered so
	// that AutomaticEnv picks them up on Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("history.driver", "postgres")
	v.SetDefault("history.sqlite_path", "esg-history.db")
	v.SetDefault("graph.endpoint", "")
	v.SetDefault("graph.username", "")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "ESG-new")
	v.SetDefault("graph.namespace", "tag:stardog:designer:ESG4:model:")
	v.SetDefault("graph.prefix", "esg")
	v.SetDefault("graph.timeout_secs", 30)
	v.SetDefault("graph.rate_per_sec", 10)
	v.SetDefault("graph.retry_attempts", 2)
	v.SetDefault("graph.circuit_threshold", 5)
	v.SetDefault("graph.circuit_reset_secs", 30)
	v.SetDefault("scoring.call_timeout_secs", 15)
	v.SetDefault("defaults.model_uri", "esg:TC-SC-110a.1")
	v.SetDefault("defaults.industry", "Semiconductors")
	v.SetDefault("defaults.metric_year", "2022-12-31")
	v.SetDefault("defaults.company", "Soitec SA")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrency", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs: "serve" and "score"
// need the warehouse and the graph store, "history" and "migrate" only need
// the history backend.
func (c *Config) Validate(mode string) error {
	var problems []string
	need := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch c.History.Driver {
	case "postgres":
		need(c.Store.DatabaseURL != "", "store.database_url is required for the postgres history driver")
	case "sqlite":
		need(c.History.SQLitePath != "", "history.sqlite_path is required for the sqlite history driver")
	default:
		problems = append(problems, "history.driver must be postgres or sqlite, got "+c.History.Driver)
	}

	switch mode {
	case "serve", "score":
		need(c.Store.DatabaseURL != "", "store.database_url is required")
		need(c.Graph.Endpoint != "", "graph.endpoint is required")
		need(c.Graph.Database != "", "graph.database is required")
		need(c.Graph.Prefix != "" && c.Graph.Namespace != "", "graph.prefix and graph.namespace are required")
		need(c.Graph.RetryAttempts >= 1, "graph.retry_attempts must be at least 1")
		need(c.Scoring.CallTimeoutSecs >= 0, "scoring.call_timeout_secs must not be negative")
		if mode == "serve" {
			need(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be between 1 and 65535")
		} else {
			need(c.Batch.MaxConcurrency >= 1, "batch.max_concurrency must be at least 1")
		}
	case "history", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
