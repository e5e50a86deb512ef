package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Model     ModelConfig     `yaml:"model"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Audit     AuditConfig     `yaml:"audit"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	CORSOrigins  []string      `yaml:"corsOrigins"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
	// only set behind a reverse proxy that rewrites X-Forwarded-For
	TrustProxy bool `yaml:"trustProxy"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

type ModelConfig struct {
	Provider           string        `yaml:"provider"` // openai | anthropic
	ModelID            string        `yaml:"modelId"`
	BaseURL            string        `yaml:"baseUrl"`
	Temperature        float32       `yaml:"temperature"`
	InsightTemperature float32       `yaml:"insightTemperature"`
	MaxTokens          int           `yaml:"maxTokens"`
	JSONMode           bool          `yaml:"jsonMode"`
	Timeout            time.Duration `yaml:"timeout"`
	// client-side bound on model calls per second, 0 = unlimited
	CallsPerSecond float64 `yaml:"callsPerSecond"`
	OpenAIKey      string  `yaml:"openaiKey"`
	AnthropicKey   string  `yaml:"anthropicKey"`
}

type AnalysisConfig struct {
	AnomalyThreshold   float64 `yaml:"anomalyThreshold"`
	SampleRows         int     `yaml:"sampleRows"`
	InsightRows        int     `yaml:"insightRows"`
	InsightAnomalyRows int     `yaml:"insightAnomalyRows"`
	DateColumn         string  `yaml:"dateColumn"`
	SalesValueColumn   string  `yaml:"salesValueColumn"`
	TicketIDColumn     string  `yaml:"ticketIdColumn"`
}

type SandboxConfig struct {
	Binary         string        `yaml:"binary"`
	Image          string        `yaml:"image"`
	Timeout        time.Duration `yaml:"timeout"`
	MemoryMB       int           `yaml:"memoryMb"`
	CPUs           float64       `yaml:"cpus"`
	PidsLimit      int           `yaml:"pidsLimit"`
	MaxOutputBytes int           `yaml:"maxOutputBytes"`
	WorkDir        string        `yaml:"workDir"`
	AllowedImports []string      `yaml:"allowedImports"`
	DenyPatterns   []string      `yaml:"denyPatterns"`
}

type AuditConfig struct {
	Driver   string         `yaml:"driver"` // none | mysql | postgres
	Database DatabaseConfig `yaml:"database"`
	Minio    MinioConfig    `yaml:"minio"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslMode"`
}

type MinioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"useSSL"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Default returns a config that runs locally with only an API key set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			CORSOrigins:  []string{"*"},
			MaxBodyBytes: 32 << 20,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Model: ModelConfig{
			Provider:           "openai",
			ModelID:            "gpt-4o-mini",
			Temperature:        0.3,
			InsightTemperature: 0.7,
			MaxTokens:          1500,
			JSONMode:           true,
			Timeout:            60 * time.Second,
		},
		Analysis: AnalysisConfig{
			AnomalyThreshold:   2.0,
			SampleRows:         5,
			InsightRows:        10,
			InsightAnomalyRows: 5,
			DateColumn:         "date",
			SalesValueColumn:   "sales_amount",
			TicketIDColumn:     "ticket_id",
		},
		Sandbox: SandboxConfig{
			Binary:         "docker",
			Image:          "insights-copilot/sandbox:latest",
			Timeout:        20 * time.Second,
			MemoryMB:       512,
			CPUs:           1,
			PidsLimit:      64,
			MaxOutputBytes: 64 * 1024,
			WorkDir:        "./temp",
		},
		Audit: AuditConfig{
			Driver:   "none",
			Database: DatabaseConfig{Host: "localhost", SSLMode: "disable"},
			Minio:    MinioConfig{BucketName: "copilot-audit", Region: "us-east-1"},
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
	}
}

// Load baca file config.yaml di atas default. File yang tidak ada bukan error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			zap.L().Debug("config file not found, using defaults", zap.String("path", path))
		case err != nil:
			return nil, eris.Wrapf(err, "config: read %s", path)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, eris.Wrapf(err, "config: parse %s", path)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// secrets sebaiknya dari env, bukan file
func (c *Config) applyEnv() {
	envs := []struct {
		name string
		dst  *string
	}{
		{"OPENAI_API_KEY", &c.Model.OpenAIKey},
		{"ANTHROPIC_API_KEY", &c.Model.AnthropicKey},
		{"COPILOT_DB_PASSWORD", &c.Audit.Database.Password},
		{"MINIO_ACCESS_KEY", &c.Audit.Minio.AccessKey},
		{"MINIO_SECRET_KEY", &c.Audit.Minio.SecretKey},
	}
	for _, e := range envs {
		if v := os.Getenv(e.name); v != "" {
			*e.dst = v
		}
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return eris.Errorf("config: server.port %d out of range", c.Server.Port)
	case c.Model.Provider != "openai" && c.Model.Provider != "anthropic":
		return eris.Errorf("config: unknown model.provider %q", c.Model.Provider)
	case c.Model.Temperature < 0 || c.Model.Temperature > 2:
		return eris.Errorf("config: model.temperature %v outside [0,2]", c.Model.Temperature)
	case c.Model.InsightTemperature < 0 || c.Model.InsightTemperature > 2:
		return eris.Errorf("config: model.insightTemperature %v outside [0,2]", c.Model.InsightTemperature)
	case c.Model.Timeout <= 0:
		return eris.New("config: model.timeout must be positive")
	case c.Analysis.AnomalyThreshold <= 0 || math.IsNaN(c.Analysis.AnomalyThreshold) || math.IsInf(c.Analysis.AnomalyThreshold, 0):
		return eris.Errorf("config: analysis.anomalyThreshold %v must be a positive number", c.Analysis.AnomalyThreshold)
	case c.Analysis.SampleRows <= 0:
		return eris.New("config: analysis.sampleRows must be positive")
	case c.Sandbox.Timeout <= 0:
		return eris.New("config: sandbox.timeout must be positive")
	}
	switch c.Audit.Driver {
	case "", "none", "mysql", "postgres":
	default:
		return eris.Errorf("config: unknown audit.driver %q", c.Audit.Driver)
	}
	return nil
}

// APIKey returns the key of the configured provider.
func (c *Config) APIKey() string {
	if c.Model.Provider == "anthropic" {
		return c.Model.AnthropicKey
	}
	return c.Model.OpenAIKey
}

// AuditEnabled reports whether questions are recorded.
func (c *Config) AuditEnabled() bool {
	return (c.Audit.Driver != "" && c.Audit.Driver != "none") || c.Audit.Minio.Enabled
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	d := c.Audit.Database
	port := d.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		d.User, d.Password, d.Host, port, d.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	d := c.Audit.Database
	port := d.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// InitLogger replaces the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(lvl)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
