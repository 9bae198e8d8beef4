package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	LLM            LLMConfig            `yaml:"llm"`
	Classification ClassificationConfig `yaml:"classification"`
	Evaluation     EvaluationConfig     `yaml:"evaluation"`
	Sources        SourcesConfig        `yaml:"sources"`
	Batch          BatchConfig          `yaml:"batch"`
	Prompts        PromptsConfig        `yaml:"prompts"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // sqlite | postgres
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// LLMConfig holds model-invocation configuration shared by all calls.
type LLMConfig struct {
	Provider       string        `yaml:"provider"` // default provider for extraction
	Model          string        `yaml:"model"`
	Temperature    float32       `yaml:"temperature"`
	OpenAIAPIKey   string        `yaml:"-"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	GroqAPIKey     string        `yaml:"-"`
	GroqBaseURL    string        `yaml:"groq_base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// ClassificationConfig selects the dedicated HS code model.
type ClassificationConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// EvaluationConfig selects the content judge model and fallback behaviour.
type EvaluationConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	Temperature       float32 `yaml:"temperature"`
	HeuristicFallback bool    `yaml:"heuristic_fallback"`
	MaxInputChars     int     `yaml:"max_input_chars"`
}

// SourcesConfig holds fetch settings.
type SourcesConfig struct {
	WebDelay     time.Duration `yaml:"web_delay"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	UserAgent    string        `yaml:"user_agent"`
}

// BatchConfig holds batch expansion bounds.
type BatchConfig struct {
	MaxRows  int `yaml:"max_rows"`
	WarnRows int `yaml:"warn_rows"`
}

// PromptsConfig points at the template directory; empty means the embedded defaults.
type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

// LoadConfig loads configuration from an optional .env file, environment variables,
// and finally an optional YAML file named by EXTRACTOR_CONFIG.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewAppError(CodeConfig, "load .env", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:extractor.db?_pragma=foreign_keys(1)"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr: getEnv("GRPC_ADDR", ":8081"),
		},
		LLM: LLMConfig{
			Provider:       getEnv("LLM_PROVIDER", "groq"),
			Model:          getEnv("LLM_MODEL", "meta-llama/llama-4-maverick-17b-128e-instruct"),
			Temperature:    getEnvAsFloat32("LLM_TEMPERATURE", 0.2),
			OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			GroqAPIKey:     getEnv("GROQ_API_KEY", ""),
			GroqBaseURL:    getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			Timeout:        getEnvAsDuration("LLM_TIMEOUT", 90*time.Second),
			AttemptTimeout: getEnvAsDuration("ATTEMPT_TIMEOUT", 10*time.Minute),
		},
		Classification: ClassificationConfig{
			Provider:    getEnv("HSCODE_PROVIDER", "groq"),
			Model:       getEnv("HSCODE_MODEL", "deepseek-r1-distill-llama-70b"),
			Temperature: getEnvAsFloat32("HSCODE_TEMPERATURE", 0.1),
		},
		Evaluation: EvaluationConfig{
			Enabled:           getEnvAsBool("EVAL_ENABLED", true),
			Provider:          getEnv("EVAL_PROVIDER", "openai"),
			Model:             getEnv("EVAL_MODEL", "gpt-4o-mini"),
			Temperature:       getEnvAsFloat32("EVAL_TEMPERATURE", 0.1),
			HeuristicFallback: getEnvAsBool("EVAL_CONTENT_FALLBACK", false),
			MaxInputChars:     getEnvAsInt("EVAL_MAX_INPUT_CHARS", 50000),
		},
		Sources: SourcesConfig{
			WebDelay:     getEnvAsDuration("WEB_FETCH_DELAY", 2*time.Second),
			FetchTimeout: getEnvAsDuration("WEB_FETCH_TIMEOUT", 30*time.Second),
			UserAgent:    getEnv("WEB_USER_AGENT", "catalog-extractor/1.0 (+product data import)"),
		},
		Batch: BatchConfig{
			MaxRows:  getEnvAsInt("BATCH_MAX_ROWS", 500),
			WarnRows: getEnvAsInt("BATCH_WARN_ROWS", 100),
		},
		Prompts: PromptsConfig{
			Dir: getEnv("PROMPT_DIR", ""),
		},
	}

	if path := getEnv("EXTRACTOR_CONFIG", ""); path != "" {
		if err := cfg.overlayYAML(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// overlayYAML merges a YAML document over the env-derived values; keys absent from
// the file keep their current value.
func (c *Config) overlayYAML(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return NewAppError(CodeConfig, "read config file "+path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return NewAppError(CodeConfig, "parse config file "+path, err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Check(c.Database.Driver == "sqlite" || c.Database.Driver == "postgres", "DB_DRIVER", c.Database.Driver, "must be sqlite or postgres")
	v.Field("DB_URL", c.Database.DSN, Required)
	v.Check(c.Batch.MaxRows > 0, "BATCH_MAX_ROWS", c.Batch.MaxRows, "must be positive")
	v.Check(c.Batch.WarnRows > 0 && c.Batch.WarnRows <= c.Batch.MaxRows, "BATCH_WARN_ROWS", c.Batch.WarnRows, "must be positive and not above BATCH_MAX_ROWS")
	v.Check(c.Sources.WebDelay >= 0, "WEB_FETCH_DELAY", c.Sources.WebDelay, "must not be negative")
	// The judge is optional: without a key the content scorer uses the heuristic.
	for _, p := range []string{c.LLM.Provider, c.Classification.Provider} {
		if key := c.APIKeyFor(p); key == "" {
			v.Check(false, strings.ToUpper(p)+"_API_KEY", "", fmt.Sprintf("is required for provider %q", p))
		}
	}
	return ValidateAndReturnError(v)
}

// APIKeyFor returns the configured key for a provider id.
func (c *Config) APIKeyFor(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return c.LLM.OpenAIAPIKey
	case "groq":
		return c.LLM.GroqAPIKey
	default:
		return ""
	}
}
