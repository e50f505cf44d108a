package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// DefaultLLMBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultLLMBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

type Config struct {
	Server ServerConfig `yaml:"server"`
	LLM    LLMConfig    `yaml:"llm"`
	Upload UploadConfig `yaml:"upload"`
	Relay  RelayConfig  `yaml:"relay"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
	Users  []User       `yaml:"users"`
}

type ServerConfig struct {
	Port           int           `yaml:"port" env:"PORT"`
	StaticDir      string        `yaml:"static_dir" env:"STATIC_DIR"`
	RateLimit      int           `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateWindow     time.Duration `yaml:"rate_window" env:"RATE_WINDOW"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type LLMConfig struct {
	APIKey        string        `yaml:"api_key" env:"LLM_API_KEY"`
	Model         string        `yaml:"model" env:"LLM_MODEL"`
	BaseURL       string        `yaml:"base_url" env:"LLM_BASE_URL"`
	AllowedModels []string      `yaml:"allowed_models" env:"LLM_ALLOWED_MODELS" envSeparator:","`
	Timeout       time.Duration `yaml:"timeout" env:"LLM_TIMEOUT"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes" env:"UPLOAD_MAX_BYTES"`
}

type RelayConfig struct {
	RedisAddr       string `yaml:"redis_addr" env:"RELAY_REDIS_ADDR"`
	RedisPassword   string `yaml:"redis_password" env:"RELAY_REDIS_PASSWORD"`
	RedisChannel    string `yaml:"redis_channel" env:"RELAY_REDIS_CHANNEL"`
	SendBuffer      int    `yaml:"send_buffer"`
	MaxMessageBytes int64  `yaml:"max_message_bytes"`
	// MaxEditsInFlight bounds concurrent edits per connection.
	MaxEditsInFlight int `yaml:"max_edits_in_flight"`
}

type AuthConfig struct {
	Enabled          bool   `yaml:"enabled" env:"AUTH_ENABLED"`
	JWTSecret        string `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// User is a drafter allowed to log in. PasswordHash is a bcrypt hash.
type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A missing file is not an error so the
// service can be configured from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 60
	}
	if c.Server.RateWindow == 0 {
		c.Server.RateWindow = time.Minute
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = DefaultLLMBaseURL
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 120 * time.Second
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = 5 << 20
	}
	if c.Relay.RedisChannel == "" {
		c.Relay.RedisChannel = "contract-relay"
	}
	if c.Relay.SendBuffer == 0 {
		c.Relay.SendBuffer = 32
	}
	if c.Relay.MaxMessageBytes == 0 {
		c.Relay.MaxMessageBytes = 1 << 20
	}
	if c.Relay.MaxEditsInFlight <= 0 {
		c.Relay.MaxEditsInFlight = 2
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(c.LLM.APIKey) == "" {
		result = multierror.Append(result, errors.New("llm.api_key (LLM_API_KEY) is required"))
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		result = multierror.Append(result, errors.New("llm.model (LLM_MODEL) is required"))
	}
	if c.Server.RateLimit < 0 {
		result = multierror.Append(result, fmt.Errorf("server.rate_limit must not be negative, got %d", c.Server.RateLimit))
	}
	if c.Upload.MaxBytes < 0 {
		result = multierror.Append(result, fmt.Errorf("upload.max_bytes must not be negative, got %d", c.Upload.MaxBytes))
	}
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			result = multierror.Append(result, errors.New("auth.jwt_secret is required when auth is enabled"))
		}
		if len(c.Users) == 0 {
			result = multierror.Append(result, errors.New("auth is enabled but no users are configured"))
		}
	}

	return result.ErrorOrNil()
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
