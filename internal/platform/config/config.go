// Package config loads runtime settings from defaults, an optional YAML file and the environment.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/rotisserie/eris"
)

// Config holds runtime configuration values for the wikiloult server.
type Config struct {
	DBPath            string
	ServerPort        int
	LogLevel          string
	SentryDSN         string
	Environment       string
	ShutdownGrace     time.Duration
	Salt              string
	AdminCookies      []string
	AudioRenderFolder string
	SpeechAPIKey      string
	SpeechEndpoint    string
	SpeechModel       string
	StoreTimeout      time.Duration
	PurgeGrace        time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int
}

const (
	defaultDBPath            = "./data/wikiloult.db"
	defaultServerPort        = 8080
	defaultLogLevel          = "info"
	defaultEnvironment       = "development"
	defaultShutdownGrace     = 10 * time.Second
	defaultSalt              = "wikiloult-development-salt"
	defaultAudioRenderFolder = "./data/audio"
	defaultSpeechModel       = "tts-1"
	defaultStoreTimeout      = 5 * time.Second
	defaultRateLimitRPS      = 5
	defaultRateLimitBurst    = 20

	productionEnvironment = "production"
	maxFileSize           = 1 << 20
)

// fileConfig mirrors the environment keys in snake case. Durations are Go duration strings.
type fileConfig struct {
	DBPath            string   `yaml:"db_path"`
	ServerPort        int      `yaml:"server_port"`
	LogLevel          string   `yaml:"log_level"`
	SentryDSN         string   `yaml:"sentry_dsn"`
	Environment       string   `yaml:"env"`
	ShutdownGrace     string   `yaml:"shutdown_grace"`
	Salt              string   `yaml:"salt"`
	AdminCookies      []string `yaml:"admin_cookies"`
	AudioRenderFolder string   `yaml:"audio_render_folder"`
	SpeechAPIKey      string   `yaml:"speech_api_key"`
	SpeechEndpoint    string   `yaml:"speech_endpoint"`
	SpeechModel       string   `yaml:"speech_model"`
	StoreTimeout      string   `yaml:"store_timeout"`
	PurgeGrace        string   `yaml:"purge_grace"`
	RateLimitRPS      float64  `yaml:"rate_limit_rps"`
	RateLimitBurst    int      `yaml:"rate_limit_burst"`
}

// Load builds the configuration. Values from the YAML file at path (when
// non-empty) override defaults, and environment variables override both.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with production safeguards.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, productionEnvironment)
}

// SpeechEnabled reports whether title audio should be rendered.
func (c *Config) SpeechEnabled() bool {
	return c.SpeechAPIKey != ""
}

func defaults() *Config {
	return &Config{
		DBPath:            defaultDBPath,
		ServerPort:        defaultServerPort,
		LogLevel:          defaultLogLevel,
		Environment:       defaultEnvironment,
		ShutdownGrace:     defaultShutdownGrace,
		AudioRenderFolder: defaultAudioRenderFolder,
		SpeechModel:       defaultSpeechModel,
		StoreTimeout:      defaultStoreTimeout,
		RateLimitRPS:      defaultRateLimitRPS,
		RateLimitBurst:    defaultRateLimitBurst,
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "reading config file %s", path)
	}
	if len(data) > maxFileSize {
		return eris.Errorf("config file %s exceeds %d bytes", path, maxFileSize)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var file fileConfig
	if err := yaml.UnmarshalWithOptions(data, &file, yaml.Strict()); err != nil {
		return eris.Wrapf(err, "parsing config file %s", path)
	}

	setString(&c.DBPath, file.DBPath)
	setString(&c.LogLevel, file.LogLevel)
	setString(&c.SentryDSN, file.SentryDSN)
	setString(&c.Environment, file.Environment)
	setString(&c.Salt, file.Salt)
	setString(&c.AudioRenderFolder, file.AudioRenderFolder)
	setString(&c.SpeechAPIKey, file.SpeechAPIKey)
	setString(&c.SpeechEndpoint, file.SpeechEndpoint)
	setString(&c.SpeechModel, file.SpeechModel)

	if file.ServerPort != 0 {
		c.ServerPort = file.ServerPort
	}
	if file.RateLimitRPS != 0 {
		c.RateLimitRPS = file.RateLimitRPS
	}
	if file.RateLimitBurst != 0 {
		c.RateLimitBurst = file.RateLimitBurst
	}
	if file.AdminCookies != nil {
		c.AdminCookies = file.AdminCookies
	}

	durations := []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{"shutdown_grace", file.ShutdownGrace, &c.ShutdownGrace},
		{"store_timeout", file.StoreTimeout, &c.StoreTimeout},
		{"purge_grace", file.PurgeGrace, &c.PurgeGrace},
	}
	for _, duration := range durations {
		if duration.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(duration.raw)
		if err != nil {
			return eris.Wrapf(err, "invalid %s value: %s", duration.key, duration.raw)
		}
		*duration.target = parsed
	}

	return nil
}

func (c *Config) applyEnv() error {
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.SentryDSN = getEnv("SENTRY_DSN", c.SentryDSN)
	c.Environment = getEnv("ENV", c.Environment)
	c.Salt = getEnv("SALT", c.Salt)
	c.AudioRenderFolder = getEnv("AUDIO_RENDER_FOLDER", c.AudioRenderFolder)
	c.SpeechAPIKey = getEnv("SPEECH_API_KEY", c.SpeechAPIKey)
	c.SpeechEndpoint = getEnv("SPEECH_ENDPOINT", c.SpeechEndpoint)
	c.SpeechModel = getEnv("SPEECH_MODEL", c.SpeechModel)

	if raw := os.Getenv("ADMIN_COOKIES"); raw != "" {
		cookies, err := parseCookies(raw)
		if err != nil {
			return eris.Wrap(err, "parsing ADMIN_COOKIES")
		}
		c.AdminCookies = cookies
	}

	if raw := os.Getenv("SERVER_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return eris.Wrapf(err, "invalid SERVER_PORT value: %s", raw)
		}
		c.ServerPort = port
	}

	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		rps, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid RATE_LIMIT_RPS value: %s", raw)
		}
		c.RateLimitRPS = rps
	}

	if raw := os.Getenv("RATE_LIMIT_BURST"); raw != "" {
		burst, err := strconv.Atoi(raw)
		if err != nil {
			return eris.Wrapf(err, "invalid RATE_LIMIT_BURST value: %s", raw)
		}
		c.RateLimitBurst = burst
	}

	for key, target := range map[string]*time.Duration{
		"STORE_TIMEOUT":  &c.StoreTimeout,
		"SHUTDOWN_GRACE": &c.ShutdownGrace,
		"PURGE_GRACE":    &c.PurgeGrace,
	} {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return eris.Wrapf(err, "invalid %s value: %s", key, raw)
		}
		*target = parsed
	}

	return nil
}

func (c *Config) validate() error {
	if c.Salt == "" {
		if c.IsProduction() {
			return eris.New("SALT is required in production")
		}
		c.Salt = defaultSalt
	}

	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return eris.Errorf("invalid SERVER_PORT value: %d", c.ServerPort)
	}
	if c.StoreTimeout <= 0 {
		return eris.Errorf("invalid STORE_TIMEOUT value: %s", c.StoreTimeout)
	}
	if c.PurgeGrace < 0 {
		return eris.Errorf("invalid PURGE_GRACE value: %s", c.PurgeGrace)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return eris.New("rate limit settings must be positive")
	}

	return nil
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseCookies(raw string) ([]string, error) {
	// Accept either a JSON array of strings or an object with a `cookies` field.
	var arrayInput []string
	if err := json.Unmarshal([]byte(raw), &arrayInput); err == nil {
		return compact(arrayInput), nil
	}

	var objectInput struct {
		Cookies []string `json:"cookies"`
	}
	if err := json.Unmarshal([]byte(raw), &objectInput); err != nil {
		return nil, eris.Wrap(err, "decoding JSON")
	}

	if len(objectInput.Cookies) == 0 {
		return nil, eris.New("cookies list is empty")
	}

	return compact(objectInput.Cookies), nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
