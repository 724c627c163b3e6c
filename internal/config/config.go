// Package config loads the daemon configuration. Precedence: command-line
// flags (applied by cmd/server) over environment variables over the optional
// YAML file over built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "45s" decode; plain
// integers are taken as nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("invalid duration %v", value.Value)
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// StoreBackend selects the persistence backend for panel settings.
type StoreBackend string

const (
	StoreFile     StoreBackend = "file"
	StoreBadger   StoreBackend = "badger"
	StoreRedis    StoreBackend = "redis"
	StorePostgres StoreBackend = "postgres"
	StoreNone     StoreBackend = "none"
)

// StoreConfig configures the settings store.
type StoreConfig struct {
	Backend     StoreBackend `yaml:"backend"`
	Path        string       `yaml:"path"`
	RedisAddr   string       `yaml:"redisAddr"`
	RedisUser   string       `yaml:"redisUser"`
	RedisPass   string       `yaml:"redisPass"`
	RedisDB     int          `yaml:"redisDb"`
	PostgresDSN string       `yaml:"postgresDsn"`
}

// Config is the daemon's runtime configuration.
type Config struct {
	Bind       string `yaml:"bind"`
	TLSCert    string `yaml:"tlsCert"`
	TLSKey     string `yaml:"tlsKey"`
	APIToken   string `yaml:"apiToken"`
	MediaRoot  string `yaml:"mediaRoot"`
	ScratchDir string `yaml:"scratchDir"`
	FFmpegPath string `yaml:"ffmpegPath"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	StallTimeout   Duration `yaml:"stallTimeout"`
	GracePeriod    Duration `yaml:"gracePeriod"`
	MaxRestarts    uint     `yaml:"maxRestarts"`
	BackoffFloor   Duration `yaml:"backoffFloor"`
	BackoffCeiling Duration `yaml:"backoffCeiling"`
	BackoffFactor  float64  `yaml:"backoffFactor"`

	RingCapacity  int      `yaml:"ringCapacity"`
	SweepInterval Duration `yaml:"sweepInterval"`
	RateLimit     int      `yaml:"rateLimit"`

	VAAPIDevice string `yaml:"vaapiDevice"`
	NVENCDevice string `yaml:"nvencDevice"`

	Store StoreConfig `yaml:"store"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Bind:           ":8080",
		MediaRoot:      "./videos",
		ScratchDir:     "./scratch",
		FFmpegPath:     "ffmpeg",
		LogLevel:       "info",
		LogFormat:      "json",
		StallTimeout:   Duration(30 * time.Second),
		GracePeriod:    Duration(5 * time.Second),
		MaxRestarts:    10,
		BackoffFloor:   Duration(time.Second),
		BackoffCeiling: Duration(60 * time.Second),
		BackoffFactor:  2,
		RingCapacity:   500,
		SweepInterval:  Duration(time.Minute),
		RateLimit:      120,
		Store: StoreConfig{
			Backend: StoreFile,
			Path:    "./relaycast.json",
		},
	}
}

// LoadDotEnv reads a .env file into the environment when present. A missing
// file is not an error.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	_ = godotenv.Load(paths...)
}

// Load builds the configuration from defaults, the YAML file at path (when
// non-empty and present), and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Bind = envString("RELAYCAST_BIND", c.Bind)
	c.TLSCert = envString("RELAYCAST_TLS_CERT", c.TLSCert)
	c.TLSKey = envString("RELAYCAST_TLS_KEY", c.TLSKey)
	c.APIToken = envString("RELAYCAST_API_TOKEN", c.APIToken)
	c.MediaRoot = envString("RELAYCAST_MEDIA_ROOT", c.MediaRoot)
	c.ScratchDir = envString("RELAYCAST_SCRATCH_DIR", c.ScratchDir)
	c.FFmpegPath = envString("RELAYCAST_FFMPEG_PATH", c.FFmpegPath)
	c.LogLevel = envString("RELAYCAST_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envString("RELAYCAST_LOG_FORMAT", c.LogFormat)
	c.StallTimeout = envDuration("RELAYCAST_STALL_TIMEOUT", c.StallTimeout)
	c.GracePeriod = envDuration("RELAYCAST_GRACE_PERIOD", c.GracePeriod)
	c.MaxRestarts = uint(envInt("RELAYCAST_MAX_RESTARTS", int(c.MaxRestarts)))
	c.BackoffFloor = envDuration("RELAYCAST_BACKOFF_FLOOR", c.BackoffFloor)
	c.BackoffCeiling = envDuration("RELAYCAST_BACKOFF_CEILING", c.BackoffCeiling)
	c.BackoffFactor = envFloat("RELAYCAST_BACKOFF_FACTOR", c.BackoffFactor)
	c.RingCapacity = envInt("RELAYCAST_RING_CAPACITY", c.RingCapacity)
	c.SweepInterval = envDuration("RELAYCAST_SWEEP_INTERVAL", c.SweepInterval)
	c.RateLimit = envInt("RELAYCAST_RATE_LIMIT", c.RateLimit)
	c.VAAPIDevice = envString("RELAYCAST_VAAPI_DEVICE", c.VAAPIDevice)
	c.NVENCDevice = envString("RELAYCAST_NVENC_DEVICE", c.NVENCDevice)

	c.Store.Backend = StoreBackend(envString("RELAYCAST_STORE_BACKEND", string(c.Store.Backend)))
	c.Store.Path = envString("RELAYCAST_STORE_PATH", c.Store.Path)
	c.Store.RedisAddr = envString("RELAYCAST_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisUser = envString("RELAYCAST_REDIS_USER", c.Store.RedisUser)
	c.Store.RedisPass = envString("RELAYCAST_REDIS_PASS", c.Store.RedisPass)
	c.Store.RedisDB = envInt("RELAYCAST_REDIS_DB", c.Store.RedisDB)
	c.Store.PostgresDSN = envString("RELAYCAST_POSTGRES_DSN", c.Store.PostgresDSN)
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreFile, StoreBadger, StoreRedis, StorePostgres, StoreNone:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.StallTimeout <= 0 {
		return fmt.Errorf("stall timeout must be positive")
	}
	if c.BackoffFloor <= 0 || c.BackoffCeiling < c.BackoffFloor {
		return fmt.Errorf("backoff floor/ceiling are inconsistent")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return fallback
}
