package ollama

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Connection and retry defaults.
const (
	DefaultScheme     = "http"
	DefaultHost       = "localhost"
	DefaultPort       = 11434
	DefaultMaxRetries = 10
	DefaultRetryDelay = 5 * time.Second
)

// Environment variables read by Config.ApplyEnv.
const (
	EnvScheme         = "OLLAMA_SCHEME"
	EnvHost           = "OLLAMA_HOST"
	EnvPort           = "OLLAMA_PORT"
	EnvModel          = "OLLAMA_MODEL"
	EnvMaxRetries     = "OLLAMA_MAX_RETRIES"
	EnvRetryDelay     = "OLLAMA_RETRY_DELAY"
	EnvProbeTimeout   = "OLLAMA_PROBE_TIMEOUT"
	EnvRequestTimeout = "OLLAMA_REQUEST_TIMEOUT"
)

// Config holds the connection and retry parameters of the client.
// It is passed explicitly; nothing in the package reads ambient defaults.
type Config struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`

	// Model is the default model for callers that do not set one
	Model string `yaml:"model,omitempty"`

	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// ProbeTimeout enables the reachability gate before every attempt when positive
	ProbeTimeout time.Duration `yaml:"probe_timeout,omitempty"`

	// RequestTimeout bounds one attempt, stream read included. Zero means no bound.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// DefaultConfig returns the configuration for a local service:
// http://localhost:11434, 10 attempts, 5 seconds apart.
func DefaultConfig() Config {
	return Config{
		Scheme:     DefaultScheme,
		Host:       DefaultHost,
		Port:       DefaultPort,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// BaseURL renders scheme://host:port.
func (c Config) BaseURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
}

// Retry returns the retry settings of c.
func (c Config) Retry() RetryConfig {
	return RetryConfig{MaxRetries: c.MaxRetries, RetryDelay: c.RetryDelay}
}

// HTTPClient returns an HTTP client honoring RequestTimeout.
func (c Config) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.RequestTimeout}
}

// Validate checks that c describes a usable endpoint and retry policy.
func (c Config) Validate() error {
	if err := validateHostPort(c.Host, c.Port); err != nil {
		return err
	}
	if c.Scheme != "" && c.Scheme != "http" && c.Scheme != "https" {
		return &InputError{Field: "scheme", Value: c.Scheme, Reason: "scheme must be http or https", Err: ErrInvalidInput}
	}
	if err := c.Retry().Validate(); err != nil {
		return err
	}
	if c.ProbeTimeout < 0 {
		return &InputError{Field: "probe_timeout", Value: c.ProbeTimeout, Reason: "must not be negative", Err: ErrInvalidInput}
	}
	if c.RequestTimeout < 0 {
		return &InputError{Field: "request_timeout", Value: c.RequestTimeout, Reason: "must not be negative", Err: ErrInvalidInput}
	}
	return nil
}

// LoadConfigFromFile reads a YAML config file on top of DefaultConfig.
// Keys missing from the file keep their defaults. Durations use Go syntax ("5s").
func LoadConfigFromFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overlays the OLLAMA_* variables found by lookup onto c.
// lookup is usually os.LookupEnv. OLLAMA_HOST may be "host", "host:port"
// or carry a scheme ("https://host:port"); OLLAMA_SCHEME wins over the latter.
func (c Config) ApplyEnv(lookup func(string) (string, bool)) (Config, error) {
	if v, ok := lookup(EnvHost); ok && v != "" {
		if scheme, rest, found := strings.Cut(v, "://"); found {
			c.Scheme = scheme
			v = strings.TrimRight(rest, "/")
		}
		if host, port, err := net.SplitHostPort(v); err == nil {
			p, err := strconv.Atoi(port)
			if err != nil {
				return c, &InputError{Field: EnvHost, Value: v, Reason: "port is not a number", Err: ErrInvalidInput}
			}
			c.Host, c.Port = host, p
		} else {
			c.Host = v
		}
	}
	if v, ok := lookup(EnvScheme); ok && v != "" {
		c.Scheme = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c, &InputError{Field: EnvPort, Value: v, Reason: "not a number", Err: ErrInvalidInput}
		}
		c.Port = p
	}
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Model = v
	}
	if v, ok := lookup(EnvMaxRetries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, &InputError{Field: EnvMaxRetries, Value: v, Reason: "not a number", Err: ErrInvalidInput}
		}
		c.MaxRetries = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvRetryDelay, &c.RetryDelay},
		{EnvProbeTimeout, &c.ProbeTimeout},
		{EnvRequestTimeout, &c.RequestTimeout},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return c, &InputError{Field: d.key, Value: v, Reason: "not a duration", Err: ErrInvalidInput}
		}
		*d.dst = parsed
	}

	return c, nil
}

// LoadEnv searches for a .env file starting from the current directory
// and walking up the directory tree, and loads the first one found.
// Variables already set in the environment win. A missing file is not an error.
func LoadEnv() error {
	dir, err := os.Getwd()
	if err != nil {
		return nil
	}

	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return fmt.Errorf("failed to load %s: %w", envPath, err)
			}
			return nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}
