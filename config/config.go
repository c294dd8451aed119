// Package config holds the tunable settings of a scan, loaded from defaults,
// an optional YAML file and command-line overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultUserAgent identifies linkguardian to the sites it visits.
const DefaultUserAgent = "linkguardian/0.1 (+https://github.com/lukemcguire/linkguardian)"

// Config holds every scan setting. Durations are written as strings such as "10s".
type Config struct {
	Concurrency   int           `yaml:"concurrency" validate:"gte=1,lte=1000"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRedirects  int           `yaml:"max_redirects" validate:"gte=0,lte=20"`
	MaxDepth      int           `yaml:"max_depth" validate:"gte=1,lte=100"`
	CrawlDelay    time.Duration `yaml:"crawl_delay" validate:"gte=0"`
	UserAgent     string        `yaml:"user_agent" validate:"required"`
	RespectRobots bool          `yaml:"respect_robots"`
	Retries       int           `yaml:"retries" validate:"gte=0,lte=10"`
	RetryDelay    time.Duration `yaml:"retry_delay" validate:"gte=0"`
	MemoryLimitMB int64         `yaml:"memory_limit_mb" validate:"gte=0"`
	Format        string        `yaml:"format" validate:"oneof=table json csv"`
	MetricsFile   string        `yaml:"metrics_file"`
	LogLevel      string        `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Concurrency:   50,
		Timeout:       10 * time.Second,
		MaxRedirects:  5,
		MaxDepth:      2,
		CrawlDelay:    100 * time.Millisecond,
		UserAgent:     DefaultUserAgent,
		RespectRobots: true,
		Retries:       2,
		RetryDelay:    1 * time.Second,
		Format:        "table",
		LogLevel:      "warn",
	}
}

// ConfigError reports a setting that cannot be used. It is returned before
// any network activity takes place.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML names so errors match what users write.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks every field and returns the first violation as a *ConfigError.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}
	fe := verrs[0]
	return &ConfigError{
		Field:  fe.Field(),
		Value:  fmt.Sprint(fe.Value()),
		Reason: describe(fe),
		Err:    err,
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must be set"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Field: "config file", Value: path, Reason: err.Error(), Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
