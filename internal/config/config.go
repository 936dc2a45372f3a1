// Package config loads client settings from a YAML or CUE file and the
// environment.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/flowrl/internal/queue"
	"github.com/roach88/flowrl/internal/remote"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables that override file values.
const (
	EnvAPIKey  = "FLOWRL_API_KEY"
	EnvUserID  = "FLOWRL_USER_ID"
	EnvBaseURL = "FLOWRL_BASE_URL"
)

// Defaults.
const (
	DefaultDatabase       = "flowrl.db"
	DefaultFlushInterval  = 60 * time.Second
	DefaultRequestTimeout = remote.DefaultTimeout
)

// Config is the resolved client configuration.
type Config struct {
	Name           string
	APIKey         string
	UserID         string
	BaseURL        string
	Database       string
	FlushInterval  time.Duration
	RequestTimeout time.Duration
	FlushPolicy    queue.FlushPolicy
}

// fileConfig is the on-disk shape shared by YAML and CUE files.
type fileConfig struct {
	Name           string `yaml:"name" json:"name"`
	APIKey         string `yaml:"api_key" json:"api_key"`
	UserID         string `yaml:"user_id" json:"user_id"`
	BaseURL        string `yaml:"base_url" json:"base_url"`
	Database       string `yaml:"database" json:"database"`
	FlushInterval  string `yaml:"flush_interval" json:"flush_interval"`
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
	FlushPolicy    string `yaml:"flush_policy" json:"flush_policy"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:        remote.DefaultBaseURL,
		Database:       DefaultDatabase,
		FlushInterval:  DefaultFlushInterval,
		RequestTimeout: DefaultRequestTimeout,
		FlushPolicy:    queue.PolicyPerEvent,
	}
}

// Load reads path (when non-empty), applies environment overrides and
// validates the result. The format is chosen by extension: .yaml, .yml or
// .cue.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fc, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.apply(fc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(data)
	case ".cue":
		return decodeCUE(path, data)
	default:
		return fileConfig{}, fmt.Errorf("unsupported config format %q (want .yaml, .yml or .cue)", filepath.Ext(path))
	}
}

func decodeYAML(data []byte) (fileConfig, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parse yaml config: %w", err)
	}
	return fc, nil
}

// decodeCUE unifies the file with the closed #Config schema, so unknown
// fields and bad values are rejected by CUE itself.
func decodeCUE(path string, data []byte) (fileConfig, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fileConfig{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fileConfig{}, fmt.Errorf("parse cue config: %w", err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fileConfig{}, fmt.Errorf("validate cue config: %w", err)
	}

	var fc fileConfig
	if err := unified.Decode(&fc); err != nil {
		return fileConfig{}, fmt.Errorf("decode cue config: %w", err)
	}
	return fc, nil
}

func (c *Config) apply(fc fileConfig) error {
	setString(&c.Name, fc.Name)
	setString(&c.APIKey, fc.APIKey)
	setString(&c.UserID, fc.UserID)
	setString(&c.BaseURL, fc.BaseURL)
	setString(&c.Database, fc.Database)

	if fc.FlushInterval != "" {
		d, err := time.ParseDuration(fc.FlushInterval)
		if err != nil {
			return fmt.Errorf("flush_interval: %w", err)
		}
		c.FlushInterval = d
	}
	if fc.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	if fc.FlushPolicy != "" {
		p, err := queue.ParseFlushPolicy(fc.FlushPolicy)
		if err != nil {
			return fmt.Errorf("flush_policy: %w", err)
		}
		c.FlushPolicy = p
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.APIKey, os.Getenv(EnvAPIKey))
	setString(&c.UserID, os.Getenv(EnvUserID))
	setString(&c.BaseURL, os.Getenv(EnvBaseURL))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute URL", c.BaseURL))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database must not be empty"))
	}
	if c.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("flush_interval must be positive, got %s", c.FlushInterval))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	switch c.FlushPolicy {
	case queue.PolicyPerEvent, queue.PolicySubmitOneClearAll:
	default:
		errs = append(errs, fmt.Errorf("unknown flush policy %s", c.FlushPolicy))
	}

	return errors.Join(errs...)
}
