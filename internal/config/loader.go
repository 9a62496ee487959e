package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name looked up in the current directory.
const DefaultConfigFile = ".publiccrawler.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the on-disk YAML configuration. Every field is optional;
// zero values leave the corresponding Config default untouched.
type File struct {
	Seeds        []string `yaml:"seeds,omitempty"`
	AllowDomains []string `yaml:"allow_domains,omitempty"`

	MaxPages       int         `yaml:"max_pages,omitempty"`
	MaxDepth       *int        `yaml:"max_depth,omitempty"`
	Concurrency    int         `yaml:"concurrency,omitempty"`
	PerHostDelay   *Duration   `yaml:"per_host_delay,omitempty"`
	RequestTimeout Duration    `yaml:"request_timeout,omitempty"`
	DequeueWait    Duration    `yaml:"dequeue_wait,omitempty"`
	Include        string      `yaml:"include,omitempty"`
	Exclude        string      `yaml:"exclude,omitempty"`
	UserAgent      string      `yaml:"user_agent,omitempty"`
	MaxBodyBytes   int64       `yaml:"max_body_bytes,omitempty"`
	MaxTextLength  int         `yaml:"max_text_length,omitempty"`
	RateLimit      float64     `yaml:"rate_limit,omitempty"`
	Proxy          string      `yaml:"proxy,omitempty"`
	Robots         RobotsFile  `yaml:"robots,omitempty"`
	Storage        StorageFile `yaml:"storage,omitempty"`
	Log            LogFile     `yaml:"log,omitempty"`
	API            APIFile     `yaml:"api,omitempty"`
}

// RobotsFile is the robots section of the config file.
type RobotsFile struct {
	Mode    string   `yaml:"mode,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// StorageFile is the storage section of the config file.
type StorageFile struct {
	Driver   string `yaml:"driver,omitempty"`
	Dir      string `yaml:"dir,omitempty"`
	DSN      string `yaml:"dsn,omitempty"`
	RedisKey string `yaml:"redis_key,omitempty"`
}

// LogFile is the log section of the config file.
type LogFile struct {
	Verbose bool   `yaml:"verbose,omitempty"`
	Format  string `yaml:"format,omitempty"`
}

// APIFile is the api section of the config file.
type APIFile struct {
	Address        string   `yaml:"address,omitempty"`
	Key            string   `yaml:"key,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// Duration is a time.Duration that reads either a Go duration string ("1.5s")
// or a plain number of seconds from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid duration at line %d: expected a scalar", node.Line)
	}
	if parsed, err := time.ParseDuration(node.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	seconds, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(seconds * float64(time.Second))
	return nil
}

// LoadConfigFile reads and decodes a YAML configuration file.
// Unknown keys are rejected so that typos surface as errors.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &f, nil
}

// FindConfigFile searches for the configuration file in the following order:
//  1. configPath, if specified
//  2. .publiccrawler.yaml in the current directory
//  3. config.yaml in the XDG config directory
//
// Returns the path if found, or an empty string.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	p := filepath.Join(XDGConfigDir(), "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// Apply copies every value set in the file onto cfg.
func (f *File) Apply(cfg *Config) {
	if len(f.Seeds) > 0 {
		cfg.Seeds = append([]string(nil), f.Seeds...)
	}
	if len(f.AllowDomains) > 0 {
		cfg.AllowDomains = append([]string(nil), f.AllowDomains...)
	}
	if f.MaxPages != 0 {
		cfg.MaxPages = f.MaxPages
	}
	if f.MaxDepth != nil {
		cfg.MaxDepth = *f.MaxDepth
	}
	if f.Concurrency != 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.PerHostDelay != nil {
		cfg.PerHostDelay = time.Duration(*f.PerHostDelay)
	}
	if f.RequestTimeout != 0 {
		cfg.RequestTimeout = time.Duration(f.RequestTimeout)
	}
	if f.Include != "" {
		cfg.IncludePattern = f.Include
	}
	if f.Exclude != "" {
		cfg.ExcludePattern = f.Exclude
	}
	if f.UserAgent != "" {
		cfg.UserAgent = f.UserAgent
	}
	if f.MaxBodyBytes != 0 {
		cfg.MaxBodySize = f.MaxBodyBytes
	}
	if f.MaxTextLength != 0 {
		cfg.MaxTextLength = f.MaxTextLength
	}
	if f.RateLimit != 0 {
		cfg.RateLimit = f.RateLimit
	}
	if f.Proxy != "" {
		cfg.ProxyAddress = f.Proxy
	}
	if f.DequeueWait != 0 {
		cfg.DequeueWait = time.Duration(f.DequeueWait)
	}
	if f.Robots.Mode != "" {
		cfg.RobotsMode = f.Robots.Mode
	}
	if f.Robots.Timeout != 0 {
		cfg.RobotsTimeout = time.Duration(f.Robots.Timeout)
	}
	if f.Storage.Driver != "" {
		cfg.Storage.Driver = f.Storage.Driver
	}
	if f.Storage.Dir != "" {
		cfg.Storage.Dir = f.Storage.Dir
	}
	if f.Storage.DSN != "" {
		cfg.Storage.DSN = f.Storage.DSN
	}
	if f.Storage.RedisKey != "" {
		cfg.Storage.RedisKey = f.Storage.RedisKey
	}
	if f.Log.Verbose {
		cfg.Verbose = true
	}
	if f.Log.Format != "" {
		cfg.LogFormat = f.Log.Format
	}
	if f.API.Address != "" {
		cfg.APIAddress = f.API.Address
	}
	if f.API.Key != "" {
		cfg.APIKey = f.API.Key
	}
	if len(f.API.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = f.API.AllowedOrigins
	}
}
