package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment variable the loader reads.
const EnvPrefix = "SKETCHROOM_"

// Loader handles loading configuration from multiple sources.
type Loader struct {
	basePath    string
	environment Environment
	environ     map[string]string
	sources     []string
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithEnvironment replaces the process environment, mainly for tests.
func WithEnvironment(vars map[string]string) LoaderOption {
	return func(l *Loader) {
		l.environ = vars
	}
}

// NewLoader creates a loader reading files from basePath.
func NewLoader(basePath string, environment Environment, opts ...LoaderOption) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	l := &Loader{
		basePath:    basePath,
		environment: environment,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BasePath returns the directory configuration files are read from.
func (l *Loader) BasePath() string {
	return l.basePath
}

// Load builds the configuration from every source and validates it.
func (l *Loader) Load() (*Config, error) {
	l.sources = l.sources[:0]
	cfg := Default(l.environment)
	l.sources = append(l.sources, "defaults")

	if err := l.loadFile("base", cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}

	envFile := strings.ToLower(string(l.environment))
	if err := l.loadFile(envFile, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s config: %w", envFile, err)
	}

	if l.environment == Development {
		if err := l.loadFile("local", cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load local config: %w", err)
		}
	}

	if err := l.loadEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	l.sources = append(l.sources, "environment")

	// Files and variables may not rewrite the environment picked at startup.
	cfg.Environment = l.environment
	cfg.applyEnvironmentDefaults()
	cfg.LoadedFrom = append([]string(nil), l.sources...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, ext := range []string{"yaml", "yml"} {
		path := filepath.Join(l.basePath, name+"."+ext)
		file, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		err = decodeYAML(file, cfg)
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		l.sources = append(l.sources, path)
		return nil
	}
	return fs.ErrNotExist
}

func decodeYAML(r io.Reader, cfg *Config) error {
	err := yaml.NewDecoder(r).Decode(cfg)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// loadEnvironmentVariables overlays SKETCHROOM_* variables, then the bare PORT
// variable hosting platforms set.
func (l *Loader) loadEnvironmentVariables(cfg *Config) error {
	environ := l.environ
	if environ == nil {
		environ = processEnvironment()
	}

	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if _, explicit := environ[EnvPrefix+"SERVER_PORT"]; !explicit {
		var platform struct {
			Port int `env:"PORT"`
		}
		if err := env.ParseWithOptions(&platform, env.Options{Environment: environ}); err != nil {
			return fmt.Errorf("failed to parse PORT: %w", err)
		}
		if platform.Port > 0 {
			cfg.Server.Port = platform.Port
		}
	}
	return nil
}

func processEnvironment() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}

// EnvironmentFromEnv reads the deployment environment from
// SKETCHROOM_ENVIRONMENT, falling back to ENVIRONMENT and then development.
func EnvironmentFromEnv() Environment {
	for _, key := range []string{EnvPrefix + "ENVIRONMENT", "ENVIRONMENT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return Environment(strings.ToLower(v))
		}
	}
	return Development
}

// Load reads configuration from dir for the environment named by the process
// environment.
func Load(dir string) (*Config, error) {
	return NewLoader(dir, EnvironmentFromEnv()).Load()
}
