package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultSettingsTimeout = 30 // seconds
	defaultRateLimit       = 60 // requests per minute
)

// Settings is the operator configuration of one platform, loaded from
// <platforms-dir>/<name>.yml.
type Settings struct {
	Name           string            // Derived from filename (without .yml extension)
	Enabled        bool              `yaml:"enabled"`
	BaseURL        string            `yaml:"base_url"`
	Timeout        int               `yaml:"timeout"`    // seconds
	RateLimit      int               `yaml:"rate_limit"` // requests per minute
	CredentialsEnv string            `yaml:"credentials_env"`
	Options        map[string]string `yaml:"options"`
}

func (s *Settings) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// Config builds the per-call adapter configuration.
func (s *Settings) Config(credentials string) Config {
	return Config{
		Credentials: credentials,
		BaseURL:     s.BaseURL,
		Timeout:     s.TimeoutDuration(),
		Options:     s.Options,
	}
}

// DefaultSettings is used for platforms without a settings file.
func DefaultSettings(name string) *Settings {
	return &Settings{
		Name:      name,
		Enabled:   true,
		Timeout:   defaultSettingsTimeout,
		RateLimit: defaultRateLimit,
		Options:   map[string]string{},
	}
}

type SettingsCache struct {
	dir   string
	cache map[string]*Settings
	mu    sync.RWMutex
}

func NewSettingsCache(dir string) *SettingsCache {
	return &SettingsCache{
		dir:   dir,
		cache: make(map[string]*Settings),
	}
}

// Run loads every settings file of the directory. A missing directory is
// not an error.
func (sc *SettingsCache) Run() error {
	if sc.dir == "" {
		return nil
	}
	if _, err := os.Stat(sc.dir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(sc.dir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		settings, err := sc.Load(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Platform settings loaded", "platform", name, "enabled", settings.Enabled, "timeout", settings.Timeout)
	}

	return nil
}

func (sc *SettingsCache) Load(name string) (*Settings, error) {
	file := filepath.Join(sc.dir, name+".yml")
	settings, err := sc.parse(file)
	if err != nil {
		return nil, err
	}

	settings.Name = name

	if err := validateSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", file, err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache[name] = settings

	return settings, nil
}

// Get returns the settings of name, or the defaults when no file exists.
func (sc *SettingsCache) Get(name string) *Settings {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	if s, ok := sc.cache[name]; ok {
		return s
	}
	return DefaultSettings(name)
}

func (sc *SettingsCache) IsEnabled(name string) bool {
	return sc.Get(name).Enabled
}

func (sc *SettingsCache) Count() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.cache)
}

func (sc *SettingsCache) parse(file string) (*Settings, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if settings.Timeout == 0 {
		settings.Timeout = defaultSettingsTimeout
	}
	if settings.RateLimit == 0 {
		settings.RateLimit = defaultRateLimit
	}
	if settings.Options == nil {
		settings.Options = map[string]string{}
	}

	return &settings, nil
}

func validateSettings(s *Settings) error {
	if s == nil {
		return fmt.Errorf("settings is nil")
	}
	if s.Name == "" {
		return fmt.Errorf("platform name is required")
	}

	nonNegativeFields := map[string]int{
		"timeout":    s.Timeout,
		"rate limit": s.RateLimit,
	}
	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if s.BaseURL != "" && !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		return fmt.Errorf("base URL must be an http(s) URL")
	}
	return nil
}

// CredentialProvider returns the opaque credential blob of a platform. The
// service never inspects or stores it.
type CredentialProvider interface {
	Credentials(ctx context.Context, platform string) (string, error)
}

// EnvCredentials reads credentials from the environment variable named in
// the platform settings, or <NAME>_CREDENTIALS by default.
type EnvCredentials struct {
	Settings *SettingsCache
}

func (e EnvCredentials) Credentials(_ context.Context, platform string) (string, error) {
	key := strings.ToUpper(platform) + "_CREDENTIALS"
	if e.Settings != nil {
		if env := e.Settings.Get(platform).CredentialsEnv; env != "" {
			key = env
		}
	}

	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("credentials for %s not set (%s)", platform, key)
	}
	return value, nil
}

// StaticCredentials serves fixed credentials, mostly for tests.
type StaticCredentials map[string]string

func (s StaticCredentials) Credentials(_ context.Context, platform string) (string, error) {
	if v, ok := s[platform]; ok {
		return v, nil
	}
	return "", fmt.Errorf("credentials for %s not set", platform)
}
