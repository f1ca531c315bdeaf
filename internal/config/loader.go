package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		varName := submatch[1]
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return defaultVal
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Loader manages configuration loading and hot-reload via fsnotify.
type Loader struct {
	configDir string
	mu        sync.RWMutex
	cfg       *Config
	intents   *IntentRules
	models    *ModelsConfig
	providers *ProvidersConfig
	watchers  []func()
	logger    *slog.Logger
}

const (
	routerFile    = "router.yaml"
	intentsFile   = "intents.yaml"
	modelsFile    = "models.yaml"
	providersFile = "providers.yaml"
)

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// configSet is one complete read of the config directory.
type configSet struct {
	cfg       *Config
	intents   *IntentRules
	models    *ModelsConfig
	providers *ProvidersConfig
}

func (l *Loader) read() (*configSet, error) {
	set := &configSet{
		cfg:       DefaultConfig(),
		intents:   &IntentRules{},
		models:    &ModelsConfig{},
		providers: &ProvidersConfig{},
	}
	files := []struct {
		name string
		dest any
	}{
		{routerFile, set.cfg},
		{intentsFile, set.intents},
		{modelsFile, set.models},
		{providersFile, set.providers},
	}
	for _, f := range files {
		if err := LoadFile(filepath.Join(l.configDir, f.name), f.dest); err != nil {
			return nil, fmt.Errorf("load %s: %w", f.name, err)
		}
	}
	return set, nil
}

// validate checks the set as a whole. The first load and every reload go
// through it, so an invalid reload never replaces a valid config.
func (s *configSet) validate() error {
	if err := s.intents.Validate(); err != nil {
		return fmt.Errorf("validate %s: %w", intentsFile, err)
	}
	bindings, err := s.models.Bindings()
	if err != nil {
		return fmt.Errorf("validate %s: %w", modelsFile, err)
	}
	for model, provider := range bindings {
		if _, ok := s.providers.Providers[provider]; !ok {
			return fmt.Errorf("validate %s: model %q bound to undeclared provider %q", modelsFile, model, provider)
		}
	}
	for name, p := range s.providers.Providers {
		if len(p.Instances) == 0 {
			return fmt.Errorf("validate %s: provider %q has no instances", providersFile, name)
		}
	}
	return nil
}

// Load reads and validates the config directory and, on success, replaces
// the current config.
func (l *Loader) Load() error {
	set, err := l.read()
	if err != nil {
		return err
	}
	if err := set.validate(); err != nil {
		return err
	}

	l.mu.Lock()
	l.cfg = set.cfg
	l.intents = set.intents
	l.models = set.models
	l.providers = set.providers
	l.mu.Unlock()

	l.logger.Info("configuration loaded", "dir", l.configDir)
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func (l *Loader) Intents() *IntentRules {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.intents
}

func (l *Loader) Models() *ModelsConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.models
}

func (l *Loader) Providers() *ProvidersConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.providers
}

// OnReload registers a callback that fires after config is reloaded.
func (l *Loader) OnReload(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchers = append(l.watchers, fn)
}

func (l *Loader) notify() {
	l.mu.RLock()
	fns := append([]func(){}, l.watchers...)
	l.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Watch starts watching the config directory for changes and reloads on
// modification. It stops when ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(l.configDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", l.configDir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					l.logger.Info("config file changed, reloading", "file", event.Name)
					if err := l.Load(); err != nil {
						l.logger.Error("failed to reload config", "error", err)
						continue
					}
					l.notify()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}
