package confloader

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "SHELLKEEP_"

// Loader loads configuration from multiple sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
	loaded    bool

	// knownKeys maps an env-style key (dots as underscores) to its
	// dotted config key, so keys that contain underscores survive.
	knownKeys map[string]string
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOverrides sets values that win over the file and the environment,
// typically command-line flags. Keys are dotted config paths; empty
// strings are ignored.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		l.overrides = values
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load loads configuration from all sources and unmarshals into target.
// Loading order (later sources override earlier):
//  1. Values already set in target (defaults)
//  2. Configuration file (YAML)
//  3. Environment variables
//  4. Overrides (WithOverrides)
func (l *Loader) Load(target any) error {
	l.learnKeys(target)

	// Load from file first (if specified)
	if l.filePath != "" {
		if err := l.LoadFile(l.filePath); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}

	// Load from environment variables (higher priority)
	if err := l.LoadEnv(); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if len(l.overrides) > 0 {
		if err := l.LoadMap(l.overrides); err != nil {
			return err
		}
	}

	// Unmarshal into target struct
	if err := l.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	l.loaded = true
	return nil
}

// LoadFile loads configuration from a YAML file.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	provider := file.Provider(path)
	if err := l.k.Load(provider, yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}

	return nil
}

// LoadEnv loads configuration from environment variables.
// Environment variables use the format: SHELLKEEP_SECTION_KEY (uppercase, underscores).
// Example: SHELLKEEP_STORAGE_DATA_DIR=/srv/shellkeep resolves to
// storage.data_dir when the target struct declares that key, and to
// storage.data.dir otherwise.
func (l *Loader) LoadEnv() error {
	envTransformer := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		if key, ok := l.knownKeys[s]; ok {
			return key
		}
		return strings.ReplaceAll(s, "_", ".")
	}

	provider := env.Provider(l.envPrefix, ".", envTransformer)
	if err := l.k.Load(provider, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	return nil
}

// LoadMap merges values keyed by dotted config path over what is loaded.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(overrides(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Unmarshal unmarshals the loaded configuration into the target struct.
// Uses koanf tags for struct field mapping.
func (l *Loader) Unmarshal(target any) error {
	return l.k.Unmarshal("", target)
}

// Get returns a value from the configuration by key.
func (l *Loader) Get(key string) any {
	return l.k.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt returns an int value from the configuration.
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetBool returns a bool value from the configuration.
func (l *Loader) GetBool(key string) bool {
	return l.k.Bool(key)
}

// IsLoaded returns true if configuration has been loaded.
func (l *Loader) IsLoaded() bool {
	return l.loaded
}

// All returns all configuration as a map.
func (l *Loader) All() map[string]any {
	return l.k.All()
}

// Keys returns all configuration keys.
func (l *Loader) Keys() []string {
	return l.k.Keys()
}

// learnKeys records every koanf-tagged leaf key of target.
func (l *Loader) learnKeys(target any) {
	t := reflect.TypeOf(target)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return
	}
	if l.knownKeys == nil {
		l.knownKeys = make(map[string]string)
	}
	collectKeys(t, "", l.knownKeys)
}

func collectKeys(t reflect.Type, prefix string, out map[string]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("koanf")
		if tag == "" || tag == "-" || !f.IsExported() {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		// time.Duration and friends are leaves; only plain structs nest.
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			collectKeys(ft, key, out)
			continue
		}
		out[strings.ReplaceAll(key, ".", "_")] = key
	}
}
