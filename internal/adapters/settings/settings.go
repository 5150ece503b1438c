package settings

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ghalamif/ProbeFlow/internal/ports"
)

// EnvPrefix namespaces environment overrides: key config_x is read from
// PROBEFLOW_CONFIG_X.
const EnvPrefix = "PROBEFLOW"

// File serves runtime settings from a YAML file that is re-read whenever it
// changes on disk. Readers always see a complete snapshot; the watcher
// builds a new one and swaps it in.
type File struct {
	path    string
	obs     ports.Observability
	watcher *viper.Viper

	mu      sync.RWMutex
	current *viper.Viper
}

// OpenFile loads path and starts watching it. An empty path serves
// environment overrides and caller defaults only.
func OpenFile(path string, obs ports.Observability) (*File, error) {
	if obs == nil {
		return nil, errors.New("settings: observability is required")
	}
	f := &File{path: path, obs: obs}
	if path == "" {
		f.current = newReader(nil)
		return f, nil
	}

	f.watcher = viper.New()
	f.watcher.SetConfigFile(path)
	if err := f.Reload(); err != nil {
		return nil, err
	}
	f.watcher.OnConfigChange(func(e fsnotify.Event) {
		if err := f.Reload(); err != nil {
			obs.LogError("settings_reload_failed", err, ports.Field{Key: "file", Value: e.Name})
			return
		}
		obs.LogInfo("settings_reloaded", ports.Field{Key: "file", Value: e.Name})
	})
	f.watcher.WatchConfig()
	return f, nil
}

// Reload re-reads the settings file and swaps in the new values.
func (f *File) Reload() error {
	if f.watcher == nil {
		return nil
	}
	if err := f.watcher.ReadInConfig(); err != nil {
		return fmt.Errorf("read settings %s: %w", f.path, err)
	}
	next := newReader(f.watcher.AllSettings())
	f.mu.Lock()
	f.current = next
	f.mu.Unlock()
	return nil
}

func (f *File) GetString(key, def string) string {
	f.mu.RLock()
	v := f.current
	f.mu.RUnlock()
	if !v.IsSet(key) {
		return def
	}
	return v.GetString(key)
}

func newReader(values map[string]any) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if values != nil {
		// MergeConfigMap only fails on nil input
		_ = v.MergeConfigMap(values)
	}
	return v
}

// Static is an in-memory settings store.
type Static struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewStatic(values map[string]string) *Static {
	s := &Static{values: make(map[string]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *Static) GetString(key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

func (s *Static) Set(key, value string) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

var (
	_ ports.Settings = (*File)(nil)
	_ ports.Settings = (*Static)(nil)
)
