package services

import (
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

type featureStore interface {
	Features() (map[string]bool, error)
	SetFeature(name string, enabled bool) error
}

// SettingsStore holds runtime feature switches. Every feature is on unless
// it is listed in the configured defaults or was switched off at runtime;
// runtime changes are persisted.
type SettingsStore struct {
	store featureStore
	log   *log.Logger

	mu       sync.RWMutex
	features map[string]bool
}

// NewSettingsStore builds the store from the persisted overrides layered
// over the names in disabled.
func NewSettingsStore(store featureStore, disabled []string, logger *log.Logger) (*SettingsStore, error) {
	persisted, err := store.Features()
	if err != nil {
		return nil, err
	}
	features := make(map[string]bool, len(disabled)+len(persisted))
	for _, name := range disabled {
		if name != "" {
			features[name] = false
		}
	}
	for name, enabled := range persisted {
		features[name] = enabled
	}
	return &SettingsStore{store: store, log: logger, features: features}, nil
}

func (s *SettingsStore) IsFeatureEnabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enabled, ok := s.features[name]
	return !ok || enabled
}

func (s *SettingsStore) SetFeature(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SetFeature(name, enabled); err != nil {
		return err
	}
	s.features[name] = enabled
	s.log.Info("feature switched", "feature", name, "enabled", enabled)
	return nil
}

// Features returns a copy of the explicit switches.
func (s *SettingsStore) Features() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.features))
	for k, v := range s.features {
		out[k] = v
	}
	return out
}

// Disabled lists the features currently switched off, sorted.
func (s *SettingsStore) Disabled() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for name, enabled := range s.features {
		if !enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
