package testutil

import (
	"context"
	"sync"

	"github.com/meterly/backend/internal/domain/settings"
)

// StaticSettings is a settings.Provider returning a fixed, mutable value
type StaticSettings struct {
	mu      sync.RWMutex
	current settings.Settings
	err     error
}

// NewStaticSettings starts from settings.Defaults
func NewStaticSettings() *StaticSettings {
	return &StaticSettings{current: settings.Defaults()}
}

// Current implements settings.Provider
func (s *StaticSettings) Current(context.Context) (settings.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.err
}

// Update applies fn to the current value
func (s *StaticSettings) Update(fn func(*settings.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.current)
}

// SetError makes Current fail
func (s *StaticSettings) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
