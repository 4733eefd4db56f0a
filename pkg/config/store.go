// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"sync"
)

// Store is the controller's view of persistent settings. Updates are
// written through to the backing file; a Store with an empty path keeps
// settings in memory only.
type Store struct {
	mu   sync.Mutex
	path string
	cfg  *Config
}

// NewStore wraps cfg. When path is empty nothing is written.
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	return &Store{path: path, cfg: cfg}
}

// OpenStore loads path and wraps the result
func OpenStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(path, cfg), nil
}

// Settings returns a copy of the current settings
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Settings
}

// Config returns a copy of the whole configuration
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cfg
}

// Update applies fn to the settings and persists them. The change is
// rejected when the result does not validate.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Settings
	fn(&next)
	if err := ValidateSettings(&next); err != nil {
		return err
	}
	s.cfg.Settings = next

	if s.path == "" {
		return nil
	}
	if err := Save(s.path, s.cfg); err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	return nil
}
