package config

import (
	"sync"

	"github.com/samber/lo"
)

// Store holds the current configuration and hands out per-host snapshots.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	path    string
	cfg     *Config
	hostKey string
}

// NewStore loads path (may be empty) and detects the host key.
func NewStore(path string) (*Store, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStoreFrom(path, c), nil
}

// NewStoreFrom wraps an already loaded Config.
func NewStoreFrom(path string, c *Config) *Store {
	return &Store{path: path, cfg: c, hostKey: HostKey(lo.Keys(c.Local))}
}

// Config returns the current configuration. Callers must not modify it.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// HostKey returns the effective host key.
func (s *Store) HostKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.HostKey != "" {
		return s.cfg.HostKey
	}
	return s.hostKey
}

// Snapshot resolves the settings for this host.
func (s *Store) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Resolve(s.hostKey)
}

// Reload re-reads the configuration file. On error the previous
// configuration stays in effect.
func (s *Store) Reload() error {
	c, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = c
	s.hostKey = HostKey(lo.Keys(c.Local))
	s.mu.Unlock()
	return nil
}

// Update applies fn to a copy of the configuration and installs the result.
func (s *Store) Update(fn func(c *Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.cfg
	next.Local = make(map[string]LocalConfig, len(s.cfg.Local))
	for k, v := range s.cfg.Local {
		next.Local[k] = v
	}
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = &next
	return nil
}
