package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Snapshot is an immutable copy of the settings that apply to this host.
// Each start request takes a fresh one so later edits never leak into a
// running daemon.
type Snapshot struct {
	HostKey        string
	Debug          bool
	RecollIndex    string
	RecollQ        string
	PythonPath     string
	VirtualEnv     string
	DataDir        string
	ConfDir        string
	PathExtensions []string
	LibraryPath    []string
	CreatedLabel   string
	ModifiedLabel  string
	DatetimeFormat string
	ExtraEnv       []string
	Supervisor     SupervisorConfig
}

// LockPath returns the exclusivity lock file for the daemon, or "" when disabled.
func (s Snapshot) LockPath() string {
	switch {
	case s.Supervisor.LockFile == "-":
		return ""
	case s.Supervisor.LockFile != "":
		return s.Supervisor.LockFile
	case s.ConfDir != "":
		return filepath.Join(s.ConfDir, "recollsup.lock")
	default:
		return ""
	}
}

// Resolve returns the snapshot for hostKey. Config.HostKey, when set,
// overrides the argument. A host without its own table uses local.default,
// and a host with neither runs recollindex/recollq from PATH.
func (c *Config) Resolve(hostKey string) (Snapshot, error) {
	if c.HostKey != "" {
		hostKey = c.HostKey
	}
	hostKey = strings.ToLower(hostKey)
	local, ok := c.Local[hostKey]
	if !ok {
		local = c.Local[DefaultHostKey]
	}

	// later entries win: env files in order, then the inline env list
	var extra []string
	for _, p := range c.EnvFiles {
		pairs, err := LoadEnvFile(expandHome(p))
		if err != nil {
			return Snapshot{}, fmt.Errorf("env file %s: %w", p, err)
		}
		extra = append(extra, pairs...)
	}
	extra = append(extra, c.Env...)

	sup := c.Supervisor
	sup.LockFile = expandHomeUnlessDisabled(sup.LockFile)
	return Snapshot{
		HostKey:        hostKey,
		Debug:          c.Debug,
		RecollIndex:    orDefault(expandHome(local.RecollIndex), "recollindex"),
		RecollQ:        orDefault(expandHome(local.RecollQ), "recollq"),
		PythonPath:     expandHome(local.PythonPath),
		VirtualEnv:     expandHome(local.VirtualEnv),
		DataDir:        expandHome(local.DataDir),
		ConfDir:        expandHome(local.ConfDir),
		PathExtensions: expandAll(local.PathExtensions),
		LibraryPath:    expandAll(local.LibraryPath),
		CreatedLabel:   c.CreatedLabel,
		ModifiedLabel:  c.ModifiedLabel,
		DatetimeFormat: c.DatetimeFormat,
		ExtraEnv:       extra,
		Supervisor:     sup,
	}, nil
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.PathExtensions = slices.Clone(s.PathExtensions)
	s.LibraryPath = slices.Clone(s.LibraryPath)
	s.ExtraEnv = slices.Clone(s.ExtraEnv)
	return s
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func expandAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, expandHome(p))
		}
	}
	return out
}

func expandHomeUnlessDisabled(p string) string {
	if p == "-" {
		return p
	}
	return expandHome(p)
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
