package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes a child environment from a base (the OS environment unless
// set explicitly) plus overrides.
type Env struct {
	Var Var // overrides (K->V)
	env Var // cached base
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.FromList(os.Environ())
}

// FromList uses the given "K=V" entries as the base.
func (e *Env) FromList(kvs []string) {
	base := make(Var, len(kvs))
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			base[k] = v
		}
	}
	e.env = base
}

// Get returns the override for k, falling back to the base.
func (e *Env) Get(k string) string {
	if v, ok := e.Var[k]; ok {
		return v
	}
	if e.env == nil {
		e.FromOS()
	}
	return e.env[k]
}

// Set sets an override K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes an override.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// Prepend puts dirs in front of the list variable k, keeping the current
// value (override or base) at the end.
func (e *Env) Prepend(k string, sep string, dirs ...string) {
	if len(dirs) == 0 {
		return
	}
	parts := append([]string(nil), dirs...)
	if cur := e.Get(k); cur != "" {
		parts = append(parts, cur)
	}
	e.Set(k, strings.Join(parts, sep))
}

// Merge composes the final environment: base, then overrides, then extra
// "K=V" entries. ${VAR} references are expanded once against the composed
// map. The result is sorted by key.
func (e *Env) Merge(extra []string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var)+len(extra))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k != "" {
			m[k] = v
		}
	}
	for _, kv := range extra {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return "${" + k + "}"
	})
}
