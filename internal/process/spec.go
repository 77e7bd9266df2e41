package process

import (
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
)

// Spec describes a process to spawn. Env is the complete child environment;
// a nil Env inherits the parent's.
type Spec struct {
	Name       string    `json:"name"`
	Executable string    `json:"executable"`
	Args       []string  `json:"args"`
	Env        []string  `json:"-"`
	WorkDir    string    `json:"work_dir,omitempty"`
	Stdout     io.Writer `json:"-"`
}

// BuildCommand resolves the executable against the PATH carried in Env
// (falling back to the parent's PATH) and returns the prepared command.
func (s *Spec) BuildCommand() (*exec.Cmd, error) {
	return s.BuildCommandContext(context.Background())
}

// BuildCommandContext is BuildCommand for a process killed when ctx is done.
func (s *Spec) BuildCommandContext(ctx context.Context) (*exec.Cmd, error) {
	name := strings.TrimSpace(s.Executable)
	if name == "" {
		return nil, ErrNoExecutable
	}
	path, err := lookPath(name, envValue(s.Env, "PATH"))
	if err != nil {
		return nil, err
	}
	// #nosec G204 -- executable and args come from the operator's configuration
	cmd := exec.CommandContext(ctx, path, s.Args...)
	cmd.Env = s.Env
	cmd.Dir = s.WorkDir
	return cmd, nil
}

func lookPath(name, pathList string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		return exec.LookPath(name)
	}
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			continue
		}
		if p, err := exec.LookPath(filepath.Join(dir, name)); err == nil {
			return p, nil
		}
	}
	return exec.LookPath(name)
}

func envValue(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if ok && strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
