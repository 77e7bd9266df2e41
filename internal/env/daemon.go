package env

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/loykin/recollsup/internal/config"
	"github.com/samber/lo"
)

// LibraryPathVar returns the dynamic loader search variable for goos, or ""
// on platforms without one.
func LibraryPathVar(goos string) string {
	switch goos {
	case "darwin":
		return "DYLD_LIBRARY_PATH"
	case "windows":
		return ""
	default:
		return "LD_LIBRARY_PATH"
	}
}

// ForRecoll returns the environment for recollindex and recollq built from
// base (nil means the OS environment) and the snapshot.
func ForRecoll(snap config.Snapshot, base []string) []string {
	return forGOOS(snap, base, runtime.GOOS)
}

func forGOOS(snap config.Snapshot, base []string, goos string) []string {
	e := New()
	if base == nil {
		e.FromOS()
	} else {
		e.FromList(base)
	}
	sep := string(os.PathListSeparator)
	if goos == "windows" {
		sep = ";"
	}

	var pathDirs []string
	if snap.VirtualEnv != "" {
		e.Set("VIRTUAL_ENV", snap.VirtualEnv)
		pathDirs = append(pathDirs, filepath.Join(snap.VirtualEnv, lo.Ternary(goos == "windows", "Scripts", "bin")))
	}
	pathDirs = lo.Uniq(append(pathDirs, snap.PathExtensions...))
	e.Prepend("PATH", sep, pathDirs...)

	if snap.PythonPath != "" {
		e.Set("PYTHONPATH", snap.PythonPath)
	}
	if snap.DataDir != "" {
		e.Set("RECOLL_DATADIR", snap.DataDir)
	}
	if snap.ConfDir != "" {
		e.Set("RECOLL_CONFDIR", snap.ConfDir)
	}
	if v := LibraryPathVar(goos); v != "" {
		e.Prepend(v, sep, lo.Uniq(snap.LibraryPath)...)
	}
	// read by the rclmd frontmatter filter
	if snap.CreatedLabel != "" {
		e.Set("RCLMD_CREATED", snap.CreatedLabel)
	}
	if snap.ModifiedLabel != "" {
		e.Set("RCLMD_MODIFIED", snap.ModifiedLabel)
	}
	if snap.DatetimeFormat != "" {
		e.Set("RCLMD_DATETIME_FORMAT", snap.DatetimeFormat)
	}
	return e.Merge(snap.ExtraEnv)
}
