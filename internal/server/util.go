package server

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// validateExtra checks extra recollindex arguments. Flags pass through;
// any other argument must be a clean absolute path.
func validateExtra(args []string) error {
	for _, a := range args {
		if a == "" {
			return fmt.Errorf("empty argument")
		}
		if strings.ContainsFunc(a, unicode.IsControl) {
			return fmt.Errorf("argument %q contains control characters", a)
		}
		if a == "-c" {
			return fmt.Errorf("-c is set from the configuration")
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		if !isSafeAbsPath(a) {
			return fmt.Errorf("argument %q: must be a flag or an absolute path without traversal", a)
		}
	}
	return nil
}

// isSafeAbsPath ensures the provided path is absolute and does not contain traversal.
// It must be already cleaned (no ".." segments).
func isSafeAbsPath(p string) bool {
	if p == "" {
		return true
	}
	if !filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	sep := string(filepath.Separator)
	trimmed := strings.TrimRight(p, sep)
	if trimmed == "" {
		trimmed = p
	}
	return clean == p || clean == trimmed
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
