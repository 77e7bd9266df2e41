package server

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestValidateExtra(t *testing.T) {
	valid := [][]string{nil, {"-z"}, {"-e", "-i", getPlatformAbsPath()}}
	invalid := [][]string{{""}, {"-c"}, {"rel/path"}, {"-z\n"}}
	for _, args := range valid {
		if err := validateExtra(args); err != nil {
			t.Fatalf("expected %q to be valid: %v", args, err)
		}
	}
	for _, args := range invalid {
		if err := validateExtra(args); err == nil {
			t.Fatalf("expected %q to be rejected", args)
		}
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	if !isSafeAbsPath("") {
		t.Fatalf("empty should be allowed")
	}
	abs := getPlatformAbsPath()
	if !isSafeAbsPath(abs) {
		t.Fatalf("abs clean path should be allowed: %s", abs)
	}
	if isSafeAbsPath("tmp/x") {
		t.Fatalf("relative path should be rejected")
	}
	sep := string(filepath.Separator)
	bad := sep + "tmp" + sep + ".." + sep + "etc"
	if isSafeAbsPath(bad) {
		t.Fatalf("path with traversal should be rejected: %s", bad)
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}
