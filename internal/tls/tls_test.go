package tls

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/loykin/recollsup/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabled(t *testing.T) {
	cfg, err := Setup(config.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestSetupRequiresCertificates(t *testing.T) {
	_, err := Setup(config.TLSConfig{Enabled: true})
	assert.Error(t, err)

	_, err = Setup(config.TLSConfig{Enabled: true, Dir: t.TempDir()})
	assert.Error(t, err, "missing files without auto_generate")

	_, err = Setup(config.TLSConfig{Enabled: true, Dir: t.TempDir(), AutoGenerate: true, MinVersion: "1.0"})
	assert.Error(t, err)
}

func TestAutoGenerateAndHandshake(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	srvCfg, err := Setup(config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true, MinVersion: "1.2"})
	require.NoError(t, err)
	require.NotNil(t, srvCfg)
	assert.Equal(t, uint16(tls.VersionTLS12), srvCfg.MinVersion)
	for _, f := range []string{CertFile, KeyFile, CACertFile} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}

	// a second call reuses the existing pair
	before, _ := os.ReadFile(filepath.Join(dir, CertFile))
	_, err = Setup(config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true})
	require.NoError(t, err)
	after, _ := os.ReadFile(filepath.Join(dir, CertFile))
	assert.Equal(t, before, after)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	srv.TLS = srvCfg
	srv.StartTLS()
	defer srv.Close()

	cliCfg, err := ClientConfig(filepath.Join(dir, CACertFile), "localhost", false)
	require.NoError(t, err)
	c := &http.Client{Transport: &http.Transport{TLSClientConfig: cliCfg}}
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientConfigRejectsBadCA(t *testing.T) {
	p := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(p, []byte("not a cert"), 0o644))
	_, err := ClientConfig(p, "", false)
	assert.Error(t, err)
	_, err = ClientConfig(filepath.Join(t.TempDir(), "missing"), "", false)
	assert.Error(t, err)
}
