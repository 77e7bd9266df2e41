package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/recollsup/internal/config"
)

// File names used inside TLSConfig.Dir.
const (
	CACertFile = "tls_ca.crt"
	CertFile   = "tls.crt"
	KeyFile    = "tls.key"
)

// parseVersion parses a TLS version string and returns the corresponding constant
func parseVersion(ver string) (uint16, bool) {
	switch strings.ToLower(ver) {
	case "", "default":
		return tls.VersionTLS13, false
	case "1.2", "tls1.2":
		return tls.VersionTLS12, true
	case "1.3", "tls1.3":
		return tls.VersionTLS13, true
	default:
		return 0, false
	}
}

// safeReadFile reads p only if it lies inside baseDir.
func safeReadFile(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// certificateFunc reloads the key pair on every handshake so rotated files
// are picked up without a restart.
func certificateFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	baseDir := filepath.Dir(certFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := safeReadFile(baseDir, certFile)
		if err != nil {
			return nil, err
		}
		keyPEM, err := os.ReadFile(filepath.Clean(keyFile))
		if err != nil {
			return nil, err
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		return &cert, err
	}
}

// Paths returns the certificate and key files selected by cfg.
func Paths(cfg config.TLSConfig) (certPath, keyPath string, err error) {
	switch {
	case cfg.CertFile != "" && cfg.KeyFile != "":
		return cfg.CertFile, cfg.KeyFile, nil
	case cfg.Dir != "":
		return filepath.Join(cfg.Dir, CertFile), filepath.Join(cfg.Dir, KeyFile), nil
	default:
		return "", "", errors.New("TLS enabled but no certificate configuration found")
	}
}

// Setup builds the server TLS configuration. It returns nil when TLS is
// disabled.
func Setup(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if _, ok := parseVersion(cfg.MinVersion); !ok && cfg.MinVersion != "" && cfg.MinVersion != "default" {
		return nil, fmt.Errorf("unsupported TLS version %q", cfg.MinVersion)
	}
	certPath, keyPath, err := Paths(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CertFile == "" && cfg.AutoGenerate && !certificatesExist(certPath, keyPath) {
		if err := generate(cfg); err != nil {
			return nil, fmt.Errorf("certificate generation failed: %w", err)
		}
	}
	// fail at startup rather than on the first handshake
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	minVer, _ := parseVersion(cfg.MinVersion)
	// #nosec G402 minimum version is configurable down to TLS 1.2 only
	return &tls.Config{
		GetCertificate: certificateFunc(certPath, keyPath),
		MinVersion:     minVer,
	}, nil
}

// ClientConfig builds a client TLS configuration that trusts caFile in
// addition to the system roots.
func ClientConfig(caFile, serverName string, skipVerify bool) (*tls.Config, error) {
	// #nosec G402 skipVerify is an explicit opt-in
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: serverName, InsecureSkipVerify: skipVerify}
	if caFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(filepath.Clean(caFile))
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}
