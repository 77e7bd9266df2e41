package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/recollsup/internal/config"
)

const defaultValidDays = 365 * 5

// CertConfig holds configuration for certificate generation
type CertConfig struct {
	CommonName string
	Hosts      []string
	NotAfter   time.Time
	CertPath   string
	KeyPath    string
	CACertPath string
}

func generate(cfg config.TLSConfig) error {
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return fmt.Errorf("create certificate directory: %w", err)
	}
	cn := cfg.CommonName
	if cn == "" {
		cn = "localhost"
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1", "::1"}
	}
	days := cfg.ValidDays
	if days <= 0 {
		days = defaultValidDays
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName: cn,
		Hosts:      hosts,
		NotAfter:   time.Now().AddDate(0, 0, days),
		CertPath:   filepath.Join(cfg.Dir, CertFile),
		KeyPath:    filepath.Join(cfg.Dir, KeyFile),
		CACertPath: filepath.Join(cfg.Dir, CACertFile),
	})
}

// GenerateSelfSignedCert writes a self-signed certificate and its private key.
// The certificate doubles as the CA file clients should trust.
func GenerateSelfSignedCert(c CertConfig) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   c.CommonName,
			Organization: []string{"recollsup"},
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              c.NotAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range c.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	err = errors.Join(
		os.WriteFile(c.CertPath, certPEM, 0o644),
		os.WriteFile(c.KeyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600),
	)
	if err == nil && c.CACertPath != "" {
		err = os.WriteFile(c.CACertPath, certPEM, 0o644)
	}
	return err
}
