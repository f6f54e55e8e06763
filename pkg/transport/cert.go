package transport

import (
	"crypto/tls"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// CertConfig locates the merchant API client certificate. Either the PEM
// pair (CertFile + KeyFile) or a PKCS#12 bundle (P12File) must be set.
type CertConfig struct {
	CertFile    string
	KeyFile     string
	P12File     string
	P12Password string
}

// Configured reports whether any complete certificate source is present.
func (c CertConfig) Configured() bool {
	return (c.CertFile != "" && c.KeyFile != "") || c.P12File != ""
}

// LoadClientCertificate reads the configured certificate material.
func LoadClientCertificate(cfg CertConfig) (tls.Certificate, error) {
	switch {
	case cfg.CertFile != "" && cfg.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load PEM key pair: %w", err)
		}
		return cert, nil
	case cfg.P12File != "":
		return loadP12(cfg.P12File, cfg.P12Password)
	default:
		return tls.Certificate{}, ErrNoClientCertificate
	}
}

// loadP12 decodes the apiclient_cert.p12 bundle the merchant platform issues.
// The password is usually the merchant id.
func loadP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read p12 file: %w", err)
	}

	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to decode p12 file: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}
