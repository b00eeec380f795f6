package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"phone-auth-service/internal/config"
)

var ErrNoCertificate = errors.New("no TLS certificate available")

type TLSManager struct {
	config      config.ServerConfig
	development bool
	autoCert    *autocert.Manager
	logger      *zap.Logger

	mu       sync.Mutex
	fallback *tls.Certificate
}

func NewTLSManager(cfg config.ServerConfig, development bool, logger *zap.Logger) *TLSManager {
	manager := &TLSManager{
		config:      cfg,
		development: development,
		logger:      logger,
	}

	if cfg.AutoCert && cfg.EnableTLS {
		manager.setupAutoCert()
	}

	return manager
}

func (m *TLSManager) setupAutoCert() {
	if err := os.MkdirAll(m.config.AutoCertDir, 0o700); err != nil {
		m.logger.Warn("Could not create autocert directory", zap.Error(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.config.Domain),
		Cache:      autocert.DirCache(m.config.AutoCertDir),
		Email:      m.config.Email,
	}

	m.logger.Info("AutoCert configured",
		zap.String("domain", m.config.Domain),
		zap.String("cache_dir", m.config.AutoCertDir))
}

// GetCertificate tries ACME, then the configured key pair, then (in
// development only) a self-signed certificate.
func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		if cert, err := m.autoCert.GetCertificate(hello); err == nil {
			return cert, nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fallback != nil {
		return m.fallback, nil
	}

	if m.config.CertFile != "" && m.config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
		if err == nil {
			m.fallback = &cert
			return m.fallback, nil
		}
		m.logger.Warn("Failed to load configured key pair", zap.Error(err))
	}

	if !m.development {
		return nil, ErrNoCertificate
	}

	cert, err := m.generateSelfSignedCert()
	if err != nil {
		return nil, err
	}
	m.fallback = cert
	return cert, nil
}

func (m *TLSManager) generateSelfSignedCert() (*tls.Certificate, error) {
	hosts := []string{m.config.Domain, "localhost", "127.0.0.1", "::1"}

	cert, err := NewDevCertGenerator(m.config.AutoCertDir, m.logger).GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	return &cert, nil
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

// HTTPHandler answers ACME http-01 challenges and passes everything else
// to fallback.
func (m *TLSManager) HTTPHandler(fallback http.Handler) http.Handler {
	if m.autoCert == nil {
		return fallback
	}
	return m.autoCert.HTTPHandler(fallback)
}
