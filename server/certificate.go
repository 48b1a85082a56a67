// File: server/certificate.go
// Package server
// Author: momentics <momentics@gmail.com>

package server

import (
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-socket/api"
)

// CertificateProvider supplies the server certificate for TLS sessions.
type CertificateProvider interface {
	Certificate() (*tls.Certificate, error)
}

// CertificateFunc adapts a function to CertificateProvider.
type CertificateFunc func() (*tls.Certificate, error)

// Certificate calls f.
func (f CertificateFunc) Certificate() (*tls.Certificate, error) { return f() }

// StaticCertificate serves an already loaded certificate.
func StaticCertificate(cert tls.Certificate) CertificateProvider {
	return CertificateFunc(func() (*tls.Certificate, error) { return &cert, nil })
}

// FileCertificateProvider loads a PEM key pair once and serves it for the
// lifetime of the process.
type FileCertificateProvider struct {
	certFile string
	keyFile  string
	mu       sync.Mutex
	cert     atomic.Pointer[tls.Certificate]
}

// NewFileCertificateProvider creates a provider for the given PEM files.
func NewFileCertificateProvider(certFile, keyFile string) *FileCertificateProvider {
	return &FileCertificateProvider{certFile: certFile, keyFile: keyFile}
}

// Certificate implements CertificateProvider with a double-checked load.
func (p *FileCertificateProvider) Certificate() (*tls.Certificate, error) {
	if c := p.cert.Load(); c != nil {
		return c, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.cert.Load(); c != nil {
		return c, nil
	}
	if p.certFile == "" {
		return nil, api.ErrCertificateRequired
	}
	c, err := tls.LoadX509KeyPair(p.certFile, p.keyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate %s: %w", p.certFile, err)
	}
	p.cert.Store(&c)
	return &c, nil
}
