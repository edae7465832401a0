// Package tlscert adapts github.com/AgustinSRG/go-tls-certificate-loader
// into the tls.Config.GetCertificate hook the RTMPS listener needs. The
// teacher repo declares this dependency in go.mod but never imports it,
// hand-rolling the same hot-reload logic in rtmp_ssl.go instead; this
// package wires the real library in its place.
package tlscert

import (
	"crypto/tls"
	"time"

	certloader "github.com/AgustinSRG/go-tls-certificate-loader"

	"github.com/nodewire-systems/rtmp-relay/internal/logger"
)

// Loader hot-reloads a certificate/key pair from disk on a fixed
// interval, matching the teacher's checkReloadSeconds knob.
type Loader struct {
	inner *certloader.CertificateLoader
}

// Load performs the initial load and starts the background reload
// watcher. checkInterval of zero disables reloading (single load).
func Load(certPath, keyPath string, checkInterval time.Duration) (*Loader, error) {
	inner, err := certloader.NewCertificateLoader(certloader.CertificateLoaderConfig{
		CertificatePath: certPath,
		KeyPath:         keyPath,
		CheckReload:     checkInterval > 0,
		CheckInterval:   checkInterval,
		OnReload: func() {
			logger.Info("reloaded TLS certificate")
		},
		OnError: func(err error) {
			logger.Error(err)
		},
	})
	if err != nil {
		return nil, err
	}
	return &Loader{inner: inner}, nil
}

// TLSConfig returns a *tls.Config whose GetCertificate hook always
// serves the loader's current certificate, picking up reloads without
// requiring listener restarts.
func (l *Loader) TLSConfig() *tls.Config {
	return &tls.Config{GetCertificate: l.inner.GetCertificateFunc()}
}

// Close stops the reload watcher.
func (l *Loader) Close() {
	l.inner.Close()
}
