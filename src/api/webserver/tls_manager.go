package webserver

import (
	"crypto/tls"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TLSReloader serves the current certificate pair and hot-reloads it when the
// files on disk change, so certificate rotation needs no restart.
type TLSReloader struct {
	certFile    string
	keyFile     string
	cert        *tls.Certificate
	mu          sync.RWMutex
	lastModCert time.Time
	lastModKey  time.Time
	log         *zap.SugaredLogger
}

func NewTLSReloader(certFile, keyFile string, log *zap.SugaredLogger) (*TLSReloader, error) {
	reloader := &TLSReloader{
		certFile: certFile,
		keyFile:  keyFile,
		log:      log.With("component", "tls"),
	}

	if err := reloader.reload(); err != nil {
		return nil, err
	}

	go reloader.watchFiles()

	return reloader, nil
}

func (r *TLSReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()

	if certInfo, err := os.Stat(r.certFile); err == nil {
		r.lastModCert = certInfo.ModTime()
	}
	if keyInfo, err := os.Stat(r.keyFile); err == nil {
		r.lastModKey = keyInfo.ModTime()
	}

	r.log.Info("TLS certificates loaded")
	return nil
}

func (r *TLSReloader) watchFiles() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		certInfo, err := os.Stat(r.certFile)
		if err != nil {
			r.log.Warnw("stat cert file failed", "err", err)
			continue
		}
		keyInfo, err := os.Stat(r.keyFile)
		if err != nil {
			r.log.Warnw("stat key file failed", "err", err)
			continue
		}

		if certInfo.ModTime().After(r.lastModCert) || keyInfo.ModTime().After(r.lastModKey) {
			if err := r.reload(); err != nil {
				r.log.Errorw("certificate reload failed", "err", err)
			}
		}
	}
}

func (r *TLSReloader) GetCertificate() func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.cert, nil
	}
}

func (r *TLSReloader) GetConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate(),
		MinVersion:     tls.VersionTLS12,
	}
}
