package tlsroots

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrCertExpired is returned when a serving certificate is past NotAfter.
var ErrCertExpired = errors.New("tlsroots: serving certificate has expired")

const (
	defaultSettle        = 250 * time.Millisecond
	defaultExpiryWarning = 7 * 24 * time.Hour
)

// CertInfo describes the loaded serving certificate.
type CertInfo struct {
	Subject     string    `json:"subject"`
	DNSNames    []string  `json:"dnsNames,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	NotAfter    time.Time `json:"notAfter"`
	LoadedAt    time.Time `json:"loadedAt"`
}

// ServingCert is the certificate the agent presents to pages connecting
// over TLS. It follows the files on disk: a replacement is swapped in once
// writes to the pair have settled. A replacement that does not load, or
// has already expired, is logged and the previous pair keeps serving.
type ServingCert struct {
	certFile string
	keyFile  string

	log           *slog.Logger
	settle        time.Duration
	expiryWarning time.Duration
	onReload      func(CertInfo)
	now           func() time.Time

	pair atomic.Pointer[tls.Certificate]
	info atomic.Pointer[CertInfo]
}

// CertOption configures a ServingCert.
type CertOption func(*ServingCert)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) CertOption {
	return func(c *ServingCert) { c.log = log }
}

// WithSettle sets how long the files must stay quiet before a reload.
func WithSettle(d time.Duration) CertOption {
	return func(c *ServingCert) { c.settle = d }
}

// WithExpiryWarning sets how close to NotAfter a load logs a warning.
func WithExpiryWarning(d time.Duration) CertOption {
	return func(c *ServingCert) { c.expiryWarning = d }
}

// OnReload registers fn to run after each load that changes the
// certificate, including the first.
func OnReload(fn func(CertInfo)) CertOption {
	return func(c *ServingCert) { c.onReload = fn }
}

// LoadServingCert loads the key pair and returns a holder for it.
func LoadServingCert(certFile, keyFile string, opts ...CertOption) (*ServingCert, error) {
	c := &ServingCert{
		certFile:      certFile,
		keyFile:       keyFile,
		log:           slog.Default(),
		settle:        defaultSettle,
		expiryWarning: defaultExpiryWarning,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.Reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: load serving cert: %w", err)
	}
	return c, nil
}

// Info describes the certificate currently served.
func (c *ServingCert) Info() CertInfo {
	return *c.info.Load()
}

// GetCertificate implements tls.Config.GetCertificate.
func (c *ServingCert) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return c.pair.Load(), nil
}

// ServerTLSConfig returns a server config that always presents the
// current pair.
func (c *ServingCert) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: c.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// Reload reads the pair from disk and swaps it in.
func (c *ServingCert) Reload() error {
	pair, err := tls.LoadX509KeyPair(c.certFile, c.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	leaf := pair.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(pair.Certificate[0]); err != nil {
			return fmt.Errorf("parse leaf: %w", err)
		}
		pair.Leaf = leaf
	}

	now := c.now()
	if now.After(leaf.NotAfter) {
		return fmt.Errorf("%w: not after %s", ErrCertExpired, leaf.NotAfter.Format(time.RFC3339))
	}

	sum := sha256.Sum256(leaf.Raw)
	info := CertInfo{
		Subject:     leaf.Subject.String(),
		DNSNames:    leaf.DNSNames,
		Fingerprint: hex.EncodeToString(sum[:]),
		NotAfter:    leaf.NotAfter,
		LoadedAt:    now,
	}
	if prev := c.info.Load(); prev != nil && prev.Fingerprint == info.Fingerprint {
		c.log.Debug("serving certificate unchanged", "fingerprint", info.Fingerprint)
		return nil
	}

	c.pair.Store(&pair)
	c.info.Store(&info)

	c.log.Info("serving certificate loaded",
		"subject", info.Subject,
		"fingerprint", info.Fingerprint,
		"not_after", info.NotAfter,
	)
	if left := info.NotAfter.Sub(now); left < c.expiryWarning {
		c.log.Warn("serving certificate expires soon",
			"not_after", info.NotAfter,
			"remaining", left.Round(time.Minute),
		)
	}
	if c.onReload != nil {
		c.onReload(info)
	}
	return nil
}

// Watch reloads the pair when either file changes, until ctx is done.
// The parent directories are watched so editors and tools that replace
// files by rename are seen.
func (c *ServingCert) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer fw.Close()

	dirs := []string{filepath.Dir(c.certFile)}
	if d := filepath.Dir(c.keyFile); d != dirs[0] {
		dirs = append(dirs, d)
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}

	names := map[string]bool{
		filepath.Base(c.certFile): true,
		filepath.Base(c.keyFile):  true,
	}

	var (
		timer  *time.Timer
		settle <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !names[filepath.Base(ev.Name)] || ev.Op == fsnotify.Chmod {
				continue
			}
			c.log.Debug("serving certificate file changed", "file", ev.Name, "op", ev.Op.String())
			// Cert and key are rarely written together; wait for both.
			if timer == nil {
				timer = time.NewTimer(c.settle)
			} else {
				timer.Reset(c.settle)
			}
			settle = timer.C

		case <-settle:
			settle = nil
			if err := c.Reload(); err != nil {
				c.log.Error("serving certificate reload failed, keeping previous",
					"error", err,
					"cert_file", c.certFile,
					"fingerprint", c.Info().Fingerprint,
				)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("serving certificate watcher error", "error", err)
		}
	}
}
