package config

import (
	"errors"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Verify validates the configuration.
func Verify(cfg *AgentConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyUpstream(&cfg.Upstream); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if !strings.HasPrefix(cfg.Cache.APIPrefix, "/") {
		return errors.New("cache.api_prefix must start with /")
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if path, ok := strings.CutPrefix(cfg.HTTP.Addr, "unix://"); ok {
		if path == "" {
			return errors.New("server.http.addr: unix address needs a socket path")
		}
	} else if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return errors.New("server.http.addr: " + err.Error())
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("server.rate_limit.requests_per_second must be positive")
	}
	for _, entry := range cfg.OperatorAllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return errors.New("server.operator_allow_list: invalid CIDR " + entry)
			}
		} else if net.ParseIP(entry) == nil {
			return errors.New("server.operator_allow_list: invalid IP " + entry)
		}
	}
	return nil
}

func verifyUpstream(cfg *UpstreamSection) error {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("upstream.url must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("upstream.url scheme must be http or https")
	}
	if cfg.Timeout < 0 || cfg.ProbeInterval < 0 {
		return errors.New("upstream durations must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	// Check if data directory exists or can be created
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	if cfg.CacheFile == "" {
		return errors.New("storage.cache_file is required")
	}
	return nil
}

// CachePath returns the absolute cache database path.
func (s StorageSection) CachePath() string {
	if s.CacheFile == ":memory:" || filepath.IsAbs(s.CacheFile) {
		return s.CacheFile
	}
	return filepath.Join(s.DataDir, s.CacheFile)
}

// KVDir returns the Badger directory.
func (s StorageSection) KVDir() string {
	return filepath.Join(s.DataDir, "kv")
}
