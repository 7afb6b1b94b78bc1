package config

import "time"

// AgentConfig is the root configuration for shellkeep-agent.
type AgentConfig struct {
	Server   ServerSection   `koanf:"server"`
	Upstream UpstreamSection `koanf:"upstream"`
	Storage  StorageSection  `koanf:"storage"`
	Cache    CacheSection    `koanf:"cache"`
	Sync     SyncSection     `koanf:"sync"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures the agent listener.
type ServerSection struct {
	HTTP      HTTPConfig      `koanf:"http"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`

	// CORSAllowedOrigins limits cross-origin page requests. Empty allows
	// every origin.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
	// OperatorAllowList restricts the operator routes (/agent/v1/*,
	// /metrics) to these IPs or CIDRs. Empty means no restriction.
	OperatorAllowList []string `koanf:"operator_allow_list"`
	Audit             bool     `koanf:"audit"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	// Addr is host:port, or unix:///path/to/agent.sock.
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	Enabled           bool    `koanf:"enabled"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// UpstreamSection configures the application origin the agent fronts.
type UpstreamSection struct {
	// URL is the origin base URL, e.g. "http://127.0.0.1:3000".
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`

	// ProbeInterval is how often connectivity is checked when idle.
	ProbeInterval time.Duration `koanf:"probe_interval"`
	ProbePath     string        `koanf:"probe_path"`
}

// StorageSection configures durable storage.
type StorageSection struct {
	DataDir string `koanf:"data_dir"`
	// CacheFile is the SQLite response cache. Relative paths resolve
	// against DataDir.
	CacheFile  string        `koanf:"cache_file"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// CacheSection configures request classification.
type CacheSection struct {
	APIPrefix       string   `koanf:"api_prefix"`
	ThumbnailPrefix string   `koanf:"thumbnail_prefix"`
	ThumbnailHosts  []string `koanf:"thumbnail_hosts"`
}

// SyncSection configures queue replay.
type SyncSection struct {
	ReplayRate  float64 `koanf:"replay_rate"`
	ReplayBurst int     `koanf:"replay_burst"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// EncryptionKey seals the stored page state when set.
	EncryptionKey string `koanf:"encryption_key"`
	TLSCAFile     string `koanf:"tls_ca_file"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
