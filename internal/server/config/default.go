package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr      = "127.0.0.1:5080"
	DefaultUpstreamURL   = "http://127.0.0.1:3000"
	DefaultTimeout       = 15 * time.Second
	DefaultProbeInterval = 15 * time.Second
	DefaultProbePath     = "/health"

	DefaultDataDir    = "/var/lib/shellkeep-agent/data"
	DefaultCacheFile  = "cache.db"
	DefaultGCInterval = 10 * time.Minute

	DefaultAPIPrefix       = "/api/v1/"
	DefaultThumbnailPrefix = "/tmdb/"

	DefaultRateLimitRPS   = 50
	DefaultRateLimitBurst = 100
	DefaultReplayRate     = 5
	DefaultReplayBurst    = 1

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default agent configuration.
func Default() *AgentConfig {
	return &AgentConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr: DefaultHTTPAddr,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: DefaultRateLimitRPS,
				Burst:             DefaultRateLimitBurst,
			},
			OperatorAllowList: []string{"127.0.0.1", "::1"},
			Audit:             true,
		},
		Upstream: UpstreamSection{
			URL:           DefaultUpstreamURL,
			Timeout:       DefaultTimeout,
			ProbeInterval: DefaultProbeInterval,
			ProbePath:     DefaultProbePath,
		},
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			CacheFile:  DefaultCacheFile,
			GCInterval: DefaultGCInterval,
		},
		Cache: CacheSection{
			APIPrefix:       DefaultAPIPrefix,
			ThumbnailPrefix: DefaultThumbnailPrefix,
			ThumbnailHosts:  []string{"image.tmdb.org"},
		},
		Sync: SyncSection{
			ReplayRate:  DefaultReplayRate,
			ReplayBurst: DefaultReplayBurst,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
