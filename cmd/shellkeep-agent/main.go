package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/agent/cache"
	"github.com/yndnr/shellkeep-go/internal/infra/buildinfo"
	"github.com/yndnr/shellkeep-go/internal/infra/confloader"
	"github.com/yndnr/shellkeep-go/internal/infra/shutdown"
	"github.com/yndnr/shellkeep-go/internal/infra/tlsroots"
	"github.com/yndnr/shellkeep-go/internal/server/config"
	"github.com/yndnr/shellkeep-go/internal/server/httpserver"
	"github.com/yndnr/shellkeep-go/internal/storage"
	"github.com/yndnr/shellkeep-go/internal/telemetry/logger"
	"github.com/yndnr/shellkeep-go/internal/telemetry/metric"
	"github.com/yndnr/shellkeep-go/pkg/crypto/adaptive"
)

// agentStateKeyInfo separates the page-state key from other keys derived
// from the same secret.
const agentStateKeyInfo = "shellkeep/agent-state"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		listen      = flag.String("listen", "", "Listen address, overrides server.http.addr (host:port or unix:///path)")
		upstream    = flag.String("upstream", "", "Application origin, overrides upstream.url")
		logLevel    = flag.String("log-level", "", "Log level, overrides log.level")
	)
	flag.Parse()
	overrides := map[string]any{
		"server.http.addr": *listen,
		"upstream.url":     *upstream,
		"log.level":        *logLevel,
	}

	if *showVersion {
		fmt.Printf("shellkeep-agent %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting shellkeep-agent",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile)

	hooks := shutdown.NewHandler(30*time.Second, log)
	// Anything opened before a failed step still gets closed.
	fail := func(err error) error {
		hooks.Trigger()
		hooks.Wait(context.Background())
		return err
	}

	metrics := metric.NewRegistry()

	kv, err := initKV(cfg, log, metrics)
	if err != nil {
		return fail(fmt.Errorf("init kv: %w", err))
	}
	hooks.OnShutdown("kv", func(context.Context) error {
		log.Info("closing kv store")
		return kv.Close()
	})

	store, err := cache.OpenStore(cfg.Storage.CachePath(), log)
	if err != nil {
		return fail(fmt.Errorf("open cache: %w", err))
	}
	hooks.OnShutdown("cache", func(context.Context) error {
		log.Info("closing cache store")
		return store.Close()
	})

	a, err := initAgent(cfg, kv, store, metrics, log)
	if err != nil {
		return fail(fmt.Errorf("init agent: %w", err))
	}
	if err := a.Start(context.Background()); err != nil {
		return fail(fmt.Errorf("start agent: %w", err))
	}
	hooks.OnShutdown("agent", func(context.Context) error {
		log.Info("stopping agent")
		return a.Close()
	})

	unix, socketPath := unixSocket(cfg.Server.HTTP.Addr)
	allowList := cfg.Server.OperatorAllowList
	if unix && len(allowList) > 0 {
		// Unix peers have no IP; the socket's file mode gates access.
		log.Info("operator allow list ignored on unix socket", "socket", socketPath)
		allowList = nil
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Agent:              a,
		Metrics:            metrics,
		Logger:             log,
		OperatorAllowList:  allowList,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimit:          rateLimit(cfg.Server.RateLimit),
		RateBurst:          cfg.Server.RateLimit.Burst,
		EnableAudit:        cfg.Server.Audit,
	})
	server := httpserver.New(cfg.Server.HTTP.Addr, router)

	serve, err := initListener(cfg, server, unix, socketPath, metrics, log, hooks)
	if err != nil {
		return fail(err)
	}
	hooks.OnShutdown("http", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	if *configFile != "" {
		watchConfig(*configFile, overrides, log, hooks)
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr, "upstream", cfg.Upstream.URL)
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			hooks.Trigger()
		}
	}()

	log.Info("agent started, press Ctrl+C to stop")
	if err := hooks.Wait(context.Background()); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("agent stopped gracefully")
	return nil
}

// loadConfig loads configuration from file, environment and flag
// overrides, in rising priority.
func loadConfig(configFile string, overrides map[string]any) (*config.AgentConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithOverrides(overrides)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger installs the process logger and returns its slog form.
func initLogger(cfg *config.AgentConfig) (*slog.Logger, error) {
	l, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(l)
	return logger.Slog(l), nil
}

func initKV(cfg *config.AgentConfig, log *slog.Logger, metrics *metric.Registry) (*storage.BadgerEngine, error) {
	kvCfg := storage.DefaultKVConfig(cfg.Storage.KVDir())
	if cfg.Storage.GCInterval > 0 {
		kvCfg.Badger.GCInterval = cfg.Storage.GCInterval
	}
	kv, err := storage.NewBadgerEngine(kvCfg, log)
	if err != nil {
		return nil, err
	}
	return kv.RegisterMetrics(metrics.Registerer()), nil
}

func initAgent(cfg *config.AgentConfig, kv storage.KVEngine, store *cache.Store, metrics *metric.Registry, log *slog.Logger) (*agent.Agent, error) {
	upstream, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		return nil, fmt.Errorf("upstream url: %w", err)
	}

	transport, err := tlsroots.UpstreamTransport(cfg.Security.TLSCAFile)
	if err != nil {
		return nil, fmt.Errorf("upstream tls: %w", err)
	}

	var cipher *adaptive.Cipher
	if cfg.Security.EncryptionKey != "" {
		key, err := adaptive.DeriveKey(cfg.Security.EncryptionKey, agentStateKeyInfo)
		if err != nil {
			return nil, err
		}
		if cipher, err = adaptive.New(key); err != nil {
			return nil, err
		}
		log.Info("page state encryption enabled")
	}

	return agent.New(agent.Config{
		Upstream: upstream,
		Client:   &http.Client{Transport: transport, Timeout: cfg.Upstream.Timeout},
		Timeout:  cfg.Upstream.Timeout,
		KV:       kv,
		Cache:    store,
		Classifier: cache.Classifier{
			APIPrefix:       cfg.Cache.APIPrefix,
			ThumbnailPrefix: cfg.Cache.ThumbnailPrefix,
			ThumbnailHosts:  cfg.Cache.ThumbnailHosts,
		},
		Metrics:       metrics,
		ReplayRate:    cfg.Sync.ReplayRate,
		ReplayBurst:   cfg.Sync.ReplayBurst,
		ProbeInterval: cfg.Upstream.ProbeInterval,
		ProbePath:     cfg.Upstream.ProbePath,
		StateCipher:   cipher,
		Logger:        log,
	})
}

// initListener picks how the server accepts connections: a unix socket,
// TLS with hot-reloaded certificates, or plain TCP.
func initListener(cfg *config.AgentConfig, server *httpserver.Server, unix bool, socketPath string, metrics *metric.Registry, log *slog.Logger, hooks *shutdown.Handler) (func() error, error) {
	if unix {
		// A socket left by a crashed agent blocks Listen.
		if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
		l, err := net.Listen("unix", socketPath)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", socketPath, err)
		}
		if err := os.Chmod(socketPath, 0o600); err != nil {
			l.Close()
			return nil, fmt.Errorf("chmod socket: %w", err)
		}
		return func() error { return server.Serve(l) }, nil
	}

	httpCfg := cfg.Server.HTTP
	if httpCfg.TLSCertFile == "" {
		return server.ListenAndServe, nil
	}

	certs, err := tlsroots.LoadServingCert(httpCfg.TLSCertFile, httpCfg.TLSKeyFile,
		tlsroots.WithLogger(log),
		tlsroots.OnReload(func(info tlsroots.CertInfo) { metrics.SetServingCertExpiry(info.NotAfter) }),
	)
	if err != nil {
		return nil, err
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	go func() {
		if err := certs.Watch(watchCtx); err != nil {
			log.Warn("serving certificate will not be reloaded", "error", err)
		}
	}()
	hooks.OnShutdown("tls-watcher", func(context.Context) error {
		stopWatch()
		return nil
	})
	server.SetTLSConfig(certs.ServerTLSConfig())
	return func() error { return server.ListenAndServeTLS("", "") }, nil
}

// watchConfig reloads the log level when the config file changes. Other
// settings need a restart.
func watchConfig(path string, overrides map[string]any, log *slog.Logger, hooks *shutdown.Handler) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		log.Warn("config watcher unavailable", "error", err)
		return
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return
	}
	w.OnChange(func(string) {
		cfg, err := loadConfig(path, overrides)
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	w.StartAsync()
	hooks.OnShutdown("config-watcher", func(context.Context) error { return w.Stop() })
}

func unixSocket(addr string) (bool, string) {
	path, ok := strings.CutPrefix(addr, "unix://")
	return ok, path
}

func rateLimit(cfg config.RateLimitConfig) float64 {
	if !cfg.Enabled {
		return 0
	}
	return cfg.RequestsPerSecond
}
