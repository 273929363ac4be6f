package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	protocolconfig "cdpchain/config"
	"cdpchain/core"
	"cdpchain/core/events"
	"cdpchain/core/genesis"
	"cdpchain/gateway/middleware"
	"cdpchain/integrations/webhooks"
	"cdpchain/observability"
	"cdpchain/observability/logging"
	telemetry "cdpchain/observability/otel"
	"cdpchain/services/cdpd/config"
	"cdpchain/services/cdpd/indexer"
	"cdpchain/services/cdpd/server"
	"cdpchain/storage"
)

func main() {
	var cfgPath string
	var trustCaller bool
	flag.StringVar(&cfgPath, "config", "cdpd.yaml", "path to the cdpd configuration")
	flag.BoolVar(&trustCaller, "trust-caller-header", false, "DEV ONLY: accept the X-CDP-Caller header when auth is disabled")
	flag.Parse()

	if err := run(cfgPath, trustCaller); err != nil {
		slog.Error("cdpd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string, trustCaller bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := cfg.Environment
	if env == "" {
		env = strings.TrimSpace(os.Getenv("CDP_ENV"))
	}
	logger, logCloser := logging.SetupFile("cdpd", env, logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "cdpd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	protocolCfg, err := protocolconfig.Load(cfg.ProtocolConfig)
	if err != nil {
		return fmt.Errorf("load protocol config: %w", err)
	}
	opts, err := protocolCfg.ProtocolOptions()
	if err != nil {
		return fmt.Errorf("protocol options: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(protocolCfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	protocol, err := core.NewProtocol(db, opts)
	if err != nil {
		db.Close()
		return fmt.Errorf("init protocol: %w", err)
	}
	defer protocol.Close()
	if err := applyGenesis(protocol, protocolCfg, logger); err != nil {
		return err
	}

	gdb, err := indexer.Open(cfg.Index.Driver, cfg.Index.DSN)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	idx, err := indexer.New(gdb, logger)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	sinks := events.Multi{idx, observability.Events()}
	if cfg.Webhook.Endpoint != "" {
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.Endpoint, []byte(cfg.Webhook.Secret()),
			webhooks.WithEvents(cfg.Webhook.Events...),
			webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, 0, 0),
			webhooks.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("init webhook: %w", err)
		}
		defer dispatcher.Close()
		sinks = append(sinks, dispatcher)
	}
	protocol.SetEmitter(sinks)

	var auth *middleware.Authenticator
	if cfg.Auth.Enabled {
		rsaKey, err := cfg.Auth.RSAPublicKey()
		if err != nil {
			return err
		}
		auth, err = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:         true,
			HMACSecret:      cfg.Auth.HMACSecret(),
			RSAPublicKeyPEM: rsaKey,
			Issuer:          cfg.Auth.Issuer,
			Audience:        cfg.Auth.Audience,
			OptionalPaths:   cfg.Auth.OptionalPaths,
			AllowAnonymous:  cfg.Auth.AllowAnonymousGet,
		}, logger)
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
	} else if !trustCaller {
		logger.Warn("auth disabled and caller header untrusted; mutations will be rejected")
	}

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for route, limit := range cfg.RateLimits {
		limits[route] = middleware.RateLimit{RatePerSecond: limit.RatePerSecond, Burst: limit.Burst}
	}
	var cors *middleware.CORSConfig
	if len(cfg.CORSOrigins) > 0 {
		cors = &middleware.CORSConfig{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", server.HeaderCaller},
		}
	}

	srv, err := server.New(server.Config{
		Protocol:          protocol,
		Indexer:           idx,
		Auth:              auth,
		Limiter:           middleware.NewRateLimiter(limits, logger),
		Observability:     middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "cdpd", Module: "cdpd", LogRequests: true, Enabled: true}, logger),
		CORS:              cors,
		Logger:            logger,
		TrustCallerHeader: trustCaller && !cfg.Auth.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	tlsConfig, err := server.TLSConfig(server.TLSSettings{
		CertFile:      cfg.TLS.CertPath,
		KeyFile:       cfg.TLS.KeyPath,
		ClientCAFile:  cfg.TLS.ClientCAPath,
		AllowInsecure: cfg.TLS.AllowInsecure,
	})
	if err != nil {
		return fmt.Errorf("configure tls: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
			listener = tls.NewListener(listener, tlsConfig)
		}
		logger.Info("cdpd listening", "address", fmt.Sprintf("%s://%s", scheme, listener.Addr()), "debt_asset", protocol.DebtAsset())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

// applyGenesis seeds a fresh store from the genesis file, or from the
// [genesis] table of the protocol config when no file is named.
func applyGenesis(protocol *core.Protocol, cfg *protocolconfig.Config, logger *slog.Logger) error {
	applied, err := protocol.GenesisApplied()
	if err != nil {
		return fmt.Errorf("inspect genesis: %w", err)
	}
	if applied {
		return nil
	}
	spec := &cfg.Genesis
	if path := strings.TrimSpace(cfg.GenesisFile); path != "" {
		if spec, err = genesis.LoadGenesisSpec(path); err != nil {
			return err
		}
	}
	if err := protocol.ApplyGenesis(spec); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis applied", "assets", len(spec.Assets), "accounts", len(spec.Alloc))
	return nil
}
