package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/meetgate/internal/config"
	"github.com/teemow/meetgate/internal/directory"
	"github.com/teemow/meetgate/internal/instrumentation"
	"github.com/teemow/meetgate/internal/logging"
	"github.com/teemow/meetgate/internal/meetings"
	"github.com/teemow/meetgate/internal/server"
	"github.com/teemow/meetgate/internal/session"
	"github.com/teemow/meetgate/internal/webex"
)

// serveOptions holds command-line overrides for the serve command.
type serveOptions struct {
	configFile     string
	debugMode      bool
	logFormat      string
	httpAddr       string
	staticDir      string
	trustProxy     bool
	metricsEnabled bool
	metricsAddr    string
	corsOrigins    []string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the meetgate HTTP API server.

Configuration is read from built-in defaults, then the optional --config YAML
file, then environment variables. Flags given on the command line win.

Required settings:
  LDAP_URL (or LDAP_SERVER and LDAP_PORT)   directory address
  LDAP_BASE_DN_1, LDAP_BASE_DN_2            search bases, tried in order
  JWT_SECRET                                session token signing secret
  WEBEX_CLIENT_ID, WEBEX_CLIENT_SECRET,
  WEBEX_REFRESH_TOKEN                       Webex OAuth integration credentials
  FIXED_HOST_EMAIL                          Webex account that hosts every meeting

Optional settings:
  WEBEX_ACCESS_TOKEN     pre-issued access token used until the first refresh
  WEBEX_TIMEZONE         timezone for new meetings (default: Asia/Kolkata)
  STATIC_DIR             front-end directory served with index.html fallback
  CORS_ALLOWED_ORIGINS   comma-separated origins allowed to call the API
  TRUST_PROXY            take client IPs from X-Forwarded-For/X-Real-IP

Login attempts are rate limited per client IP (1/s, burst 5). Without
TRUST_PROXY the client IP is the connection's remote address, so behind a
reverse proxy every user shares one limit. Set TRUST_PROXY=true there, and
only there, since clients can forge these headers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, opts)

			logger, err := newLogger(os.Stderr, opts.logFormat, opts.debugMode)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			return runServe(cfg, logger)
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "Path to a YAML configuration file")
	cmd.Flags().BoolVar(&opts.debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", config.DefaultHTTPAddr, "HTTP server address. Can also use PORT or HTTP_ADDR env vars.")
	cmd.Flags().StringVar(&opts.staticDir, "static-dir", "", "Directory with front-end files to serve. Can also use STATIC_DIR env var.")
	cmd.Flags().BoolVar(&opts.trustProxy, "trust-proxy", false, "Trust X-Forwarded-For and X-Real-IP for client IPs (only behind a trusted proxy). Can also use TRUST_PROXY env var.")
	cmd.Flags().StringSliceVar(&opts.corsOrigins, "cors-origins", nil, "Origins allowed to call the API (comma-separated). Can also use CORS_ALLOWED_ORIGINS env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// applyServeFlags copies flags that were set explicitly onto cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, opts serveOptions) {
	flags := cmd.Flags()
	if flags.Changed("http-addr") {
		cfg.HTTP.Addr = opts.httpAddr
	}
	if flags.Changed("static-dir") {
		cfg.StaticDir = opts.staticDir
	}
	if flags.Changed("trust-proxy") {
		cfg.HTTP.TrustProxy = opts.trustProxy
	}
	if flags.Changed("cors-origins") {
		cfg.CORS.AllowedOrigins = opts.corsOrigins
	}
	if flags.Changed("metrics-enabled") {
		cfg.Metrics.Enabled = opts.metricsEnabled
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
}

// newLogger creates the process logger.
func newLogger(w io.Writer, format string, debug bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s (supported: text, json)", format)
	}
}

// components are the domain services shared by serve and check.
type components struct {
	authenticator *directory.Authenticator
	tokens        *webex.TokenCache
	meetings      *meetings.Service
	sessions      *session.Manager
}

func buildComponents(cfg *config.Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*components, error) {
	authenticator, err := directory.NewAuthenticator(directory.Config{
		URL:           cfg.Directory.URL,
		BaseDNs:       cfg.Directory.BaseDNs,
		Timeout:       cfg.Directory.Timeout,
		BindDN:        cfg.Directory.BindDN,
		BindPassword:  cfg.Directory.BindPassword,
		UserAttribute: cfg.Directory.UserAttribute,
	},
		directory.WithMetrics(metrics),
		directory.WithLogger(logging.WithService(logger, instrumentation.ServiceLDAP)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory authenticator: %w", err)
	}

	webexLogger := logging.WithService(logger, instrumentation.ServiceWebex)
	tokens, err := webex.NewTokenCache(webex.TokenConfig{
		ClientID:        cfg.Webex.ClientID,
		ClientSecret:    cfg.Webex.ClientSecret,
		RefreshToken:    cfg.Webex.RefreshToken,
		TokenURL:        cfg.Webex.TokenURL,
		SeedAccessToken: cfg.Webex.AccessToken,
	},
		webex.WithTokenHTTPClient(&http.Client{Timeout: cfg.Webex.Timeout}),
		webex.WithTokenMetrics(metrics),
		webex.WithTokenLogger(webexLogger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webex token cache: %w", err)
	}

	client := webex.NewClient(webex.ClientConfig{
		BaseURL: cfg.Webex.BaseURL,
		Timeout: cfg.Webex.Timeout,
	}, tokens,
		webex.WithMetrics(metrics),
		webex.WithLogger(webexLogger),
	)

	svc, err := meetings.NewService(meetings.Config{
		HostEmail: cfg.Webex.HostEmail,
		Timezone:  cfg.Webex.Timezone,
	}, client, metrics, logging.NewSlogAdapter(logging.WithService(logger, "meetings")))
	if err != nil {
		return nil, fmt.Errorf("failed to create meeting service: %w", err)
	}

	sessions, err := session.NewManager(session.Config{
		Secret: []byte(cfg.Session.Secret),
		TTL:    cfg.Session.TTL,
		Issuer: cfg.Session.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	return &components{
		authenticator: authenticator,
		tokens:        tokens,
		meetings:      svc,
		sessions:      sessions,
	}, nil
}

func runServe(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// Start metrics server if enabled
	if cfg.Metrics.Enabled && provider.Enabled() {
		metricsServer, err := startMetricsServer(cfg.Metrics.Addr, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Error("error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	comps, err := buildComponents(cfg, provider.Metrics(), logger)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Addr:           cfg.HTTP.Addr,
		StaticDir:      cfg.StaticDir,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		TrustProxy:     cfg.HTTP.TrustProxy,
		LoginRateLimit: server.RateLimitConfig{
			Enabled: cfg.RateLimit.Enabled,
			Rate:    cfg.RateLimit.Rate,
			Burst:   cfg.RateLimit.Burst,
		},
		Version: version,
	}, server.Dependencies{
		Authenticator: comps.authenticator,
		Sessions:      comps.sessions,
		Meetings:      comps.meetings,
		Metrics:       provider.Metrics(),
		Audit:         provider.Audit(),
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	srv.Health().AddCheck("directory", comps.authenticator.Ping)
	srv.Health().AddCheck("webex_token", func(ctx context.Context) error {
		_, err := comps.tokens.AccessToken(ctx)
		return err
	})

	logger.Info("meetgate starting",
		"version", version,
		"addr", cfg.HTTP.Addr,
		"directory", cfg.Directory.URL,
		"base_dns", len(cfg.Directory.BaseDNs),
		"session_ttl", comps.sessions.TTL(),
		"static_dir", cfg.StaticDir)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

func startMetricsServer(addr string, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("metrics server started", "addr", metricsServer.Addr())
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, errors.New("metrics server startup timed out")
	}
}
