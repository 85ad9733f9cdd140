package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	ratelimiter "github.com/jassus213/go-window-limiter"
	zerologadapter "github.com/jassus213/go-window-limiter/adapters/zerolog"
	"github.com/jassus213/go-window-limiter/admin"
	"github.com/jassus213/go-window-limiter/config"
	"github.com/jassus213/go-window-limiter/metrics"
	ginmw "github.com/jassus213/go-window-limiter/middleware/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rate limited demo API and the admin API",
	Long: `Start the windowlimit servers.

The server will:
  - Load configuration from windowlimit.yaml (or --config)
  - Connect to Redis and pick the script or pipeline engine
  - Serve GET /api/ping, limited by the policy named in limiter.policy
  - Serve the admin API (limits, /healthz, /metrics) on server.admin_listen

Policies, the limiter timeout, fail open and the log level are reloaded
when the file changes or on SIGHUP. Redis and strategy changes need a
restart.

Examples:
  windowlimit serve
  windowlimit serve --config /etc/windowlimit/config.yaml
  windowlimit serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	holder, err := config.NewHolder(cfgFile, bootLogger)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	defer holder.Stop()

	cfg := holder.Get()
	logger := newLogger(cfg.Logging, os.Stdout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewWithRegistry(reg)
	holder.OnReload(func(err error) {
		collector.RecordReload(err, float64(time.Now().Unix()))
	})

	b, err := openBackend(cfg, logger, collector)
	if err != nil {
		return err
	}
	defer b.Close()

	var api atomic.Pointer[gin.Engine]
	api.Store(newAPI(b.Limiter(), cfg, logger))
	holder.OnChange(onConfigChange(b, &api, logger))

	if hotReload {
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config file watch disabled")
		}
		holder.WatchSignals()
	}

	adminHandler := admin.NewHandler(admin.Deps{
		Limiter:  b,
		Policies: holder,
		Health:   b.Ping,
		Metrics:  metrics.Handler(reg),
		Logger:   logger.With().Str("component", "admin").Logger(),
	})

	servers := []*http.Server{
		{
			Addr: cfg.Server.Listen,
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				api.Load().ServeHTTP(w, r)
			}),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		{
			Addr:         cfg.Server.AdminListen,
			Handler:      adminHandler.Router(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("starting http server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Str("addr", srv.Addr).Msg("http server shutdown error")
		}
	}
	return runErr
}

// onConfigChange applies a reloaded configuration: the log level, a limiter
// with the new timeout and an API with the new policies.
func onConfigChange(b *backend, api *atomic.Pointer[gin.Engine], logger zerolog.Logger) func(*config.Config) {
	return func(next *config.Config) {
		applyLogLevel(next.Logging)
		b.Reconfigure(next)
		api.Store(newAPI(b.Limiter(), next, logger))
		logger.Info().
			Str("policy", next.Limiter.Policy).
			Dur("timeout", next.Limiter.Timeout).
			Str("level", zerolog.GlobalLevel().String()).
			Msg("limiter rebuilt with reloaded config")
	}
}

// newAPI builds the demo API limited by the configured default policy. A
// config without limiter.policy serves the API unlimited.
func newAPI(l *ratelimiter.Limiter, cfg *config.Config, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if rules, err := cfg.Policy(cfg.Limiter.Policy); err == nil {
		opts := []ratelimiter.MiddlewareOption{
			ratelimiter.WithFailOpen(cfg.Limiter.FailOpen),
			ratelimiter.WithMiddlewareLogger(zerologadapter.New(&logger)),
		}
		if header := cfg.Limiter.KeyHeader; header != "" {
			opts = append(opts, ratelimiter.WithKeyFunc(headerKey(header)))
		}
		router.Use(ginmw.RateLimiter(l, rules, opts...))
	}

	router.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return router
}

// headerKey identifies clients by a request header, falling back to the
// remote address when it is absent.
func headerKey(name string) ratelimiter.KeyFunc {
	return func(r *http.Request) (string, error) {
		if v := r.Header.Get(name); v != "" {
			return v, nil
		}
		return r.RemoteAddr, nil
	}
}
