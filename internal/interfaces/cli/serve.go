package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/turtacn/BOMMesh/internal/config"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/BOMMesh/internal/interfaces/http"
	"github.com/turtacn/BOMMesh/internal/interfaces/http/handlers"
	"github.com/turtacn/BOMMesh/internal/interfaces/http/middleware"
)

// NewServeCmd starts the HTTP API and blocks until SIGINT or SIGTERM.
func NewServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg := cliCtx.Config
			if port > 0 {
				cfg.Server.Port = port
			}
			log := cliCtx.Logger

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := BuildRuntime(ctx, cfg, serveModelRoot(cfg.Matching.ModelRoot), log)
			if err != nil {
				return err
			}
			defer rt.Close()

			srv, limiter := newAPIServer(cfg, rt, log)
			if cliCtx.ConfigPath != "" && limiter != nil {
				watchRateLimit(cliCtx.ConfigPath, limiter, log)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			log.Info("BOMMesh API started",
				logging.String("addr", srv.Addr()),
				logging.String("version", Version),
				logging.Int("health_checks", len(rt.Checkers)))

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			return srv.Shutdown(context.Background())
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

// newAPIServer assembles the router over rt. The returned limiter is nil
// when rate limiting is off.
func newAPIServer(cfg *config.Config, rt *Runtime, log logging.Logger) (*httpapi.Server, *middleware.ClientLimiter) {
	gin.SetMode(cfg.Server.Mode)

	rc := httpapi.RouterConfig{
		MatchingHandler: handlers.NewMatchingHandler(rt.Service, log),
		HealthHandler:   handlers.NewHealthHandler(Version, rt.Checkers...),
		Logger:          log,
		MaxBodySize:     cfg.Server.MaxBodySize,
		MetricsPath:     cfg.Metrics.Path,
	}
	if rt.Metrics != nil {
		rc.Observer = rt.Metrics
		rc.MetricsHandler = rt.Collector.Handler()
	}
	if cfg.Server.RateLimitRPS > 0 {
		rc.RateLimiter = middleware.NewClientLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimitRPS,
			Burst:             cfg.Server.RateLimitBurst,
		})
	}

	return httpapi.NewServer(cfg.Server, httpapi.NewRouter(rc), log), rc.RateLimiter
}

// watchRateLimit applies server.rate_limit_* changes from the config file
// without a restart. Other settings need one.
func watchRateLimit(path string, limiter *middleware.ClientLimiter, log logging.Logger) {
	config.Watch(path, func(cfg *config.Config) {
		if cfg.Server.RateLimitRPS <= 0 {
			log.Warn("Ignoring rate limit removal until restart")
			return
		}
		limiter.SetRate(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		log.Info("Rate limit reloaded",
			logging.Float64("rps", cfg.Server.RateLimitRPS),
			logging.Int("burst", cfg.Server.RateLimitBurst))
	}, func(err error) {
		log.Warn("Config reload rejected", logging.Err(err))
	})
}

// serveModelRoot confines request model files to the working directory
// when matching.model_root is unset.
func serveModelRoot(root string) string {
	if root == "" {
		return "."
	}
	return root
}
