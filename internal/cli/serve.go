package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
	"github.com/SmitUplenchwar2687/Tollgate/internal/config"
)

type serveOptions struct {
	configPath      string
	addr            string
	clientIPHeader  string
	environment     string
	version         string
	shutdownTimeout time.Duration
	issuer          string
	audience        string
	jwksURL         string
	recordFile      string
	redisStats      bool
	liveStream      bool
	limiter         limiterOptions
	storage         storageOptions
}

func newServeCmd() *cobra.Command {
	var o serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Tollgate HTTP server",
		Long: `Starts the HTTP server.

Endpoints:
  GET /        Rate-limited caller information
  GET /health  Health check
  WS  /ws      Live stream of analytics records (with --live-stream)

Flags override values from --config only when set explicitly.`,
		Example: `  tollgate serve
  tollgate serve --config tollgate.json
  tollgate serve --algorithm token_bucket_alarm --capacity 5 --refill-interval 1s
  tollgate serve --storage redis --redis-host localhost:6379 --redis-stats
  tollgate serve --environment production --issuer https://team.cloudflareaccess.com --audience <aud>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolve(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	o.addFlags(cmd)

	return cmd
}

func (o *serveOptions) addFlags(cmd *cobra.Command) {
	def := config.Default().Server
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "path to JSON config file")
	f.StringVar(&o.addr, "addr", def.Addr, "address to listen on")
	f.StringVar(&o.clientIPHeader, "client-ip-header", def.ClientIPHeader, "request header carrying the client address")
	f.StringVar(&o.environment, "environment", def.Environment, "deployment environment; anything but public requires an access token")
	f.StringVar(&o.version, "version", def.Version, "version reported in health checks and analytics")
	f.DurationVar(&o.shutdownTimeout, "shutdown-timeout", def.ShutdownTimeout, "grace period for in-flight requests on shutdown")
	f.StringVar(&o.issuer, "issuer", "", "access token issuer, e.g. https://<team>.cloudflareaccess.com")
	f.StringVar(&o.audience, "audience", "", "access token audience tag")
	f.StringVar(&o.jwksURL, "jwks-url", "", "key set URL (default <issuer>/cdn-cgi/access/certs)")
	f.StringVar(&o.recordFile, "record", "", "append analytics records to this NDJSON file")
	f.BoolVar(&o.redisStats, "redis-stats", false, "aggregate analytics counters in redis")
	f.BoolVar(&o.liveStream, "live-stream", false, "stream analytics records to websocket clients on /ws")
	o.limiter.addFlags(cmd)
	o.storage.addFlags(cmd)
}

// resolve loads the config file and applies explicitly set flags on top.
func (o *serveOptions) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Server.Addr = o.addr
	}
	if f.Changed("client-ip-header") {
		cfg.Server.ClientIPHeader = o.clientIPHeader
	}
	if f.Changed("environment") {
		cfg.Server.Environment = o.environment
	}
	if f.Changed("version") {
		cfg.Server.Version = o.version
	}
	if f.Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout = o.shutdownTimeout
	}
	if f.Changed("issuer") {
		cfg.Identity.Issuer = o.issuer
	}
	if f.Changed("audience") {
		cfg.Identity.Audience = o.audience
	}
	if f.Changed("jwks-url") {
		cfg.Identity.JWKSURL = o.jwksURL
	}
	if f.Changed("record") {
		cfg.Analytics.RecordFile = o.recordFile
	}
	if f.Changed("redis-stats") {
		cfg.Analytics.RedisStats = o.redisStats
	}
	if f.Changed("live-stream") {
		cfg.Analytics.LiveStream = o.liveStream
	}
	o.limiter.apply(cmd, &cfg.Limiter)
	if err := o.storage.apply(cmd, &cfg.Storage); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, cfg config.Config) error {
	a, err := newApp(ctx, cfg, clock.NewRealClock())
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		a.release()
		return err
	case <-ctx.Done():
		log.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
