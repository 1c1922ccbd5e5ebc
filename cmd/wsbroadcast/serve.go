package main

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/livecaption/wsbroadcast/internal/config"
	"github.com/livecaption/wsbroadcast/internal/errors"
	"github.com/livecaption/wsbroadcast/internal/source"
	"github.com/livecaption/wsbroadcast/pkg/middleware"
	"github.com/livecaption/wsbroadcast/pkg/pool"
)

type serveOptions struct {
	configPath string
	ports      []int
	host       string
	admin      string
	exitOnEOF  bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broadcast servers",
		Long: `Start one broadcast server per configured port.

Every line read from standard input, and every message published on
the configured Redis channels, is broadcast to every client of every
port. The admin address serves /healthz and /metrics.

Examples:
  wsbroadcast serve
  wsbroadcast serve --port 9001 --port 9002
  tail -f captions.txt | wsbroadcast serve --config wsbroadcast.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Ports = opts.ports
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = opts.host
			}
			if cmd.Flags().Changed("admin") {
				cfg.Admin.Address = opts.admin
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.InOrStdin(), opts.exitOnEOF, newLogger(cfg, os.Stderr))
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./"+config.ConfigFileName+" if present)")
	cmd.Flags().IntSliceVarP(&opts.ports, "port", "p", nil, "Broadcast port (repeatable, overrides config)")
	cmd.Flags().StringVarP(&opts.host, "host", "H", "", "Interface to bind (overrides config)")
	cmd.Flags().StringVar(&opts.admin, "admin", "", "Admin listen address, empty to disable (overrides config)")
	cmd.Flags().BoolVar(&opts.exitOnEOF, "exit-on-eof", false, "Shut down when standard input is closed")

	return cmd
}

// loadConfig reads the config file, applies environment overrides and
// returns the result unvalidated.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runServe runs the pool until ctx is done or, with exitOnEOF, until in is
// exhausted.
func runServe(ctx context.Context, cfg *config.Config, in io.Reader, exitOnEOF bool, logger *slog.Logger) error {
	slog.SetDefault(logger)

	poolOpts := []pool.Option{
		pool.WithLogger(logger),
		pool.WithServerConfig(cfg.BroadcastConfig(0)),
	}

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := middleware.Prometheus(
			middleware.WithRegistry(reg),
			middleware.WithNamespace(cfg.Metrics.Namespace),
		)
		poolOpts = append(poolOpts, pool.WithObserver(m), pool.WithInterceptor(m.Interceptor()))
		gatherer = reg
	}
	if cfg.Tracing.Enabled {
		poolOpts = append(poolOpts, pool.WithInterceptor(
			middleware.OpenTelemetry(middleware.WithTracerName(cfg.Tracing.TracerName)),
		))
	}

	p := pool.New(poolOpts...)
	defer p.Close()

	handles := make([]*pool.Handle, 0, len(cfg.Ports))
	defer func() {
		for _, h := range handles {
			h.Release()
		}
	}()
	for _, port := range cfg.Ports {
		h, err := p.EnsureServer(ctx, port)
		if err != nil {
			return classify(err)
		}
		handles = append(handles, h)
		success("Broadcasting on %s", h.Addr())
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Admin.Address != "" {
		ln, err := net.Listen("tcp", cfg.Admin.Address)
		if err != nil {
			return errors.New("E205").Wrap(err)
		}
		admin := &http.Server{
			Handler:           adminRouter(p, cfg.Ports, gatherer, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("admin endpoint listening", "addr", ln.Addr().String())

		g.Go(func() error {
			if err := admin.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return errors.New("E205").Wrap(err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
	}

	targets := make([]pool.Broadcaster, len(handles))
	for i, h := range handles {
		targets[i] = h
	}

	if cfg.Redis.Enabled() {
		rs, err := source.NewRedis(source.RedisConfig{
			URL:            cfg.Redis.URL,
			Channels:       cfg.Redis.Channels,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
		}, logger)
		if err != nil {
			return errors.New("E107").Wrap(err)
		}
		defer rs.Close()
		g.Go(func() error {
			if err := rs.Run(ctx, targets); err != nil {
				return errors.New("E206").Wrap(err)
			}
			return nil
		})
	}

	// The reader cannot be interrupted, so it is not part of the group.
	lines := source.NewLines(in)
	eof := make(chan error, 1)
	go func() { eof <- lines.Run(ctx, targets) }()

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-eof:
			if err != nil {
				return errors.New("E303").Wrap(err)
			}
			if exitOnEOF {
				logger.Info("standard input closed, shutting down")
				return errShutdown
			}
			<-ctx.Done()
			return nil
		}
	})

	err := g.Wait()
	logger.Info("shutting down", "servers", p.Len())
	if stderrors.Is(err, errShutdown) {
		return nil
	}
	return err
}

var errShutdown = stderrors.New("shutdown requested")
