package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/api"
	"github.com/sells-group/onboard-cli/internal/monitoring"
	"github.com/sells-group/onboard-cli/internal/notify"
	"github.com/sells-group/onboard-cli/internal/session"
	"github.com/sells-group/onboard-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the onboarding progress server",
	Long:  "Serves the onboarding view over HTTP. Each mounted workspace gets its own poll loop that reconciles status rows and starts stages as their upstream finishes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve", true)
		if err != nil {
			return err
		}
		defer env.Close()

		hub := notify.NewHub()
		publisher, closeNotify, err := startNotify(ctx, env, hub)
		if err != nil {
			return err
		}
		defer closeNotify()

		opts := sessionOptions()
		manager := session.NewManager(func(ws string) *session.Session {
			return env.NewSession(ws, opts)
		}, hub)
		defer manager.Close()

		checker := monitoring.NewChecker(monitoring.NewCollector(manager), env.Alerter, cfg.Monitoring)
		go checker.Run(ctx)

		server := &api.Server{
			Sessions:       manager,
			Registry:       env.Registry,
			Writer:         env.Store,
			Store:          env.Store,
			Hub:            hub,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}
		if publisher != nil {
			server.Publisher = publisher
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("transport", env.Transport.Name()),
			zap.String("notify", cfg.Notify.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// startNotify runs the configured push wake-up source in the background.
// The redis source doubles as the publisher callbacks fan out through.
func startNotify(ctx context.Context, env *appEnv, hub *notify.Hub) (*notify.RedisSource, func(), error) {
	var (
		src       notify.Source
		publisher *notify.RedisSource
		closeFn   = func() {}
	)

	switch cfg.Notify.Driver {
	case "", "none":
		return nil, closeFn, nil
	case "redis":
		rs := notify.NewRedisSource(cfg.Notify)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rs.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = rs.Close()
			return nil, closeFn, err
		}
		src, publisher = rs, rs
		closeFn = func() { _ = rs.Close() }
	case "postgres":
		pg, ok := env.Store.(*store.PostgresStore)
		if !ok || pg.RawPool() == nil {
			return nil, closeFn, eris.New("notify: postgres listener needs a postgres store")
		}
		src = notify.NewPGListener(pg.RawPool(), cfg.Notify.PGChannel)
	default:
		return nil, closeFn, eris.Errorf("notify: unknown driver %q", cfg.Notify.Driver)
	}

	go func() {
		if err := src.Run(ctx, hub); err != nil && ctx.Err() == nil {
			zap.L().Error("notify: source stopped", zap.String("source", src.Name()), zap.Error(err))
		}
	}()
	zap.L().Info("notify: source started", zap.String("source", src.Name()))
	return publisher, closeFn, nil
}
