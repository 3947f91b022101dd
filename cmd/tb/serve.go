package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/engine"
	"taskboard/internal/engine/auth"
	"taskboard/internal/ratelimit"
	"taskboard/internal/realtime"
	"taskboard/internal/schedule"
	"taskboard/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, closeFn, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			logger := log.New(os.Stderr, "taskboard ", log.LstdFlags)
			e.Logger = logger

			relay := newRelay(e.Config)
			relay.Logger = logger
			e.Notifier = relay

			passphrase := viper.GetString("passphrase")
			if passphrase == "" {
				passphrase = e.Config.Gate.Passphrase
			}
			gate, err := auth.NewGate(passphrase, viper.GetString("jwt-secret"), time.Duration(e.Config.Gate.SessionHours)*time.Hour)
			if err != nil {
				return err
			}
			gate.Board = e.Config.Board.Name
			if !gate.Enabled() {
				logger.Printf("gate: no passphrase configured, board is open")
			}

			hub := realtime.NewHub(64)
			feed := &realtime.Feed{Source: e.Repo, Hub: hub, Interval: time.Second, Batch: 100, Logger: logger}
			go feed.Run(ctx)

			started, err := server.StartWebhooks(ctx, e.Repo, e.Config, logger)
			if err != nil {
				return err
			}
			if started {
				logger.Printf("webhook: delivering to %d endpoints", len(e.Config.Webhooks))
			}

			stopSchedule, err := startSchedule(ctx, e, logger)
			if err != nil {
				return err
			}
			defer stopSchedule()

			limiter, closeLimiter, err := newLimiter(e)
			if err != nil {
				return err
			}
			defer closeLimiter()

			handler, err := server.New(server.Config{
				Engine:   e,
				Gate:     gate,
				Relay:    relay,
				Hub:      hub,
				Limiter:  limiter,
				BasePath: basePath,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving %s on http://%s%s (OpenAPI at %s/openapi.json, docs at /docs)\n", e.Config.Board.Name, addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// startSchedule fills the lookahead window once, then keeps it filled daily.
func startSchedule(ctx context.Context, e engine.Engine, logger *log.Logger) (func(), error) {
	sweeper := schedule.Sweeper{Engine: e, Logger: logger}
	if n, err := sweeper.MaterializeAhead(ctx); err != nil {
		logger.Printf("materialize: initial sweep failed: %v", err)
	} else if n > 0 {
		logger.Printf("materialize: %d instances created", n)
	}
	s := schedule.New(e.Config.Location())
	if err := sweeper.Register(ctx, s); err != nil {
		return nil, err
	}
	s.Start()
	return s.Stop, nil
}

func newLimiter(e engine.Engine) (ratelimit.Limiter, func(), error) {
	limit := e.Config.RateLimit.Requests
	window := time.Duration(e.Config.RateLimit.WindowSeconds) * time.Second
	addr := viper.GetString("redis-addr")
	if addr == "" {
		return ratelimit.NewMemory(limit, window), func() {}, nil
	}
	client, err := ratelimit.NewRedisClient(addr)
	if err != nil {
		return nil, nil, err
	}
	return ratelimit.NewRedis(client, "taskboard:rl", limit, window), client.Close, nil
}
