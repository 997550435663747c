/*
Command redeemd runs the redemption core: a serve subcommand exposing
the HTTP entry points, and a sweep subcommand for the periodic
EXPIRED-transition sweeper, meant to be run from cron or a long-lived
sidecar loop.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/redemption-core/analytics"
	"github.com/warp/redemption-core/api"
	"github.com/warp/redemption-core/auth"
	"github.com/warp/redemption-core/clock"
	"github.com/warp/redemption-core/config"
	"github.com/warp/redemption-core/kv"
	"github.com/warp/redemption-core/ratelimit"
	"github.com/warp/redemption-core/redemption"
	sqlstore "github.com/warp/redemption-core/store/sql"
	"github.com/warp/redemption-core/tokenbroker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "redeemd",
		Short: "Redemption core: entitlement lifecycle, proof tokens, and savings calculation",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newSweepCmd())
	return root
}

func buildLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func buildDependencies(ctx context.Context, log zerolog.Logger) (*redemption.Service, *config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	sqlStore, err := sqlstore.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	kvStore := kv.NewBreaker("redis", kv.NewRedis(redisClient))

	broker := tokenbroker.New(kvStore, cfg.QRTokenTTL, cfg.QRTokenEntropyBytes)
	emitter := analytics.New(sqlStore, log)
	svc := redemption.New(sqlStore, kvStore, broker, emitter, clock.Real{}, loc, cfg.VoidWindow, log)
	return svc, &cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP entry points",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := buildLogger()
			ctx := cmd.Context()

			svc, cfg, err := buildDependencies(ctx, log)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
			kvStore := kv.NewBreaker("redis-ratelimit", kv.NewRedis(redisClient))
			limiter := ratelimit.New(kvStore, log, cfg.VelocityLimit, cfg.VelocityWindow, cfg.DailyLimit)
			shaper := ratelimit.NewShaper(50, 100)

			// Identity verification is an external collaborator (spec
			// §1); redeemd ships only auth.Fake, a literal
			// "<role>:<user_id>" bearer parser for tests and local
			// dev. It must never run unattended in production, so
			// serve fails closed unless an operator explicitly opts
			// in via REDEMPTION_ALLOW_FAKE_AUTH.
			// TODO: wire a real Verifier (OIDC/JWT) once the identity
			// provider is chosen, and drop this guard.
			if !cfg.AllowFakeAuth {
				return fmt.Errorf("redeemd: no real auth.Verifier is wired; set REDEMPTION_ALLOW_FAKE_AUTH=true to run with auth.Fake for local/dev use")
			}
			server := api.New(svc, auth.Fake{}, shaper, limiter, loc, log)

			httpServer := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           server,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.ListenAddr).Msg("redeemd: listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-stop:
				log.Info().Msg("redeemd: shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			}
		},
	}
}

func newSweepCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one pass of the expired-entitlement sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := buildLogger()
			ctx := cmd.Context()

			svc, _, err := buildDependencies(ctx, log)
			if err != nil {
				return err
			}

			res, err := svc.Sweep(ctx, batchSize)
			if err != nil {
				return err
			}
			log.Info().Int("expired", res.Expired).Msg("redeemd: sweep complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "maximum entitlements to expire in one pass")
	return cmd
}
