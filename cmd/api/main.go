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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/address"
	"github.com/safar/storefront-checkout/internal/cart"
	"github.com/safar/storefront-checkout/internal/checkout"
	"github.com/safar/storefront-checkout/internal/config"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/httpapi"
	"github.com/safar/storefront-checkout/internal/inventory"
	"github.com/safar/storefront-checkout/internal/order"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "checkout API for the storefront",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:      "migrate",
				Usage:     "apply or roll back schema migrations",
				ArgsUsage: "up|down",
				Action:    runMigrations,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("storefront failed")
	}
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "storefront-checkout").Logger()
}

func runMigrations(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log)

	direction := database.MigrateDirection(c.Args().First())
	if direction != database.MigrateUp && direction != database.MigrateDown {
		return cli.Exit("direction must be 'up' or 'down'", 2)
	}

	if err := database.Migrate(cfg.Database.URL, direction); err != nil {
		return err
	}
	log.Info().Str("direction", string(direction)).Msg("migrations applied")
	return nil
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log)

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL, database.MigrateUp); err != nil {
			return err
		}
	}

	db, err := database.NewConnection(c.Context, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log.Info().Msg("connected to database")

	addresses := address.NewService(db, cfg.Address.OwnershipError)
	resolver := inventory.NewResolver(db)
	guests := cart.NewGuestStore()
	carts := cart.NewService(db, resolver, guests)
	creator := checkout.NewCreator(db, checkout.PolicyFromConfig(cfg.Checkout))
	orchestrator := checkout.NewOrchestrator(addresses, carts, creator, checkout.LogNotifier{}, cfg.Checkout.NotifyTimeout)

	router := httpapi.NewRouter(httpapi.Services{
		Addresses: addresses,
		Stock:     resolver,
		Carts:     carts,
		Checkout:  orchestrator,
		Orders:    order.NewService(db),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go guests.Run(ctx, cfg.Cart.GuestIdle)
	go orchestrator.Run(ctx, cfg.Checkout.FlowIdle)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		orchestrator.Wait()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	if err := shutdown(srv, orchestrator, cfg.Server.ShutdownTimeout); err != nil {
		return err
	}

	log.Info().Msg("server stopped")
	return nil
}

type drainer interface {
	Wait()
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops accepting requests and then waits for queued confirmation
// notices, also when the server did not stop in time.
func shutdown(srv shutdowner, notices drainer, timeout time.Duration) error {
	defer notices.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
