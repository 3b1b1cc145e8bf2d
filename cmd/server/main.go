package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"country-store/internal/api"
	"country-store/internal/cache"
	"country-store/internal/client"
	"country-store/internal/config"
	"country-store/internal/domain"
	mylog "country-store/internal/log"
	"country-store/internal/service"
	"country-store/internal/store"
)

func main() {
	// Create a context that is canceled on a SIGINT or SIGTERM signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		log.WithError(err).Error("server failed")
		os.Exit(1)
	}
}

// run parses args, wires the application and serves until ctx is done.
func run(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "country-server",
		Usage: "serve the REST Countries listing over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the config file",
				Sources: cli.NewValueSourceChain(
					cli.EnvVar(config.EnvPath),
				),
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "address to listen on (overrides server.addr)",
				Sources: cli.NewValueSourceChain(
					cli.EnvVar("COUNTRIES_ADDR"),
				),
			},
			&cli.BoolFlag{
				Name:  "warmup",
				Usage: "populate the store in the background at startup (overrides warmup.enabled)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			if cmd.IsSet("addr") {
				cfg.Server.Addr = cmd.String("addr")
			}
			if cmd.IsSet("warmup") {
				cfg.Warmup.Enabled = cmd.Bool("warmup")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			mylog.InitLogger(cfg.Log.Level)
			return serve(ctx, cfg)
		},
	}

	return cmd.Run(ctx, append([]string{cmd.Name}, args...))
}

func serve(ctx context.Context, cfg config.Config) error {
	// --- Dependency Injection ---
	restCountriesClient := client.NewRestCountriesClient(cfg.Upstream.Timeout)
	countryStore := store.NewCountryStore(restCountriesClient)
	countryService := service.NewCountryService(countryStore, cache.NewInMemoryCache[domain.Country]())
	defer countryService.Close()
	countryHandler := api.NewCountryHandler(countryService, countryStore)
	router := api.NewRouter(countryHandler)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Bind before serving so a busy port fails run() synchronously.
	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}

	warmupCtx, cancelWarmup := context.WithCancel(ctx)
	defer cancelWarmup()
	if cfg.Warmup.Enabled {
		go func() {
			_ = service.Warmup(warmupCtx, countryStore, cfg.Warmup.MaxElapsed)
		}()
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.WithField("addr", listener.Addr().String()).Info("server starting")
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	cancelWarmup()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("server gracefully stopped")
	return nil
}
