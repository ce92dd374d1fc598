package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-mcp-broker/broker"
	"github.com/jrsteele09/go-mcp-broker/claims"
	"github.com/jrsteele09/go-mcp-broker/clients"
	"github.com/jrsteele09/go-mcp-broker/internal/config"
	"github.com/jrsteele09/go-mcp-broker/server"
	"github.com/jrsteele09/go-mcp-broker/session"
	"github.com/jrsteele09/go-mcp-broker/token"
	"github.com/jrsteele09/go-mcp-broker/token/refresh"
	"github.com/jrsteele09/go-mcp-broker/transaction"
	"github.com/jrsteele09/go-mcp-broker/upstream"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "broker",
		Short: "OAuth2 authorization broker for MCP clients",
	}
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("broker exited")
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the broker HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogging(cfg.GetEnv())
	displayAppname(cfg.GetAppName())

	upstreamClient, err := upstream.NewClient(ctx, upstream.Config{
		IssuerURL:    cfg.GetUpstreamIssuerURL(),
		ClientID:     cfg.GetUpstreamClientID(),
		ClientSecret: cfg.GetUpstreamClientSecret(),
		RedirectURL:  cfg.GetCallbackURL(),
		Scopes:       cfg.GetUpstreamScopes(),
	})
	if err != nil {
		return err
	}
	log.Info().Str("issuer", cfg.GetUpstreamIssuerURL()).Msg("upstream provider discovered")

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	issuer := token.NewIssuer(
		token.NewHMACSigner(cfg.GetSigningSecret()),
		refresh.NewManager(refresh.NewInMemoryRepo(), cfg.GetRefreshTokenExpiry()),
		token.WithIssuerURL(cfg.GetBaseURL()),
		token.WithAccessTokenExpiry(cfg.GetAccessTokenExpiry()),
	)

	brokerService := broker.NewService(
		registry,
		buildTransactionStore(cfg),
		upstreamClient,
		claims.NewValidator(upstreamClient.KeySet()),
		session.NewInMemoryStore(),
		issuer,
		broker.WithTransactionTTL(cfg.GetTransactionTTL()),
	)

	srv, err := server.New(cfg, brokerService, registry)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.GetPort(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("broker listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("listen and serve")
		}
	}()

	waitForStopSignal(ctx)
	return shutdown(httpServer)
}

func buildRegistry(cfg config.Config) (clients.Repo, error) {
	registry := clients.NewInMemoryRepo()

	seedFile := cfg.GetClientSeedFile()
	if seedFile == "" {
		log.Warn().Msg("no client seed file configured, registry is empty")
		return registry, nil
	}

	seeded, err := config.LoadClientSeed(seedFile)
	if err != nil {
		return nil, err
	}
	for _, client := range seeded {
		if err := registry.Upsert(client); err != nil {
			return nil, err
		}
	}
	log.Info().Int("clients", len(seeded)).Str("file", seedFile).Msg("client registry seeded")
	return registry, nil
}

func buildTransactionStore(cfg config.Config) transaction.Store {
	addr := cfg.GetRedisAddr()
	if addr == "" {
		log.Info().Msg("using in-memory transaction store")
		return transaction.NewInMemoryStore()
	}

	log.Info().Str("addr", addr).Msg("using redis transaction store")
	return transaction.NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}))
}

func setupLogging(env string) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if env == "DEV" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func waitForStopSignal(ctx context.Context) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("broker stopped")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
