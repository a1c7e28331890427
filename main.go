// Command roboct0-api is the entrypoint for the bot backend.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Wires the Twitch and Discord OAuth providers and the install flow.
//   - Starts background jobs: the token sweep and the state purge, plus the
//     optional Twitch chat responder.
//   - Serves the HTTP API with /healthz, /readyz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/chat"
	"github.com/mael-queau/roboct0-api/commands"
	"github.com/mael-queau/roboct0-api/config"
	"github.com/mael-queau/roboct0-api/crypto"
	"github.com/mael-queau/roboct0-api/db"
	"github.com/mael-queau/roboct0-api/discordapi"
	"github.com/mael-queau/roboct0-api/jobs"
	"github.com/mael-queau/roboct0-api/oauth"
	"github.com/mael-queau/roboct0-api/quotes"
	"github.com/mael-queau/roboct0-api/redisstore"
	"github.com/mael-queau/roboct0-api/server"
	"github.com/mael-queau/roboct0-api/telemetry"
	"github.com/mael-queau/roboct0-api/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("roboct0-api", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("service exited with error", slog.Any("err", err))
		stop()
		shutdownTracing()
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	unknown := false
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		unknown = true
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	if unknown {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func run(ctx context.Context, cfg *config.Config) error {
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		return err
	}

	cipher, err := crypto.FromKey(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	if cfg.EncryptionKey == "" {
		slog.Warn("ENCRYPTION_KEY not set - provider tokens are stored in plaintext", slog.String("component", "crypto"))
	}

	accountStore := db.NewAccountStore(database, cipher)
	readiness := []server.ReadinessCheck{{Name: "database", Check: database.PingContext}}

	var stateStore oauth.StateStore = db.NewStateStore(database)
	if cfg.StateStore == config.StateStoreRedis {
		rdb, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer closeRedis(rdb)
		stateStore = redisstore.New(rdb)
		readiness = append(readiness, server.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	slog.Info("state store selected", slog.String("backend", cfg.StateStore), slog.String("component", "oauth"))

	providers := buildProviders(cfg)
	states := oauth.NewStates(stateStore, nil)
	flow := oauth.NewController(states, accountStore, providers...)
	sweeper := oauth.NewSweeper(accountStore, oauth.SweepConfig{
		DevMode:     cfg.DevMode(),
		Timeout:     cfg.ProviderTimeout,
		Concurrency: cfg.SweepConcurrency,
	}, providers...)

	accountSvc := accounts.NewService(accountStore)
	commandSvc := commands.NewService(db.NewCommandStore(database), accountSvc)
	quoteSvc := quotes.NewService(db.NewQuoteStore(database), accountSvc)

	scheduler := jobs.NewScheduler(sweeper, states, jobs.Config{
		SweepInterval: cfg.TokenSweepInterval,
		PurgeInterval: cfg.StatePurgeInterval,
	})
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	if cfg.ChatEnabled {
		if err := cfg.ValidateChatReady(); err != nil {
			return err
		}
		responder := chat.NewResponder(cfg.TwitchBotUsername, cfg.TwitchBotOAuthToken, commandSvc, accountStore)
		go responder.Run(ctx)
	} else {
		slog.Info("chat responder disabled (set CHAT_ENABLED=1 to enable)", slog.String("component", "chat"))
	}

	handlers := server.NewHandlers(server.Deps{
		Flow:      flow,
		Accounts:  accountSvc,
		Commands:  commandSvc,
		Quotes:    quoteSvc,
		Liveness:  database.PingContext,
		Readiness: readiness,
	})
	router := server.NewRouter(ctx, handlers, server.Options{
		APIKey:         cfg.APIKey,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		CORSOrigins:    cfg.CORSOrigins,
	})
	return server.Start(ctx, router, cfg.HTTPAddr)
}

// buildProviders returns the configured OAuth providers. Each shares an HTTP
// client bounded by the provider timeout.
func buildProviders(cfg *config.Config) []oauth.Provider {
	client := &http.Client{Timeout: cfg.ProviderTimeout}
	var providers []oauth.Provider
	if cfg.TwitchEnabled() {
		providers = append(providers, &twitchapi.Client{
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
			RedirectURI:  cfg.RedirectURI(string(accounts.Twitch)),
			Scopes:       cfg.TwitchScopes,
			HTTPClient:   client,
		})
		slog.Info("provider enabled", slog.String("provider", string(accounts.Twitch)))
	}
	if cfg.DiscordEnabled() {
		providers = append(providers, &discordapi.Client{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURI:  cfg.RedirectURI(string(accounts.Discord)),
			Scopes:       cfg.DiscordScopes,
			Permissions:  cfg.DiscordPermissions,
			HTTPClient:   client,
		})
		slog.Info("provider enabled", slog.String("provider", string(accounts.Discord)))
	}
	return providers
}

func closeRedis(rdb *redis.Client) {
	if err := rdb.Close(); err != nil {
		slog.Error("failed to close redis client", slog.Any("err", err))
	}
}
