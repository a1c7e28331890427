// Package server exposes the HTTP API: the OAuth install endpoints, health,
// metrics, and the administrative /api/v1 routes for channels, guilds,
// commands and quotes. Every response uses the {success, data, message}
// envelope, and every request carries a correlation id for logging.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Options configures the router's middleware.
type Options struct {
	// APIKey protects /api/v1. Empty leaves it open, which is only
	// acceptable in development.
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	// CORSOrigins lists allowed origins; empty allows any.
	CORSOrigins []string
}

// NewRouter returns the HTTP handler with all routes.
// The provided context bounds the rate limiter cleanup goroutine.
func NewRouter(ctx context.Context, h *Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(opts.CORSOrigins)))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.HandleHealthz)
	r.Get("/readyz", h.HandleReadyz)

	if opts.APIKey == "" {
		slog.Warn("API_KEY not configured - /api/v1 endpoints are UNPROTECTED", slog.String("component", "http"))
	}
	limiter := newIPRateLimiter(ctx, rate.Limit(opts.RateLimitRPS), opts.RateLimitBurst)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimitMiddleware(limiter))
		r.Use(apiKeyAuth(opts.APIKey))

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", h.HandleSearchAccounts(twitchProvider))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.HandleGetAccount(twitchProvider))
				r.Delete("/", h.HandleDeleteAccount(twitchProvider))
				r.Patch("/toggle", h.HandleToggleAccount(twitchProvider))
				r.Get("/verify", h.HandleVerifyAccount(twitchProvider))

				r.Route("/commands", func(r chi.Router) {
					r.Get("/", h.HandleListCommands)
					r.Post("/", h.HandleCreateCommand)
					r.Route("/{keyword}", func(r chi.Router) {
						r.Get("/", h.HandleGetCommand)
						r.Put("/", h.HandleUpdateCommand)
						r.Delete("/", h.HandleDeleteCommand)
						r.Patch("/toggle", h.HandleToggleCommand)
						r.Put("/variables/{name}", h.HandleSetVariable)
						r.Post("/variables/{name}/increment", h.HandleIncrementVariable)
					})
				})

				r.Route("/quotes", func(r chi.Router) {
					r.Get("/", h.HandleSearchQuotes)
					r.Post("/", h.HandleCreateQuote)
					r.Get("/random", h.HandleRandomQuote)
					r.Route("/{quoteID}", func(r chi.Router) {
						r.Get("/", h.HandleGetQuote)
						r.Patch("/", h.HandleUpdateQuote)
						r.Delete("/", h.HandleDeleteQuote)
						r.Patch("/toggle", h.HandleToggleQuote)
					})
				})
			})
		})

		r.Route("/guilds", func(r chi.Router) {
			r.Get("/", h.HandleSearchAccounts(discordProvider))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.HandleGetAccount(discordProvider))
				r.Delete("/", h.HandleDeleteAccount(discordProvider))
				r.Patch("/toggle", h.HandleToggleAccount(discordProvider))
				r.Get("/verify", h.HandleVerifyAccount(discordProvider))
			})
		})
	})

	// OAuth install flow: static routes above take precedence.
	r.Get("/{provider}", h.HandleBeginFlow)
	r.Get("/{provider}/callback", h.HandleCallback)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, false, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, false, "Method not allowed.")
	})
	return r
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Correlation-ID"},
		ExposedHeaders: []string{"X-Correlation-ID"},
		MaxAge:         300,
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, handler http.Handler, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Shutdown goroutine
	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
