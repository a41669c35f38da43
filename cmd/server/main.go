// Historical Monuments Bot - conversational server with email verification.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/monuments-bot/internal/agent"
	"github.com/ashureev/monuments-bot/internal/api"
	"github.com/ashureev/monuments-bot/internal/chat"
	"github.com/ashureev/monuments-bot/internal/config"
	"github.com/ashureev/monuments-bot/internal/mail"
	"github.com/ashureev/monuments-bot/internal/middleware"
	"github.com/ashureev/monuments-bot/internal/session"
	"github.com/ashureev/monuments-bot/internal/store"
	"github.com/ashureev/monuments-bot/internal/verify"
	"github.com/ashureev/monuments-bot/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Transcript repository. Session verification state stays in-memory; the
	// database only holds conversation transcripts and verification events.
	var repo store.Repository = store.Noop{}
	if cfg.TranscriptsOn {
		repo, err = store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		if err := repo.Ping(ctx); err != nil {
			slog.Error("Database health check failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Database connected", "path", cfg.DBPath)
	} else {
		slog.Info("Transcript logging disabled")
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	// OTP delivery. Without SMTP settings verification cannot complete, but
	// the server still runs: the verifier reports addresses as undeliverable.
	var sender mail.Sender = mail.DisabledSender{}
	if cfg.Email.Enabled() {
		smtpSender, err := mail.NewSMTPSender(mail.Config{
			Host:        cfg.Email.Host,
			Port:        cfg.Email.Port,
			User:        cfg.Email.User,
			AppPassword: cfg.Email.AppPassword,
		})
		if err != nil {
			slog.Error("Failed to initialize SMTP sender", "error", err)
			os.Exit(1)
		}
		sender = smtpSender
		slog.Info("OTP mail delivery enabled", "host", cfg.Email.Host)
	} else {
		slog.Warn("OTP mail delivery disabled (EMAIL_SERVER/EMAIL_USER/EMAIL_APP_PASSWORD not set)")
	}

	// Knowledge agent. Without a Google API key the monuments branch serves
	// a static unavailable reply; the verification flow is unaffected.
	var knowledge agent.KnowledgeAgent = agent.DisabledAgent{}
	if cfg.GoogleAPIKey != "" {
		var search agent.Searcher
		if tavily := agent.NewTavilyClient(&http.Client{Timeout: 15 * time.Second}, cfg.TavilyAPIKey); tavily.Enabled() {
			search = tavily
		} else {
			slog.Warn("Web search disabled (TAVILY_API_KEY not set)")
		}
		gemini, err := agent.NewGeminiAgent(ctx, cfg.GoogleAPIKey, cfg.GeminiModel, search, logger)
		if err != nil {
			slog.Error("Failed to initialize Gemini agent", "error", err)
			os.Exit(1)
		}
		knowledge = gemini
	} else {
		slog.Warn("Knowledge agent disabled (GOOGLE_API_KEY not set)")
	}
	defer func() {
		if closeErr := knowledge.Close(); closeErr != nil {
			slog.Error("Failed to close knowledge agent", "error", closeErr)
		}
	}()

	sessions := session.NewManager()
	orch := chat.NewOrchestrator(sessions, verify.New(sender), knowledge, repo)
	orch.SetHistoryLimit(cfg.HistoryLimit)
	handler := api.NewHandler(orch, sessions, repo)

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	handler.RegisterRoutes(r)
	r.Handle("/static/*", http.FileServer(http.FS(web.StaticFS)))

	// SSE streams need an unbounded write window.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Idle sessions are swept together with their transcripts.
	session.StartTTLWorker(ctx, sessions, cfg.SessionTTL, func(threadID string) {
		if _, err := repo.DeleteThread(context.Background(), threadID); err != nil {
			slog.Warn("Failed to delete transcript for expired session", "thread_id", threadID, "error", err)
		}
	})

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
