package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sortly/internal/config"
	"sortly/internal/httpx"
	"sortly/internal/integrations/llm"
	slackbot "sortly/internal/integrations/slack"
	"sortly/internal/schedule"
	"sortly/internal/storage/sqlite"
	"sortly/internal/web"
)

const shutdownTimeout = 15 * time.Second

func Main() {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Provider=%s Model=%s LLMTimeout=%s ExternalHTTPTimeout=%s CredentialHeader=%s MaxUploadBytes=%d Slack=%t Timezone=%s",
		cfg.LLMProvider,
		cfg.LLMModel,
		cfg.LLMTimeout(),
		appliedHTTPTimeout,
		cfg.CredentialHeader,
		cfg.MaxUploadBytes,
		cfg.SlackConfigured(),
		cfg.Timezone,
	)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("Failed to create upload dir %s: %v", cfg.UploadDir, err)
	}
	log.Printf("Upload dir: %s", cfg.UploadDir)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	defer db.Close()

	store := sqlite.NewStore(db)
	classifier := llm.NewClassifier(cfg)
	notifier := slackbot.NewNotifier(cfg.SlackBotToken, cfg.SlackChannelID)
	if notifier.Enabled() {
		log.Printf("Slack notifications enabled channel=%s", cfg.SlackChannelID)
	}

	srv, err := web.NewServer(cfg, classifier, store, webNotifier(notifier))
	if err != nil {
		log.Fatalf("Failed to build HTTP server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedule.StartUploadSweeper(ctx, cfg)
	schedule.StartDigestScheduler(ctx, cfg, store, notifier)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
	}()

	log.Printf("Starting Sortly on %s", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server error: %v", err)
	}
	log.Println("Sortly stopped")
}

// webNotifier hands the server an untyped nil when Slack is off, so the
// handler's nil check skips notification entirely.
func webNotifier(n *slackbot.Notifier) web.Notifier {
	if !n.Enabled() {
		return nil
	}
	return n
}
