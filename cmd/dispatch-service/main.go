package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MChihaya/smashBrosCallingSystem/internal/config"
	"github.com/MChihaya/smashBrosCallingSystem/internal/dispatch"
	"github.com/MChihaya/smashBrosCallingSystem/internal/httpapi"
	"github.com/MChihaya/smashBrosCallingSystem/internal/notify"
	"github.com/MChihaya/smashBrosCallingSystem/internal/store/postgres"
	"github.com/MChihaya/smashBrosCallingSystem/internal/telemetry"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := telemetry.Setup(ctx, "dispatch-service")

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool, cfg.VenueID)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	notifier := notify.New(notify.Config{
		Provider:     cfg.NotifyProvider,
		WebhookURL:   cfg.NotifyWebhookURL,
		WebhookToken: cfg.NotifyWebhookToken,
		VoiceVolume:  cfg.VoiceVolume,
		BeepVolume:   cfg.BeepVolume,
	})

	dispatcher := dispatch.New(st, notifier, dispatch.Options{AutoCall: cfg.AutoCall})
	if err := dispatcher.Load(ctx); err != nil {
		log.Fatalf("state load: %v", err)
	}

	passcodeHash := []byte(cfg.PasscodeHash)
	if len(passcodeHash) == 0 {
		if cfg.Passcode == "" {
			log.Fatal("PASSCODE or PASSCODE_HASH is required")
		}
		passcodeHash, err = httpapi.HashPasscode(cfg.Passcode)
		if err != nil {
			log.Fatalf("passcode hash: %v", err)
		}
	}
	sessions := httpapi.NewSessions(passcodeHash, cfg.SessionTTL)

	handler := httpapi.NewHandler(dispatcher, sessions)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes())), "dispatch-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("dispatch-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go dispatcher.RunRefreshLoop(ctx, cfg.RefreshInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	dispatcher.Flush()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
}
