// Server runs the stocktrack auth HTTP API: registration, login with
// two-factor and offline fallback, session lifecycle, password reset, and
// username recovery.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"stocktrack/backend/internal/audit"
	auditrepo "stocktrack/backend/internal/audit/repository"
	authhandler "stocktrack/backend/internal/auth/handler"
	"stocktrack/backend/internal/auth/service"
	"stocktrack/backend/internal/config"
	"stocktrack/backend/internal/db"
	"stocktrack/backend/internal/health"
	"stocktrack/backend/internal/notify"
	"stocktrack/backend/internal/notify/sms"
	"stocktrack/backend/internal/security"
	sessionrepo "stocktrack/backend/internal/session/repository"
	"stocktrack/backend/internal/telemetry"
	"stocktrack/backend/internal/telemetry/otel"
	"stocktrack/backend/internal/telemetry/producer"
	tokenrepo "stocktrack/backend/internal/token/repository"
	userrepo "stocktrack/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("JWT_PRIVATE_KEY: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("JWT_PUBLIC_KEY: %v", err)
	}
	tokenProvider := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience)

	users := userrepo.NewPostgresRepository(database)
	sessions := sessionrepo.NewPostgresRepository(database)
	tokens := tokenrepo.NewPostgresRepository(database)
	auditLogs := auditrepo.NewPostgresRepository(database)

	var smsSender notify.SMSSender
	if cfg.SMSLocalAPIKey != "" {
		smsSender = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	}
	notifier := notify.NewService(smsSender)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "stocktrack-auth", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	var emitters telemetry.MultiEmitter
	emitters = append(emitters, otel.NewEventEmitter(providers.LoggerProvider))
	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
	}

	svc := service.NewAuthService(
		users, sessions, tokens,
		security.NewHasher(cfg.BcryptCost),
		tokenProvider,
		notifier,
		audit.NewLogger(auditLogs, authhandler.ClientIP),
		emitters,
		service.Config{
			SessionTTL:         cfg.SessionDuration(),
			OTPTTL:             cfg.OTPDuration(),
			OfflinePinTTL:      cfg.OfflinePinDuration(),
			ResetTokenTTL:      cfg.ResetTokenDuration(),
			AllowedEmailDomain: cfg.AllowedEmailDomain,
		},
	)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	h := authhandler.New(svc, sessions, tokenProvider, logger)

	r := chi.NewRouter()
	r.Use(otel.HTTPMetrics(providers.MeterProvider))
	r.Mount("/api/auth", h.Routes())
	r.Method(http.MethodGet, "/healthz", health.NewHandler(database))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("auth server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down auth server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	// In-flight async emits get a grace period before the producer closes.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := kafkaProducer.Close(); err != nil {
		log.Printf("kafka close: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("auth server stopped")
}
