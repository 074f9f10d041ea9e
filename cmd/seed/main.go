// seed inserts development sample data for local testing. Run via ./scripts/seed.sh.
// Idempotent: skips inserts if the admin user already exists.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"stocktrack/backend/internal/config"
	"stocktrack/backend/internal/db"
	"stocktrack/backend/internal/security"
	userdomain "stocktrack/backend/internal/user/domain"
	userrepo "stocktrack/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	email := envOr("SEED_ADMIN_EMAIL", "admin@stocktrack.local")
	password := envOr("SEED_ADMIN_PASSWORD", "stocktrack1")

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := userrepo.NewPostgresRepository(database)
	existing, err := users.GetByEmail(ctx, userdomain.NormalizeEmail(email))
	if err != nil {
		log.Fatalf("seed: lookup: %v", err)
	}
	if existing != nil {
		log.Printf("seed: admin user %s already exists, nothing to do", email)
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(password))
	if err != nil {
		log.Fatalf("seed: hash: %v", err)
	}
	admin := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        userdomain.NormalizeEmail(email),
		PasswordHash: hash,
		Role:         userdomain.RoleAdmin,
	}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatalf("seed: create: %v", err)
	}
	log.Printf("seed: created admin user %s", admin.Email)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
