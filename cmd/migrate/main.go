// migrate applies the embedded schema migrations; run as go run ./cmd/migrate.
package main

import (
	"flag"
	"log"

	"stocktrack/backend/internal/config"
	"stocktrack/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", `migration direction ("up" or "down")`)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Fatalf("migrate %s: %v", *direction, err)
	}
	log.Printf("migrations applied (%s)", *direction)
}
