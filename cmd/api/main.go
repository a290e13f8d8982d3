package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"nexus-inventory-api/internal"
	"nexus-inventory-api/internal/config"
)

func main() {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN environment variable is required")
	}

	srv := internal.NewServer(dsn, cfg)

	// Periodic overdue sweep; 0 disables it (use POST /overdue/check
	// for on-demand runs)
	if cfg.SweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.SweepInterval)
			defer ticker.Stop()
			for range ticker.C {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if n, err := srv.RunOverdueSweep(ctx, time.Now()); err != nil {
					log.Printf("Overdue sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("Overdue sweep: %d borrower(s) notified", n)
				}
				cancel()
			}
		}()
		log.Printf("Overdue sweep every %v", cfg.SweepInterval)
	}

	log.Println("Starting Nexus Inventory API server...")
	log.Printf("JWT Issuer: %s", cfg.JWTIssuer)
	log.Printf("JWT Audience: %s", cfg.JWTAudience)
	log.Printf("JWT Expiry: %v", cfg.JWTExpiry)
	log.Printf("Listening on %s", cfg.ListenAddr)

	log.Fatal(http.ListenAndServe(cfg.ListenAddr, srv.Router))
}
