package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dimitrije/credstore-api/internal/config"
	"github.com/dimitrije/credstore-api/internal/database"
	"github.com/dimitrije/credstore-api/internal/services"
	"github.com/google/uuid"
)

// issue-token upserts an organization and user by name/email and prints a
// signed access token for them. Meant for operators and local testing; the
// real identity provider lives outside this service.
func main() {
	if len(os.Args) != 4 {
		fmt.Println("Usage: issue-token <org-name> <email> <user-name>")
		os.Exit(1)
	}

	orgName, email, userName := os.Args[1], os.Args[2], os.Args[3]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var orgID uuid.UUID
	err = db.Pool.QueryRow(ctx, `
		SELECT id FROM organizations WHERE name = $1
	`, orgName).Scan(&orgID)
	if err != nil {
		err = db.Pool.QueryRow(ctx, `
			INSERT INTO organizations (name) VALUES ($1) RETURNING id
		`, orgName).Scan(&orgID)
		if err != nil {
			log.Fatalf("Failed to create organization: %v", err)
		}
	}

	var userID uuid.UUID
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO users (email, name)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
		RETURNING id
	`, email, userName).Scan(&userID)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	pair, err := jwtService.GenerateTokenPair(userID, orgID, email)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	fmt.Printf("org: %s\nuser: %s\ntoken: %s\n", orgID, userID, pair.AccessToken)
}
