package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dimitrije/credstore-api/internal/config"
	"github.com/dimitrije/credstore-api/internal/database"
	"github.com/dimitrije/credstore-api/internal/handlers"
	"github.com/dimitrije/credstore-api/internal/kms"
	authmw "github.com/dimitrije/credstore-api/internal/middleware"
	"github.com/dimitrije/credstore-api/internal/services"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
)

func main() {
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

	masterKeys, err := kms.NewLocalProvider(db, cfg.KMSRootKey)
	if err != nil {
		log.Fatalf("Failed to initialize master key provider: %v", err)
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	userService := services.NewUserService(db)
	dataKeyService := services.NewDataKeyService(db, masterKeys)
	cipherService := services.NewCipherService(dataKeyService, masterKeys)
	credentialService := services.NewCredentialService(db, cipherService)

	userHandler := handlers.NewUserHandler(userService)
	credentialHandler := handlers.NewCredentialHandler(credentialService)

	app := drift.New()

	if cfg.IsProduction() {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())

	api := app.Group("/api/v1")

	protected := api.Group("")
	protected.Use(authmw.Auth(jwtService))

	protected.Get("/users/me", userHandler.GetMe)

	protected.Get("/credentials", credentialHandler.List)
	protected.Post("/credentials", credentialHandler.Create)
	protected.Patch("/credentials/:credentialId", credentialHandler.Update)
	protected.Delete("/credentials/:credentialId", credentialHandler.Delete)

	api.Get("/health", func(c *drift.Context) {
		_ = c.JSON(200, map[string]string{"status": "ok"})
	})

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Printf("Server starting on %s", addr)
		if err := app.Run(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
}
