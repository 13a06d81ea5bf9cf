package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sjperalta/pharmavault-api/internal/config"
	"github.com/sjperalta/pharmavault-api/internal/database"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/services"
	"github.com/sjperalta/pharmavault-api/internal/storage"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
)

// seed bootstraps the first Admin account so the API can be used at all.
// Users are otherwise created only by an Admin.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Setup(cfg.Environment, cfg.LogLevel)

	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" {
		log.Fatal("SEED_ADMIN_EMAIL is required")
	}
	generated := false
	if password == "" {
		if password, err = services.GenerateTempPassword(); err != nil {
			log.Fatalf("Failed to generate password: %v", err)
		}
		generated = true
	}
	name := os.Getenv("SEED_ADMIN_NAME")
	if name == "" {
		name = "System Administrator"
	}

	db, err := database.Connect(cfg.DatabaseURL,
		database.WithSlowQueryThreshold(cfg.SlowQueryThreshold),
		database.WithSQLTrace(cfg.LogSQL),
	)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// no worker: the welcome email is sent inline below when enabled
	svcs := services.NewServices(repository.NewRepositories(db), nil, store, cfg, db)

	ctx := context.Background()
	admin, created, err := svcs.User.EnsureAdmin(ctx, email, password, name)
	if err != nil {
		log.Fatalf("Failed to seed admin: %v", err)
	}
	if !created {
		log.Printf("Admin %s already exists (id %d)", admin.Email, admin.ID)
		return
	}
	log.Printf("Created admin %s (id %d)", admin.Email, admin.ID)
	if generated {
		// printed once; it is not stored anywhere in clear text
		log.Printf("Temporary password: %s", password)
	}

	if cfg.EnableEmailNotifications {
		if err := svcs.Email.SendAccountCreated(ctx, admin); err != nil {
			log.Printf("Welcome email failed: %v", err)
		}
	}
}
