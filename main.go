package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/krshsl/praxis/grader/repository"
	"github.com/krshsl/praxis/grader/services"
)

func main() {
	// Load configuration
	config, err := services.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging with JSON format
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.SlogLevel()}))
	slog.SetDefault(logger)

	// Initialize database connection
	db, err := repository.Open(config.DatabaseOptions())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	repo := repository.NewGORMRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if config.Database.Seed {
		if err := services.NewDatabaseSeeder(repo).SeedDatabase(ctx); err != nil {
			slog.Error("Failed to seed database", "error", err)
		}
	}

	server := services.NewServer(config, repo)
	if err := server.InitializeServices(ctx); err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}
	server.Start()
}
