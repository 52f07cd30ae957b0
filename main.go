package main

import (
	"context"
	"log"
	"os"

	"github.com/treekit/arbor/cache"
	"github.com/treekit/arbor/config"
	"github.com/treekit/arbor/handlers"
	"github.com/treekit/arbor/repository"

	"github.com/gin-gonic/gin"
)

func main() {
	// Create context
	ctx := context.Background()

	// Initialize config provider
	cfgProvider := config.NewEnvProvider("")

	// Initialize repository
	repo, err := newRepository(cfgProvider)
	if err != nil {
		log.Fatal("Failed to create repository:", err)
	}
	if err := repo.Initialize(ctx); err != nil {
		log.Fatal("Failed to initialize repository:", err)
	}
	defer repo.Cleanup(ctx)

	// Initialize cache
	if err := cache.Initialize(); err != nil {
		log.Fatal("Failed to initialize cache:", err)
	}

	// Initialize handlers
	treeHandler := handlers.NewTreeHandler(repo)

	// Initialize router
	r := gin.Default()

	// API routes
	api := r.Group("/api")
	treeHandler.RegisterRoutes(api)

	// Start server
	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	if err := r.Run(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// newRepository selects the storage backend. Postgres when DB_HOST is set,
// a local SQLite file otherwise.
func newRepository(cfgProvider config.Provider) (repository.Repository, error) {
	if os.Getenv("DB_HOST") != "" {
		return repository.NewPostgresRepository(cfgProvider)
	}
	return repository.NewSQLiteRepository(), nil
}
