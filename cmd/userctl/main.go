package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/scuolanet/auth-api/internal/service"
	"github.com/scuolanet/auth-api/pkg/config"
	"github.com/scuolanet/auth-api/pkg/database"
)

// userctl provisions accounts directly in the credential store. There is no
// self-service registration endpoint; operators create users with this tool.
func main() {
	username := flag.String("username", "", "account username")
	password := flag.String("password", "", "initial password")
	role := flag.String("role", "user", "role claim carried in issued tokens")
	disabled := flag.Bool("disabled", false, "create the account disabled")
	flag.Parse()

	if *username == "" || *password == "" {
		log.Fatal("both -username and -password are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	hash, err := service.HashPassword(*password, cfg.Password.BcryptCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := uuid.NewString()
	now := time.Now().UTC()
	const query = `INSERT INTO users (id, username, password_hash, role, active, failed_attempts, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, 0, $6, $6)`
	if _, err := db.ExecContext(ctx, query, id, *username, hash, *role, !*disabled, now); err != nil {
		log.Fatalf("failed to create user: %v", err)
	}

	fmt.Printf("created user %s (%s)\n", *username, id)
}
