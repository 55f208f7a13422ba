// Package main provides a utility to seed a local admin user for
// development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rleekg/craft-cognito/internal/domain"
	"github.com/rleekg/craft-cognito/internal/store/file"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "Data directory")
	email := flag.String("email", "admin@example.com", "Admin email")
	username := flag.String("username", "", "Admin username (defaults to email)")
	flag.Parse()

	store, err := file.NewStore(*dataDir)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	name := *username
	if name == "" {
		name = *email
	}

	now := time.Now().UTC()
	admin := &domain.LocalUser{
		ID:        uuid.New().String(),
		Username:  name,
		Email:     *email,
		Admin:     true,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.Save(ctx, admin); err != nil {
		fmt.Printf("Admin user may already exist: %v\n", err)
		return
	}
	if err := store.AssignToDefaultGroup(ctx, admin); err != nil {
		log.Fatalf("Failed to assign default group: %v", err)
	}

	fmt.Printf("Created admin user: %s (%s)\n", admin.Email, admin.ID)
	fmt.Println("\nThe account must also exist in the remote user pool;")
	fmt.Println("passwords are never stored locally.")
}
