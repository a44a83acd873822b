package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"casebridge/config"
	"casebridge/internal/auth"
	"casebridge/internal/broadcast"
	"casebridge/internal/domain/conversation"
	"casebridge/internal/notification"
	"casebridge/internal/presence"
	"casebridge/internal/repository"
	"casebridge/internal/services"
	casebridge_errors "casebridge/pkg/errors"
	"casebridge/pkg/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const usage = `
Casebridge - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create or update all tables
  down        Drop all tables (DANGEROUS)
  status      Show database connection and table status
  seed-dev    Seed development contacts, templates and a sample case conversation
  token       Print a development access token for -user

Flags:
  -user string   User id for the token command (default: the seeded client)
  -ttl duration  Token lifetime (default 24h)

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate seed-dev
  go run ./cmd/migrate -user 00000000-0000-4000-8000-000000000001 token
`

func main() {
	userFlag := flag.String("user", database.DevClientID.String(), "User id for the token command")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	cfg := config.LoadConfig()

	if command == "token" {
		printToken(cfg, *userFlag, *ttl)
		return
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close(db)

	switch command {
	case "up":
		runMigrationsUp(db)
	case "down":
		runMigrationsDown(db)
	case "status":
		showStatus(db)
	case "seed-dev":
		runSeedDevelopment(db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(db *gorm.DB) {
	log.Println("🚀 Running migrations UP...")

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func runMigrationsDown(db *gorm.DB) {
	log.Println("⬇️  Dropping all tables...")

	if err := repository.DropSchema(db); err != nil {
		log.Fatalf("❌ Rollback failed: %v", err)
	}

	log.Println("✅ Rollback completed successfully!")
}

func showStatus(db *gorm.DB) {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(context.Background(), db); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	for _, model := range repository.Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			log.Printf("⚠️  Error parsing model %T: %v", model, err)
			continue
		}
		table := stmt.Schema.Table
		if !db.Migrator().HasTable(model) {
			log.Printf("❌ Table %-28s does not exist", table)
			continue
		}
		var count int64
		db.Model(model).Count(&count)
		log.Printf("✅ Table %-28s exists (%d rows)", table, count)
	}
}

func runSeedDevelopment(db *gorm.DB) {
	log.Println("🌱 Seeding database (development mode)...")
	ctx := context.Background()

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	result, err := database.SeedDevelopment(ctx, db)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	// The sample conversation goes through the service so receipts and
	// activity cursors match what the API would have written.
	store := repository.NewStore(db)
	registry := presence.NewRegistry(store.Conversations, nil)
	engine := broadcast.NewEngine(registry, nil)
	orch := notification.NewOrchestrator(store, engine, nil, nil, nil)
	svc := services.NewConversationService(store, registry, engine, notification.NewInlineDispatcher(orch, nil), nil)

	created := "already present"
	_, err = svc.CreateConversation(ctx, services.CreateConversationInput{
		CreatorID:      database.DevAttorneyID,
		Type:           conversation.TypeDirect,
		ParticipantIDs: []uuid.UUID{database.DevClientID},
		InitialMessage: "Welcome! This thread is for questions about your case.",
	})
	var dup *casebridge_errors.DirectExistsError
	switch {
	case err == nil:
		created = "created"
	case errors.As(err, &dup):
	default:
		log.Fatalf("❌ Seeding conversation failed: %v", err)
	}

	log.Println("📊 Seed Summary:")
	log.Printf("   - Contacts: %d", result.Contacts)
	log.Printf("   - Templates: %d", result.Templates)
	log.Printf("   - Attorney/client conversation: %s", created)
	log.Println("✅ Development seeding completed!")
}

func printToken(cfg *config.Config, rawUser string, ttl time.Duration) {
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		log.Fatalf("❌ Invalid user id %q: %v", rawUser, err)
	}
	token, err := auth.NewJWTVerifier(cfg.JWTSecret).Sign(userID, ttl)
	if err != nil {
		log.Fatalf("❌ Signing failed: %v", err)
	}
	fmt.Println(token)
}
