package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joho/godotenv"
)

const usage = "Usage: go run ./cmd/migrate [up|drop|seed|file <path.sql>]"

// execer is the part of *pgx.Conn the migrations need
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	// Connect to database
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	if err := run(ctx, conn, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("Migration %q failed: %v", os.Args[1], err)
	}
}

func run(ctx context.Context, conn execer, command string, args []string) error {
	switch command {
	case "up":
		if err := execAll(ctx, conn, createTables, "Created"); err != nil {
			return err
		}
		fmt.Println("✅ All tables created successfully")

	case "drop":
		if err := execAll(ctx, conn, dropTables, "Dropped"); err != nil {
			return err
		}
		fmt.Println("✅ All tables dropped successfully")

	case "seed":
		if err := execAll(ctx, conn, seedUsers, "Seeded"); err != nil {
			return err
		}
		fmt.Println("✅ Data seeded successfully")

	case "file":
		if len(args) == 0 {
			return fmt.Errorf("missing SQL file path\n%s", usage)
		}
		if err := runFile(ctx, conn, args[0]); err != nil {
			return err
		}
		fmt.Printf("✅ %s applied successfully\n", args[0])

	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}

	return nil
}

var createTables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		external_id VARCHAR(255) UNIQUE NOT NULL,
		email VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		company VARCHAR(255),
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
}

var dropTables = []string{
	`DROP TABLE IF EXISTS users CASCADE`,
}

var seedUsers = []string{
	`INSERT INTO users (external_id, email, name, company) VALUES
	('demo|owner', 'owner@example.com', 'Demo Owner', 'Example Ltd'),
	('demo|accountant', 'accountant@example.com', 'Demo Accountant', 'Example Ltd')
	ON CONFLICT (external_id) DO UPDATE SET
		email = EXCLUDED.email,
		name = EXCLUDED.name,
		company = EXCLUDED.company,
		updated_at = NOW()`,
}

func execAll(ctx context.Context, conn execer, queries []string, verb string) error {
	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  %s: %s\n", verb, getTableName(query))
	}
	return nil
}

func runFile(ctx context.Context, conn execer, path string) error {
	sqlBytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	if _, err := conn.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("failed to execute %s: %w", path, err)
	}
	return nil
}

func getTableName(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
