package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

const upsertAdminSQL = `
INSERT INTO users (name, email, password_hash, role, created_at, updated_at)
VALUES ($1, $2, $3, 'admin', $4, $4)
ON CONFLICT (email) DO UPDATE
SET role = 'admin', password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at
RETURNING id`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	name := flag.String("name", "Administrator", "display name")
	email := flag.String("email", "", "admin email (required)")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password, defaults to $ADMIN_PASSWORD")
	flag.Parse()

	if err := validate(*email, *password); err != nil {
		log.Fatalf("❌ %v", err)
	}

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		log.Fatal("❌ DB_URL is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}
	log.Println("✅ Successfully connected to database")

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	id, err := createAdmin(ctx, db, *name, *email, string(hash), time.Now())
	if err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}

	fmt.Println("✅ Admin account ready")
	fmt.Printf("📧 Email: %s\n", strings.ToLower(strings.TrimSpace(*email)))
	fmt.Printf("🆔 ID:    %d\n", id)
}

func validate(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return errors.New("-email is required")
	}
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters long (use -password or ADMIN_PASSWORD)")
	}
	return nil
}

// createAdmin inserts the account or promotes an existing one with the same email. The users
// table must already exist, so run the server once to apply migrations.
func createAdmin(ctx context.Context, db *sql.DB, name, email, hash string, now time.Time) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, upsertAdminSQL, strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(email)), hash, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert admin: %w", err)
	}
	return id, nil
}
