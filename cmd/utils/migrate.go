package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spounge-ai/auditvault/internal/infra/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("AUDITVAULT_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	m, err := migrate.New("file://migrations", "pgx5://"+trimScheme(cfg.Database.URL))
	if err != nil {
		log.Fatalf("failed to create migration instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("migration failed: %v", err)
	}
	fmt.Println("Migrations completed successfully.")

	fmt.Println("\nVerifying tables in 'public' schema...")
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to connect for verification: %v", err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'`)
	if err != nil {
		log.Fatalf("failed to query tables: %v", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			log.Fatalf("failed to scan table name: %v", err)
		}
		tables = append(tables, name)
	}

	if len(tables) == 0 {
		fmt.Println("No tables found in 'public' schema.")
		return
	}
	fmt.Println("Tables found:")
	for _, t := range tables {
		fmt.Printf("- %s\n", t)
	}
}

// trimScheme strips postgres:// style prefixes so the migrate URL can carry
// its own driver scheme.
func trimScheme(url string) string {
	for _, prefix := range []string{"postgres://", "postgresql://", "pgx5://"} {
		if len(url) > len(prefix) && url[:len(prefix)] == prefix {
			return url[len(prefix):]
		}
	}
	return url
}
