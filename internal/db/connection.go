package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/svvoii/evs-charging-france-dashboard/internal/config"
)

// Connection holds the database connection
type Connection struct {
	DB *sql.DB
}

// DSN builds a lib/pq connection string from DATABASE_URL or the PG*
// variables.
func DSN() string {
	if url := config.GetEnv("DATABASE_URL", ""); url != "" {
		return url
	}
	host := config.GetEnv("PGHOST", "localhost")
	port := config.GetEnv("PGPORT", "5432")
	user := config.GetEnv("PGUSER", "postgres")
	password := config.GetEnv("PGPASSWORD", "postgres")
	dbname := config.GetEnv("PGDATABASE", "evs_dashboard")
	sslmode := config.GetEnv("PGSSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

// NewConnection opens and pings the database described by dsn. An empty dsn
// uses DSN().
func NewConnection(ctx context.Context, dsn string) (*Connection, error) {
	if dsn == "" {
		dsn = DSN()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(config.GetEnvInt("PG_MAX_CONNS", 10))
	db.SetMaxIdleConns(config.GetEnvInt("PG_MAX_CONNS", 10) / 2)
	db.SetConnMaxLifetime(time.Hour)

	return &Connection{DB: db}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}
