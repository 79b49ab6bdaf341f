package postgres

import (
	"database/sql"
	"fmt"
	"gopartsync_api/config"
	"gopartsync_api/pkg/dbconnect"
	"gopartsync_api/pkg/logger"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

const maxRetries = 10
const retryDelay = 5 * time.Second

var _ dbconnect.Database = (*PostgresDatabase)(nil)

type PostgresDatabase struct {
	config.DatabaseConfig
	maxOpenConns int
	log          logger.Logger
	db           *sql.DB
	mu           sync.Mutex // Для защиты доступа к db
}

func NewPgConnector(dbConfig config.DatabaseConfig, maxOpenConns int, log logger.Logger) *PostgresDatabase {
	return &PostgresDatabase{DatabaseConfig: dbConfig, maxOpenConns: maxOpenConns, log: log}
}

func (pg *PostgresDatabase) Connect() (*sql.DB, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.db != nil {
		return pg.db, nil
	}

	driver := pg.GetDriver()
	if driver != "postgres" && driver != "pgx" {
		return nil, fmt.Errorf("unsupported postgres driver %q", driver)
	}

	var err error
	conStr := pg.GetConnectionString()

	for i := 0; i < maxRetries; i++ {
		var db *sql.DB
		db, err = sql.Open(driver, conStr)
		if err != nil {
			pg.log.Error("Failed to connect to Postgres (attempt %d/%d): %v", i+1, maxRetries, err)
			time.Sleep(retryDelay)
			continue
		}

		db.SetMaxOpenConns(pg.maxOpenConns)

		if err = db.Ping(); err != nil {
			pg.log.Error("Failed to ping Postgres db (attempt %d/%d): %v", i+1, maxRetries, err)
			db.Close()
			time.Sleep(retryDelay)
			continue
		}

		pg.log.Log("Successfully connected to Postgres via %s", driver)
		pg.db = db
		return pg.db, nil
	}
	return nil, err
}

func (pg *PostgresDatabase) Ping() error {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.db == nil {
		return fmt.Errorf("database connection is not established")
	}

	if err := pg.db.Ping(); err != nil {
		pg.db.Close()
		pg.db = nil
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (pg *PostgresDatabase) Close() error {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if pg.db == nil {
		return nil
	}
	err := pg.db.Close()
	pg.db = nil
	return err
}
