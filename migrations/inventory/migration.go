package inventory

import (
	"database/sql"
	"fmt"
	"log"
)

const (
	InventorySchemaMigration = "inventory.schema"
	ItemsMigration           = "inventory.items"
	SupplierQuotesMigration  = "inventory.supplier_quotes"
	SettingsMigration        = "inventory.settings"
	MetadataMigration        = "inventory.metadata"
)

// MigrationsSchema создаёт журнал применённых миграций.
type MigrationsSchema struct{}

func (m *MigrationsSchema) UpMigration(db *sql.DB) error {
	query := `
		CREATE SCHEMA IF NOT EXISTS migrations;
		CREATE TABLE IF NOT EXISTS migrations.migrations (
			name VARCHAR(255) PRIMARY KEY,
			time TIMESTAMP NOT NULL
		);`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// applyOnce выполняет query, если миграция name ещё не отмечена в журнале.
func applyOnce(db *sql.DB, name, query string) error {
	var migrationExists bool
	err := db.QueryRow("SELECT EXISTS (SELECT 1 FROM migrations.migrations WHERE name = $1)", name).Scan(&migrationExists)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if migrationExists {
		log.Printf("Migration '%s' already completed. Skipping.", name)
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.Exec(query); err != nil {
		return fmt.Errorf("failed to apply %s: %w", name, err)
	}
	if _, err = tx.Exec("INSERT INTO migrations.migrations (name, time) VALUES ($1, current_timestamp)", name); err != nil {
		return fmt.Errorf("failed to mark '%s' migration as complete: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	log.Printf("Migration '%s' completed successfully.", name)
	return nil
}

type InventorySchema struct{}

func (m *InventorySchema) UpMigration(db *sql.DB) error {
	return applyOnce(db, InventorySchemaMigration, `CREATE SCHEMA IF NOT EXISTS inventory;`)
}

type Items struct{}

func (m *Items) UpMigration(db *sql.DB) error {
	return applyOnce(db, ItemsMigration, `
		CREATE TABLE IF NOT EXISTS inventory.items (
			id BIGSERIAL PRIMARY KEY,
			external_id BIGINT UNIQUE,
			sku VARCHAR(255) NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			price NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (price >= 0),
			stock_quantity INT NOT NULL DEFAULT 0,
			stock_status VARCHAR(32) NOT NULL DEFAULT 'out_of_stock',
			chosen_supplier VARCHAR(32),
			categories TEXT[] NOT NULL DEFAULT '{}',
			images TEXT[] NOT NULL DEFAULT '{}',
			supplier_tags TEXT[] NOT NULL DEFAULT '{}',
			sync_required BOOLEAN NOT NULL DEFAULT FALSE,
			last_synced_at TIMESTAMPTZ,
			external_modified_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS inventory_items_sync_required_idx
			ON inventory.items (sync_required) WHERE sync_required;`)
}

type SupplierQuotes struct{}

func (m *SupplierQuotes) UpMigration(db *sql.DB) error {
	return applyOnce(db, SupplierQuotesMigration, `
		CREATE TABLE IF NOT EXISTS inventory.supplier_quotes (
			id BIGSERIAL PRIMARY KEY,
			item_id BIGINT NOT NULL REFERENCES inventory.items(id) ON DELETE CASCADE,
			supplier VARCHAR(32) NOT NULL,
			price NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (price >= 0),
			stock INT NOT NULL DEFAULT 0,
			available BOOLEAN NOT NULL DEFAULT FALSE,
			stock_status VARCHAR(32) NOT NULL DEFAULT 'out_of_stock',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (item_id, supplier)
		);`)
}

type Settings struct{}

func (m *Settings) UpMigration(db *sql.DB) error {
	return applyOnce(db, SettingsMigration, `
		CREATE TABLE IF NOT EXISTS inventory.settings (
			key VARCHAR(255) PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
}

type Metadata struct{}

func (m *Metadata) UpMigration(db *sql.DB) error {
	return applyOnce(db, MetadataMigration, `
		CREATE TABLE IF NOT EXISTS inventory.metadata (
			key_name VARCHAR(255) PRIMARY KEY,
			last_update TIMESTAMPTZ NOT NULL
		);`)
}
