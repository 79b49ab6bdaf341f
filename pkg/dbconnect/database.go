package dbconnect

import "database/sql"

// Database - подключение к реляционному хранилищу инвентаря.
type Database interface {
	Connect() (*sql.DB, error)
	Ping() error
	Close() error
}
