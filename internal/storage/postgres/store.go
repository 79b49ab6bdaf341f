package postgres

import (
	"database/sql"

	"gopartsync_api/internal/storage"
)

func NewStore(db *sql.DB) storage.Store {
	return storage.Store{
		Items:    NewItemRepository(db),
		Quotes:   NewQuoteRepository(db),
		Margins:  NewSettingsRepository(db),
		Metadata: NewMetadataRepository(db),
	}
}
