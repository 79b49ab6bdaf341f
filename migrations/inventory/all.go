package inventory

import "gopartsync_api/pkg/dbconnect/migration"

// All возвращает миграции в порядке применения.
func All() []migration.MigrationInterface {
	return []migration.MigrationInterface{
		&MigrationsSchema{},
		&InventorySchema{},
		&Items{},
		&SupplierQuotes{},
		&Settings{},
		&Metadata{},
	}
}
