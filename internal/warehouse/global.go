package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/rs/zerolog"
)

// StoreManager holds the process-wide warehouse store.
type StoreManager struct {
	sync.RWMutex // Protects the store pointer during initialization
	store        *Store
}

// Global Manager instance for main logic.
var (
	Manager   = &StoreManager{}
	initOnce  sync.Once
	closeOnce sync.Once
)

// GetStore returns the initialized store, or nil before InitWarehouse.
func (mgr *StoreManager) GetStore() *Store {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.store
}

// GetDBFilePath returns the SQLite warehouse path: connStr when set, else the default.
func GetDBFilePath(connStr string) string {
	if connStr != "" {
		return connStr
	}
	return contract.GetWarehouseDBFilePath()
}

// InitWarehouse opens the global store exactly once.
func InitWarehouse(ctx context.Context, backend schema.DatabaseBackend, connStr string, logger zerolog.Logger) error {
	var initErr error
	initOnce.Do(func() {
		store, err := Open(ctx, backend, connStr, logger)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize warehouse: %w", err)
			return
		}
		Manager.Lock()
		Manager.store = store
		Manager.Unlock()
	})
	return initErr
}

// CloseWarehouse should be called on application shutdown.
func CloseWarehouse() { // called in main defer
	closeOnce.Do(func() {
		Manager.Lock()
		defer Manager.Unlock()
		if Manager.store != nil {
			_ = Manager.store.Close()
		}
	})
}

// ClearWarehouse removes all warehouse data for the backend.
// For SQLite, it deletes the database file.
// For MySQL and PostgreSQL, it drops the warehouse tables and the migration table.
// For the none backend, it does nothing.
func ClearWarehouse(ctx context.Context, backend schema.DatabaseBackend, dbFilePath, connStr string) error {
	switch backend {
	case schema.SQLiteBackend:
		if dbFilePath == "" {
			return fmt.Errorf("dbFilePath cannot be empty for SQLite backend")
		}
		if err := os.Remove(dbFilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove SQLite database file %s: %w", dbFilePath, err)
		}
		return nil

	case schema.MySQLBackend, schema.PostgreSQLBackend:
		db, err := openDB(ctx, backend, connStr)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return dropTables(ctx, db, rowsTable, outcomesTable, runsTable, migrationsTable)

	case schema.NoneBackend:
		return nil

	default:
		return fmt.Errorf("unsupported warehouse backend for clearing: %s", backend)
	}
}

// dropTables drops each table if it exists.
func dropTables(ctx context.Context, db *sql.DB, tables ...string) error {
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
