package repositories

import (
	"fmt"

	"secondchance/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store bundles the repositories backing both services. It is built once at
// startup and shared.
type Store struct {
	Users UserRepository
	Items ItemRepository

	db *gorm.DB
}

// NewMemoryStore returns a Store backed by in-memory repositories.
func NewMemoryStore() *Store {
	return &Store{
		Users: NewMemoryUserRepository(),
		Items: NewMemoryItemRepository(),
	}
}

// NewGORMStore returns a Store backed by db.
func NewGORMStore(db *gorm.DB) *Store {
	return &Store{
		Users: NewGORMUserRepository(db),
		Items: NewGORMItemRepository(db),
		db:    db,
	}
}

// Open connects to the configured driver ("postgres", "sqlite" or "memory"),
// migrates the schema and returns the Store.
func Open(driver, dsn string, log gormlogger.Interface) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         log,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite allows one writer; a single connection also keeps
		// ":memory:" databases from splitting across connections.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return NewGORMStore(db), nil
}

// Migrate creates or updates the users and items tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Item{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// Ping reports whether the backing database is reachable. Memory stores are
// always reachable.
func (s *Store) Ping() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
