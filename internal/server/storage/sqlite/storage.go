package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const migrationsDir = "migrations"

// Storage represents SQLite storage implementation
type Storage struct {
	db       *sql.DB
	now      func() time.Time
	lastTime time.Time // последнее выданное время коммита
	timeMu   sync.Mutex
}

// New opens the database and applies pending migrations.
// Use ":memory:" for in-memory database (useful for testing)
func New(ctx context.Context, dbPath string) (*Storage, error) {
	storage, err := Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	// Запускаем миграции
	if err := storage.Migrate(ctx, "up"); err != nil {
		storage.db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// После перезапуска время коммита продолжает расти от последней записи
	var last int64
	if err := storage.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(updated_at), 0) FROM entities`).Scan(&last); err != nil {
		storage.db.Close()
		return nil, fmt.Errorf("failed to read last commit time: %w", err)
	}
	if last > 0 {
		storage.lastTime = fromNanos(last)
	}

	return storage, nil
}

// Open opens the database without touching the schema.
func Open(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем соединение с БД
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Одно соединение: транзакции синхронизации выполняются строго по очереди,
	// проверка версии и ее увеличение не могут перемешаться
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Включаем WAL mode и другие оптимизации
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return &Storage{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Migrate runs a goose command (up, down, status, redo, version) against the embedded migrations
func (s *Storage) Migrate(ctx context.Context, command string, args ...string) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, s.db, migrationsDir, args...); err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}

	return nil
}

// Ping checks that the database answers
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying database connection for testing purposes
func (s *Storage) DB() *sql.DB {
	return s.db
}

// commitTime returns a strictly increasing timestamp for a write transaction
func (s *Storage) commitTime() time.Time {
	s.timeMu.Lock()
	defer s.timeMu.Unlock()

	t := s.now().UTC()
	if !t.After(s.lastTime) {
		t = s.lastTime.Add(time.Microsecond)
	}
	s.lastTime = t
	return t
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
