// Package history keeps an append-only log of session and agent
// lifecycle events in a SQLite database inside the managed directory.
// Recording is best-effort: the log exists for doctor and debugging,
// so a failed append must never break an orchestration operation.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kiln/internal/logging"
	"kiln/internal/ports"
)

// Store implements ports.EventRecorder on SQLite via GORM.
type Store struct {
	db *gorm.DB
}

// Verify interface compliance at compile time
var _ ports.EventRecorder = (*Store)(nil)

// gormLogger routes GORM's logging through the kiln logger
type gormLogger struct {
	level logger.LogLevel
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{level: level}
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		logging.Logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		logging.Logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		logging.Logger.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level < logger.Info {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logging.Logger.Error("gorm query error", "error", err, "duration", elapsed, "sql", sql, "rows", rows)
	} else if elapsed > 200*time.Millisecond {
		logging.Logger.Warn("slow query", "duration", elapsed, "sql", sql, "rows", rows)
	} else {
		logging.Logger.Debug("gorm query", "duration", elapsed, "sql", sql, "rows", rows)
	}
}

func newGormLogger() logger.Interface {
	if os.Getenv("KILN_DEBUG") == "1" {
		return (&gormLogger{}).LogMode(logger.Info)
	}
	return (&gormLogger{}).LogMode(logger.Silent)
}

// NewStore opens (or creates) the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:  newGormLogger(),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// WAL lets a running orchestrator and ad-hoc CLI commands append
	// concurrently.
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA synchronous=NORMAL")

	if err := db.AutoMigrate(&EventModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	logging.Logger.Debug("History database opened", "path", dbPath)
	return &Store{db: db}, nil
}

// Record appends one event. The caller decides whether a failure
// matters; orchestration code logs and moves on.
func (s *Store) Record(ctx context.Context, event ports.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	model := toModel(event)
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Create(&model).Error
	}, 3)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", event.Kind, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]ports.Event, error) {
	if limit <= 0 {
		limit = 20
	}

	var models []EventModel
	err := withRetry(func() error {
		return s.db.WithContext(ctx).
			Order("created_at DESC, id DESC").
			Limit(limit).
			Find(&models).Error
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	events := make([]ports.Event, len(models))
	for i, model := range models {
		events[i] = fromModel(model)
	}
	return events, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withRetry retries operations on SQLITE_BUSY with linear backoff
func withRetry(fn func() error, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}

		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
			time.Sleep(time.Millisecond * time.Duration(50*(i+1)))
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries", maxRetries)
}
