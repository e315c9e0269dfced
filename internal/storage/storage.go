// internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"handsign/internal/models"
)

// Storage is the translation repository backed by PostgreSQL.
type Storage struct {
	pool    *pgxpool.Pool
	db      *sql.DB // For migrations
	timeout time.Duration
}

func NewStorage(ctx context.Context, cfg models.DatabaseConfig, logger *slog.Logger) (*Storage, error) {
	const op = "storage.NewStorage"

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(db, logger); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{pool: pool, db: db, timeout: cfg.QueryTimeout}, nil
}

func (s *Storage) Close() {
	s.db.Close()
	s.pool.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Insert stores a new translation and returns it with the generated id and
// the timestamp the database assigned.
func (s *Storage) Insert(ctx context.Context, imagePath, predictedText string) (models.TranslationRecord, error) {
	const op = "storage.Insert"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`INSERT INTO translations (image_path, predicted_text)
		 VALUES ($1, $2)
		 RETURNING id, image_path, predicted_text, created_at`,
		imagePath, predictedText)
	if err != nil {
		return models.TranslationRecord{}, fmt.Errorf("%s: %w: %w", op, models.ErrPersistence, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.TranslationRecord])
	if err != nil {
		return models.TranslationRecord{}, fmt.Errorf("%s: %w: %w", op, models.ErrPersistence, err)
	}
	return rec, nil
}

// ListAll returns every translation, newest first.
func (s *Storage) ListAll(ctx context.Context) ([]models.TranslationRecord, error) {
	const op = "storage.ListAll"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, image_path, predicted_text, created_at
		 FROM translations
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrPersistence, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.TranslationRecord])
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrPersistence, err)
	}
	if records == nil {
		records = []models.TranslationRecord{}
	}
	return records, nil
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
