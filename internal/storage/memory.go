package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"handsign/internal/models"
)

// MemoryURL selects the in-process repository instead of PostgreSQL.
const MemoryURL = "memory://"

// Memory is a process-local translation repository for development and tests.
// Its contents are lost on exit.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	rows   []models.TranslationRecord
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// NewMemoryWithClock uses now for created_at instead of the wall clock.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{now: now}
}

func (m *Memory) Insert(ctx context.Context, imagePath, predictedText string) (models.TranslationRecord, error) {
	const op = "storage.Memory.Insert"

	if err := ctx.Err(); err != nil {
		return models.TranslationRecord{}, fmt.Errorf("%s: %w: %w", op, models.ErrPersistence, err)
	}
	if imagePath == "" {
		return models.TranslationRecord{}, fmt.Errorf("%s: %w: empty image path", op, models.ErrPersistence)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec := models.TranslationRecord{
		ID:            m.nextID,
		ImagePath:     imagePath,
		PredictedText: predictedText,
		CreatedAt:     m.now(),
	}
	m.rows = append(m.rows, rec)
	return rec, nil
}

func (m *Memory) ListAll(ctx context.Context) ([]models.TranslationRecord, error) {
	const op = "storage.Memory.ListAll"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrPersistence, err)
	}

	m.mu.Lock()
	out := make([]models.TranslationRecord, len(m.rows))
	copy(out, m.rows)
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() {}
