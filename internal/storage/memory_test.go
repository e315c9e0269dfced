package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handsign/internal/models"
)

func TestMemoryInsertAndList(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second), base.Add(2 * time.Second)}
	i := 0
	repo := NewMemoryWithClock(func() time.Time { ts := ticks[i]; i++; return ts })
	ctx := context.Background()

	for _, text := range []string{"t1", "t2", "t3", "t3b"} {
		_, err := repo.Insert(ctx, "saved_images/"+text+".png", text)
		require.NoError(t, err)
	}

	rows, err := repo.ListAll(ctx)
	require.NoError(t, err)
	var got []string
	for _, r := range rows {
		got = append(got, r.PredictedText)
	}
	assert.Equal(t, []string{"t3b", "t3", "t2", "t1"}, got)
	assert.Equal(t, int64(4), rows[0].ID)
}

func TestMemoryEmptyAndErrors(t *testing.T) {
	repo := NewMemory()

	rows, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	_, err = repo.Insert(context.Background(), "", "x")
	assert.ErrorIs(t, err, models.ErrPersistence)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.ListAll(ctx)
	assert.ErrorIs(t, err, models.ErrPersistence)
}
