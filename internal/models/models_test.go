package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventUsesStoredTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	rec := TranslationRecord{
		ID:            7,
		ImagePath:     "saved_images/1700000000000.png",
		PredictedText: "HELLO",
		CreatedAt:     time.Date(2024, 3, 1, 15, 4, 5, 123456789, loc),
	}

	ev := NewEvent(rec)

	assert.Equal(t, int64(7), ev.ID)
	assert.Equal(t, "HELLO", ev.PredictedText)
	assert.Equal(t, "saved_images/1700000000000.png", ev.ImagePath)
	assert.Equal(t, "2024-03-01T12:04:05.123Z", ev.CreatedAt)
}

func TestEventJSONFieldNames(t *testing.T) {
	ev := NewEvent(TranslationRecord{ID: 1, ImagePath: "saved_images/a.png", PredictedText: DefaultPredictedText, CreatedAt: time.Unix(0, 0)})

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 1,
		"predicted_text": "No Data",
		"image_path": "saved_images/a.png",
		"created_at": "1970-01-01T00:00:00.000Z"
	}`, string(data))
}
