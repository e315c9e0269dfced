// internal/models/models.go
package models

import "time"

// DefaultPredictedText is stored when a submission carries no label.
const DefaultPredictedText = "No Data"

// eventTimeLayout matches the ISO-8601 form consumers already parse (UTC, millis).
const eventTimeLayout = "2006-01-02T15:04:05.000Z"

type TranslationRecord struct {
	ID            int64     `db:"id" json:"id"`
	ImagePath     string    `db:"image_path" json:"image_path"`
	PredictedText string    `db:"predicted_text" json:"predicted_text"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// TranslationEvent is what gets broadcast for a freshly inserted record.
type TranslationEvent struct {
	ID            int64  `json:"id"`
	PredictedText string `json:"predicted_text"`
	ImagePath     string `json:"image_path"`
	CreatedAt     string `json:"created_at"`
}

// NewEvent builds the broadcast form of rec using the timestamp the repository stored.
func NewEvent(rec TranslationRecord) TranslationEvent {
	return TranslationEvent{
		ID:            rec.ID,
		PredictedText: rec.PredictedText,
		ImagePath:     rec.ImagePath,
		CreatedAt:     FormatEventTime(rec.CreatedAt),
	}
}

func FormatEventTime(t time.Time) string {
	return t.UTC().Format(eventTimeLayout)
}
