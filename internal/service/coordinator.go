// Package service sequences the side effects of one translation submission
// and serves the translation history.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"handsign/internal/metrics"
	"handsign/internal/models"
	"handsign/internal/publisher"
)

type BlobStore interface {
	Save(ctx context.Context, r io.Reader, ext string) (string, error)
}

type Repository interface {
	Insert(ctx context.Context, imagePath, predictedText string) (models.TranslationRecord, error)
}

// Submission is one inbound image plus its label. File is nil when the
// request carried no file part.
type Submission struct {
	File          io.Reader
	Filename      string
	Size          int64
	PredictedText string
}

type Options struct {
	TextTopic      string
	JSONTopic      string
	PublishTimeout time.Duration
}

// OptionsFrom derives coordinator options from the broker configuration.
func OptionsFrom(cfg models.MQTTConfig) Options {
	return Options{
		TextTopic:      cfg.TextTopic(),
		JSONTopic:      cfg.JSONTopic(),
		PublishTimeout: cfg.PublishTimeout,
	}
}

// Coordinator runs submissions through blob store, repository and publisher,
// strictly in that order. It keeps no state between submissions.
type Coordinator struct {
	blobs   BlobStore
	repo    Repository
	pub     publisher.Publisher
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewCoordinator(blobs BlobStore, repo Repository, pub publisher.Publisher, opts Options, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		blobs:   blobs,
		repo:    repo,
		pub:     pub,
		opts:    opts,
		logger:  logger.With("component", "coordinator"),
		metrics: m,
	}
}

// Submit stores the image, records the translation and broadcasts it.
// Broadcast failures are logged only; once the record is persisted the
// submission has succeeded.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) (models.TranslationEvent, error) {
	const op = "service.Submit"

	if sub.File == nil || sub.Size == 0 {
		c.metrics.SubmissionDone(metrics.OutcomeMissingPayload)
		return models.TranslationEvent{}, fmt.Errorf("%s: %w", op, models.ErrMissingPayload)
	}
	if err := ctx.Err(); err != nil {
		c.metrics.SubmissionDone(metrics.OutcomeCanceled)
		return models.TranslationEvent{}, fmt.Errorf("%s: %w", op, err)
	}

	text := sub.PredictedText
	if text == "" {
		text = models.DefaultPredictedText
	}

	locator, err := c.blobs.Save(ctx, sub.File, filepath.Ext(sub.Filename))
	if err != nil {
		if !errors.Is(err, models.ErrStorageWrite) {
			err = fmt.Errorf("%w: %w", models.ErrStorageWrite, err)
		}
		c.metrics.SubmissionDone(metrics.OutcomeStorageError)
		c.logger.Error("storing image", "filename", sub.Filename, "error", err)
		return models.TranslationEvent{}, fmt.Errorf("%s: %w", op, err)
	}
	c.metrics.BlobSize.Observe(float64(sub.Size))

	// The blob exists now; a departing caller must not leave it unrecorded.
	ctx = context.WithoutCancel(ctx)

	rec, err := c.repo.Insert(ctx, locator, text)
	if err != nil {
		if !errors.Is(err, models.ErrPersistence) {
			err = fmt.Errorf("%w: %w", models.ErrPersistence, err)
		}
		c.metrics.SubmissionDone(metrics.OutcomePersistError)
		c.logger.Error("recording translation, image left orphaned", "image_path", locator, "error", err)
		return models.TranslationEvent{}, fmt.Errorf("%s: %w", op, err)
	}

	ev := models.NewEvent(rec)
	c.broadcast(ctx, ev)

	c.metrics.SubmissionDone(metrics.OutcomeSuccess)
	c.logger.Info("translation stored", "id", ev.ID, "predicted_text", ev.PredictedText, "image_path", ev.ImagePath)
	return ev, nil
}

// broadcast publishes the plain label and the JSON event independently.
func (c *Coordinator) broadcast(ctx context.Context, ev models.TranslationEvent) {
	c.publish(ctx, c.opts.TextTopic, []byte(ev.PredictedText), ev.ID)

	data, err := json.Marshal(ev)
	if err != nil {
		c.metrics.PublishFailed(c.opts.JSONTopic)
		c.logger.Error("encoding event", "id", ev.ID, "error", err)
		return
	}
	c.publish(ctx, c.opts.JSONTopic, data, ev.ID)
}

func (c *Coordinator) publish(ctx context.Context, topic string, payload []byte, id int64) {
	if c.opts.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.PublishTimeout)
		defer cancel()
	}

	opts := publisher.Options{QoS: publisher.AtLeastOnce, Retain: true}
	if err := c.pub.Publish(ctx, topic, payload, opts); err != nil {
		c.metrics.PublishFailed(topic)
		c.logger.Warn("publishing translation", "id", id, "topic", topic, "error", err)
	}
}
