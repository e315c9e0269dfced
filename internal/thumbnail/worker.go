// Package thumbnail renders small previews of stored sign images. It consumes
// the Kafka mirror of the JSON translation topic, so it runs only when Kafka
// is enabled.
package thumbnail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/segmentio/kafka-go"

	"handsign/internal/blobstore"
	"handsign/internal/metrics"
	"handsign/internal/models"
	"handsign/internal/publisher"
)

const (
	jpegQuality  = 85
	readBackoff  = time.Second
	thumbnailDir = "thumbs"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Worker struct {
	reader  messageReader
	store   blobstore.Store
	size    int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewWorker joins the consumer group for the Kafka mirror of topic.
func NewWorker(cfg models.KafkaConfig, topic string, size int, store blobstore.Store, logger *slog.Logger, m *metrics.Metrics) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   publisher.KafkaTopic(topic),
		GroupID: cfg.GroupID,
	})
	return &Worker{
		reader:  reader,
		store:   store,
		size:    size,
		logger:  logger.With("component", "thumbnail"),
		metrics: m,
	}
}

// Locator is where the thumbnail for the blob at locator is kept.
func Locator(locator string) string {
	dir, file := path.Split(locator)
	name := strings.TrimSuffix(file, path.Ext(file))
	return path.Join(dir, thumbnailDir, name+".jpg")
}

// Run consumes events until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()

	for {
		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("reading message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readBackoff):
			}
			continue
		}

		if err := w.Process(ctx, msg.Value); err != nil {
			w.metrics.ThumbnailsFailed.Inc()
			w.logger.Error("processing image", "offset", msg.Offset, "error", err)
			continue
		}
		w.metrics.ThumbnailsDone.Inc()
	}
}

// Process renders the thumbnail for one serialized TranslationEvent.
func (w *Worker) Process(ctx context.Context, payload []byte) error {
	const op = "thumbnail.Process"

	var ev models.TranslationEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ev.ImagePath == "" {
		return fmt.Errorf("%s: event %d has no image path", op, ev.ID)
	}

	src, err := w.store.Open(ctx, ev.ImagePath)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	src.Close()
	if err != nil {
		return fmt.Errorf("%s: decode %s: %w", op, ev.ImagePath, err)
	}

	thumb := imaging.Thumbnail(img, w.size, w.size, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	dst := Locator(ev.ImagePath)
	if err := w.store.Put(ctx, dst, &buf); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.logger.Debug("thumbnail written", "id", ev.ID, "locator", dst)
	return nil
}
