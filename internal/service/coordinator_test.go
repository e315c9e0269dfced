package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"handsign/internal/blobstore"
	"handsign/internal/logging"
	"handsign/internal/metrics"
	"handsign/internal/models"
	"handsign/internal/publisher"
	"handsign/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sent struct {
	topic   string
	payload string
	opts    publisher.Options
}

type fakePublisher struct {
	mu   sync.Mutex
	fail map[string]error
	sent []sent
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, payload []byte, opts publisher.Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sent{topic: topic, payload: string(payload), opts: opts})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return p.fail[topic]
}

type failingBlobs struct{ calls int }

func (f *failingBlobs) Save(context.Context, io.Reader, string) (string, error) {
	f.calls++
	return "", errors.New("disk full")
}

type failingRepo struct{ calls int }

func (f *failingRepo) Insert(context.Context, string, string) (models.TranslationRecord, error) {
	f.calls++
	return models.TranslationRecord{}, errors.New("connection refused")
}

var testOpts = Options{
	TextTopic:      "hand_sign/translation",
	JSONTopic:      "hand_sign/translation/json",
	PublishTimeout: time.Second,
}

type fixture struct {
	root    string
	blobs   *blobstore.Local
	repo    *storage.Memory
	pub     *fakePublisher
	metrics *metrics.Metrics
	coord   *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		root:    t.TempDir(),
		repo:    storage.NewMemory(),
		pub:     &fakePublisher{},
		metrics: metrics.NewUnregistered(),
	}
	f.blobs = blobstore.NewLocal(f.root, "saved_images")
	f.coord = NewCoordinator(f.blobs, f.repo, f.pub, testOpts, logging.Discard(), f.metrics)
	return f
}

func submission(body, name, text string) Submission {
	return Submission{File: strings.NewReader(body), Filename: name, Size: int64(len(body)), PredictedText: text}
}

func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSubmitStoresRecordsAndPublishes(t *testing.T) {
	f := newFixture(t)
	body := "0123456789abcdefg" // 17 bytes

	ev, err := f.coord.Submit(context.Background(), submission(body, "img.png", "HELLO"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, "HELLO", ev.PredictedText)
	assert.True(t, strings.HasPrefix(ev.ImagePath, "saved_images/"))
	assert.True(t, strings.HasSuffix(ev.ImagePath, ".png"))
	_, err = time.Parse(time.RFC3339, ev.CreatedAt)
	assert.NoError(t, err)

	// exactly one blob, holding the uploaded bytes
	files := f.files(t)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Base(ev.ImagePath), files[0])
	data, err := os.ReadFile(filepath.Join(f.root, files[0]))
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	rows, err := f.repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ev.ID, rows[0].ID)
	assert.Equal(t, ev.ImagePath, rows[0].ImagePath)
	assert.Equal(t, models.FormatEventTime(rows[0].CreatedAt), ev.CreatedAt)

	require.Len(t, f.pub.sent, 2)
	retained := publisher.Options{QoS: publisher.AtLeastOnce, Retain: true}
	assert.Equal(t, sent{topic: "hand_sign/translation", payload: "HELLO", opts: retained}, f.pub.sent[0])
	assert.Equal(t, "hand_sign/translation/json", f.pub.sent[1].topic)
	assert.Equal(t, retained, f.pub.sent[1].opts)

	var published models.TranslationEvent
	require.NoError(t, json.Unmarshal([]byte(f.pub.sent[1].payload), &published))
	assert.Equal(t, ev, published)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestSubmitDefaultsLabel(t *testing.T) {
	f := newFixture(t)

	ev, err := f.coord.Submit(context.Background(), submission("img", "img.jpg", ""))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPredictedText, ev.PredictedText)

	rows, err := f.repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No Data", rows[0].PredictedText)
	assert.Equal(t, "No Data", f.pub.sent[0].payload)
}

func TestSubmitMissingPayloadTouchesNothing(t *testing.T) {
	for name, sub := range map[string]Submission{
		"no file":    {PredictedText: "HELLO"},
		"empty file": submission("", "img.png", "HELLO"),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.coord.Submit(context.Background(), sub)
			assert.ErrorIs(t, err, models.ErrMissingPayload)

			assert.Empty(t, f.files(t))
			rows, err := f.repo.ListAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, rows)
			assert.Empty(t, f.pub.sent)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues(metrics.OutcomeMissingPayload)))
		})
	}
}

func TestSubmitCanceledBeforeStore(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.coord.Submit(ctx, submission("img", "img.png", "HELLO"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.files(t))
	assert.Empty(t, f.pub.sent)
}

func TestSubmitStorageFailureSkipsInsert(t *testing.T) {
	blobs := &failingBlobs{}
	repo := &failingRepo{}
	pub := &fakePublisher{}
	m := metrics.NewUnregistered()
	coord := NewCoordinator(blobs, repo, pub, testOpts, logging.Discard(), m)

	_, err := coord.Submit(context.Background(), submission("img", "img.png", "HELLO"))
	assert.ErrorIs(t, err, models.ErrStorageWrite)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, blobs.calls)
	assert.Equal(t, 0, repo.calls)
	assert.Empty(t, pub.sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues(metrics.OutcomeStorageError)))
}

func TestSubmitPersistenceFailureLeavesBlob(t *testing.T) {
	root := t.TempDir()
	repo := &failingRepo{}
	pub := &fakePublisher{}
	coord := NewCoordinator(blobstore.NewLocal(root, "saved_images"), repo, pub, testOpts, logging.Discard(), metrics.NewUnregistered())

	_, err := coord.Submit(context.Background(), submission("img", "img.png", "HELLO"))
	assert.ErrorIs(t, err, models.ErrPersistence)
	assert.Equal(t, 1, repo.calls)
	assert.Empty(t, pub.sent, "nothing is announced for an unrecorded submission")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "orphaned blob stays in place")
}

func TestSubmitPublishFailuresAreNotFatal(t *testing.T) {
	f := newFixture(t)
	f.pub.fail = map[string]error{
		"hand_sign/translation":      models.ErrDelivery,
		"hand_sign/translation/json": models.ErrDelivery,
	}

	ev, err := f.coord.Submit(context.Background(), submission("img", "img.png", "HELLO"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.ID)

	assert.Len(t, f.pub.sent, 2, "second publish is attempted after the first fails")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PublishFailures.WithLabelValues("hand_sign/translation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PublishFailures.WithLabelValues("hand_sign/translation/json")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestSubmitConcurrentSubmissionsGetDistinctIDs(t *testing.T) {
	f := newFixture(t)

	const n = 32
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, err := f.coord.Submit(context.Background(), submission("img", "img.png", "HELLO"))
			assert.NoError(t, err)
			ids <- ev.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Len(t, f.files(t), n)
}

func TestHistoryListAll(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{"A", "B", "C"} {
		_, err := f.coord.Submit(context.Background(), submission("img", "img.png", text))
		require.NoError(t, err)
	}

	h := NewHistory(f.repo)
	first, err := h.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, int64(3), first[0].ID)
	assert.Equal(t, int64(1), first[2].ID)

	second, err := h.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHistoryPropagatesPersistenceError(t *testing.T) {
	h := NewHistory(storage.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.ListAll(ctx)
	assert.ErrorIs(t, err, models.ErrPersistence)
}
