package blobstore

import (
	"context"
	"io"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handsign/internal/models"
)

// newTestS3 connects to an S3-compatible endpoint (MinIO in CI) or skips.
func newTestS3(t *testing.T) *S3 {
	t.Helper()

	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}
	store, err := NewS3(context.Background(), models.S3Config{
		Bucket:          "handsign-test",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     os.Getenv("TEST_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("TEST_S3_SECRET_ACCESS_KEY"),
		UsePathStyle:    true,
		CreateBucket:    true,
	}, "saved_images")
	require.NoError(t, err)
	return store
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), models.S3Config{Region: "us-east-1"}, "saved_images")
	assert.Error(t, err)
}

func TestS3SaveOpenPut(t *testing.T) {
	store := newTestS3(t)
	ctx := context.Background()

	locator, err := store.Save(ctx, strings.NewReader("sign"), ".png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(locator, "saved_images/"))

	rc, err := store.Open(ctx, locator)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "sign", string(data))

	require.NoError(t, store.Put(ctx, "saved_images/thumbs/x.jpg", strings.NewReader("thumb")))

	_, err = store.Open(ctx, "saved_images/does-not-exist.png")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
