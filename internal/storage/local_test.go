package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBucket(t *testing.T) *LocalBucket {
	t.Helper()
	b, err := NewLocalBucket(t.TempDir())
	require.NoError(t, err)
	return b
}

func TestLocalBucketPutGet(t *testing.T) {
	ctx := context.Background()
	b := newTestBucket(t)

	key := PMTilesKey("Labc123")
	require.NoError(t, b.Put(ctx, key, strings.NewReader("archive-bytes"), "application/octet-stream"))

	rc, info, err := b.Get(ctx, key, 0, -1)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
	assert.EqualValues(t, 13, info.Size)
}

func TestLocalBucketRange(t *testing.T) {
	ctx := context.Background()
	b := newTestBucket(t)

	key := COGKey("Labc123")
	require.NoError(t, b.Put(ctx, key, strings.NewReader("0123456789"), "image/tiff"))

	rc, _, err := b.Get(ctx, key, 2, 4)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(data))
}

func TestLocalBucketHeadMissing(t *testing.T) {
	b := newTestBucket(t)
	_, err := b.Head(context.Background(), "uploads/missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBucketDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newTestBucket(t)

	key := UploadKey("Labc123", ".csv")
	require.NoError(t, b.Put(ctx, key, strings.NewReader("x,y\n"), "text/csv"))
	require.NoError(t, b.Delete(ctx, key))
	require.NoError(t, b.Delete(ctx, key))

	_, err := b.Head(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateKeyRejectsTraversal(t *testing.T) {
	b := newTestBucket(t)
	err := b.Put(context.Background(), "../outside", strings.NewReader("x"), "")
	require.Error(t, err)

	_, _, err = b.Get(context.Background(), "/absolute", 0, -1)
	require.Error(t, err)
}

func TestArtifactKeys(t *testing.T) {
	assert.Equal(t, "uploads/Labc.zip", UploadKey("Labc", ".zip"))
	assert.Equal(t, "pmtiles/layer/Labc.pmtiles", PMTilesKey("Labc"))
	assert.Equal(t, "cog/layer/Labc.cog.tif", COGKey("Labc"))
	assert.Equal(t, "pointcloud/layer/Labc.laz", PointCloudKey("Labc"))
	assert.Equal(t, "sources/layer/Labc.fgb", SourceKey("Labc"))
}
