package artifact_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richvergo/subtract-sub005/internal/artifact"
)

var png = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func TestBlobStore(t *testing.T) {
	ctx := context.Background()

	s, err := artifact.NewBlobStore(ctx, "mem://", "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	t.Run("Put returns key and Get reads it back", func(t *testing.T) {
		key, err := s.Put(ctx, "run-1", "Submit Form", png)
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(key, "runs/run-1/submit-form-"))
		assert.True(t, strings.HasSuffix(key, ".png"))

		got, err := s.Get(ctx, key)
		assert.NoError(t, err)
		assert.Equal(t, png, got)
	})

	t.Run("Put rejects empty data", func(t *testing.T) {
		_, err := s.Put(ctx, "run-1", "step", nil)
		assert.ErrorIs(t, err, artifact.ErrEmptyData)
	})

	t.Run("Get missing artifact", func(t *testing.T) {
		_, err := s.Get(ctx, "runs/run-1/missing.png")
		assert.ErrorIs(t, err, artifact.ErrNotFound)
	})

	t.Run("Get rejects keys outside the run prefix", func(t *testing.T) {
		_, err := s.Get(ctx, "runs/../secrets.png")
		assert.ErrorIs(t, err, artifact.ErrBadKey)

		_, err = s.Get(ctx, "other/file.png")
		assert.ErrorIs(t, err, artifact.ErrBadKey)
	})
}

func TestBlobStoreBaseURL(t *testing.T) {
	ctx := context.Background()

	s, err := artifact.NewBlobStore(ctx, "mem://", "https://cdn.example.com/")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	url, err := s.Put(ctx, "run-2", "login", png)
	assert.NoError(t, err)
	assert.True(t,
		strings.HasPrefix(url, "https://cdn.example.com/runs/run-2/login-"),
	)
}

func TestBlobStoreFileBucket(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := artifact.NewBlobStore(ctx, "file://"+dir, "")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	key, err := s.Put(ctx, "run-3", "extract", png)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	assert.NoError(t, err)
	assert.Equal(t, png, data)
}
