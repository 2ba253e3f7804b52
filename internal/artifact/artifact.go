// Package artifact stores failure screenshots in any gocloud.dev blob bucket
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/richvergo/subtract-sub005/pkg/api"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

type (
	// Store persists binary artifacts captured during a run and returns a
	// location that can be recorded on the step result
	Store interface {
		Put(
			ctx context.Context, runID api.RunID, stepID api.StepID,
			data []byte,
		) (string, error)
	}

	// Getter reads stored artifacts back by key
	Getter interface {
		Get(ctx context.Context, key string) ([]byte, error)
	}

	// BlobStore implements Store on top of gocloud.dev/blob, supporting
	// S3, GCS, Azure Blob Storage, local files, and memory
	BlobStore struct {
		bucket  *blob.Bucket
		baseURL string
		now     func() time.Time
	}
)

const (
	keyPrefix      = "runs/"
	pngExtension   = ".png"
	pngContentType = "image/png"
)

var (
	ErrNotFound  = errors.New("artifact not found")
	ErrEmptyData = errors.New("artifact data empty")
	ErrBadKey    = errors.New("invalid artifact key")
)

var (
	_ Store  = (*BlobStore)(nil)
	_ Getter = (*BlobStore)(nil)
)

// NewBlobStore opens the bucket at bucketURL. When baseURL is set, returned
// locations are baseURL joined with the object key; otherwise the bare key
// is returned
func NewBlobStore(
	ctx context.Context, bucketURL, baseURL string,
) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return &BlobStore{
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// Put writes a PNG screenshot for the given step of a run
func (s *BlobStore) Put(
	ctx context.Context, runID api.RunID, stepID api.StepID, data []byte,
) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyData
	}

	key := s.keyFor(runID, stepID)
	err := s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{
		ContentType: pngContentType,
	})
	if err != nil {
		return "", err
	}

	if s.baseURL == "" {
		return key, nil
	}
	return s.baseURL + "/" + key, nil
}

// Get reads an artifact back by its key
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %s", ErrBadKey, key)
	}
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

func (s *BlobStore) keyFor(runID api.RunID, stepID api.StepID) string {
	name := fmt.Sprintf("%s-%d%s",
		api.SanitizeID(stepID), s.now().UnixMilli(), pngExtension,
	)
	return keyPrefix + path.Join(string(api.SanitizeID(runID)), name)
}

func validKey(key string) bool {
	return strings.HasPrefix(key, keyPrefix) &&
		!strings.Contains(key, "..") &&
		path.Clean(key) == key
}
