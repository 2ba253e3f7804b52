package store_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richvergo/subtract-sub005/internal/store"
)

type secretMap map[string][]byte

func (m secretMap) GetSecret(_ context.Context, ref string) ([]byte, error) {
	data, ok := m[ref]
	if !ok {
		return nil, store.ErrCredentialsNotFound
	}
	return data, nil
}

var testKey = bytes.Repeat([]byte{7}, 32)

func TestSealedCredentials(t *testing.T) {
	ctx := context.Background()
	secrets := secretMap{}

	creds, err := store.NewSealedCredentials(secrets, testKey)
	require.NoError(t, err)

	sealed, err := creds.Seal("acme", &store.Credentials{
		Username: "ada", Password: "s3cret",
	})
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "s3cret")
	secrets["acme"] = sealed

	got, err := creds.GetCredentials(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Username)
	assert.Equal(t, "s3cret", got.Password)

	t.Run("bound to reference", func(t *testing.T) {
		secrets["other"] = sealed
		_, err := creds.GetCredentials(ctx, "other")
		assert.ErrorIs(t, err, store.ErrUnseal)
	})

	t.Run("wrong key", func(t *testing.T) {
		wrong, err := store.NewSealedCredentials(
			secrets, bytes.Repeat([]byte{9}, 32),
		)
		require.NoError(t, err)
		_, err = wrong.GetCredentials(ctx, "acme")
		assert.ErrorIs(t, err, store.ErrUnseal)
	})

	t.Run("truncated", func(t *testing.T) {
		secrets["short"] = []byte{1, 2, 3}
		_, err := creds.GetCredentials(ctx, "short")
		assert.ErrorIs(t, err, store.ErrSealedTooShort)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := creds.GetCredentials(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrCredentialsNotFound)
	})
}

func TestSealedCredentialsBadKey(t *testing.T) {
	_, err := store.NewSealedCredentials(secretMap{}, []byte("short"))
	assert.Error(t, err)
}

func TestSealedCredentialsWithRedis(t *testing.T) {
	withRedisStore(t, func(s *store.RedisStore) {
		ctx := context.Background()
		creds, err := store.NewSealedCredentials(s, testKey)
		require.NoError(t, err)

		sealed, err := creds.Seal("portal", &store.Credentials{
			Username: "grace", Password: "hopper",
		})
		require.NoError(t, err)
		require.NoError(t, s.PutSecret(ctx, "portal", sealed))

		got, err := creds.GetCredentials(ctx, "portal")
		require.NoError(t, err)
		assert.Equal(t, "grace", got.Username)
	})
}
