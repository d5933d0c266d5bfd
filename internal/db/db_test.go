package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseBackend runs the same contract checks against every backend.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "collection_posts", []byte(`[{"id":"p1"}]`)))
	require.NoError(t, b.Set(ctx, "collection_votes", []byte(`[]`)))
	require.NoError(t, b.Set(ctx, "anonId", []byte(`"anon-42"`)))
	require.NoError(t, b.Set(ctx, "collection_a_b", []byte(`[]`)))

	v, ok, err := b.Get(ctx, "collection_posts")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"p1"}]`, string(v))

	// overwrite
	require.NoError(t, b.Set(ctx, "collection_posts", []byte(`[]`)))
	v, _, err = b.Get(ctx, "collection_posts")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(v))

	require.NoError(t, b.Delete(ctx, "anonId"))
	_, ok, err = b.Get(ctx, "anonId")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemory(0))
}

func TestMemoryBackend_Quota(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)

	require.NoError(t, m.Set(ctx, "k", []byte("12345")))
	err := m.Set(ctx, "j", []byte("1234567"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// replacing a value only counts the difference
	require.NoError(t, m.Set(ctx, "k", []byte("1234567890")))
	v, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "1234567890", string(v))
}

func TestGormBackend_SQLite(t *testing.T) {
	b, err := Open("sqlite://" + filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	defer b.Close()
	exerciseBackend(t, b)
}

func TestBoltBackend(t *testing.T) {
	b, err := Open("bolt://" + filepath.Join(t.TempDir(), "agent.bolt"))
	require.NoError(t, err)
	defer b.Close()
	exerciseBackend(t, b)
}

func TestRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	b := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer b.Close()
	exerciseBackend(t, b)

	assert.True(t, mr.Exists("agent:collection_posts"), "keys are namespaced")
}

func TestOpenRedis_URL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	b, err := Open("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Set(context.Background(), "anonId", []byte(`"anon-1"`)))
	got, err := mr.Get("agent:anonId")
	require.NoError(t, err)
	assert.Equal(t, `"anon-1"`, got)
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open("mysql://nope")
	assert.Error(t, err)
}
