package redisstore_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage/redisstore"
	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage/storagetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestProvider(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Provider {
		_, client := newClient(t)
		return redisstore.New(client, "")
	})
}

func TestProvider_KeyLayout(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	p := redisstore.New(client, "rc")

	part, err := p.Open(ctx, "static-v1")
	require.NoError(t, err)
	require.NoError(t, part.Put(ctx, "/index.html", &storage.Response{StatusCode: http.StatusOK, Body: []byte("x")}))

	members, err := mr.Members("rc:partitions")
	require.NoError(t, err)
	assert.Equal(t, []string{"static-v1"}, members)
	fields, err := mr.HKeys("rc:partition:static-v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/index.html"}, fields)

	_, err = p.Delete(ctx, "static-v1")
	require.NoError(t, err)
	assert.False(t, mr.Exists("rc:partition:static-v1"))
}

func TestProvider_RedisDown(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	p := redisstore.New(client, "")

	part, err := p.Open(ctx, "static-v1")
	require.NoError(t, err)
	mr.Close()

	_, err = part.Match(ctx, "/a")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrEntryNotFound)
}
