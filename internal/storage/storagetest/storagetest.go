// Package storagetest holds the behavior every storage.Provider must satisfy.
package storagetest

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises newProvider against the shared provider contract.
// newProvider must return an empty provider on every call.
func Run(t *testing.T, newProvider func(t *testing.T) storage.Provider) {
	t.Helper()

	t.Run("match miss", func(t *testing.T) {
		part := open(t, newProvider(t), "static-v1")
		_, err := part.Match(context.Background(), "/missing")
		require.ErrorIs(t, err, storage.ErrEntryNotFound)
	})

	t.Run("put then match round trips", func(t *testing.T) {
		ctx := context.Background()
		part := open(t, newProvider(t), "static-v1")

		stamped := sample(http.StatusOK, "hello").Stamp(time.UnixMilli(1_700_000_000_000))
		require.NoError(t, part.Put(ctx, "/about.html", stamped))

		got, err := part.Match(ctx, "/about.html")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, got.StatusCode)
		assert.Equal(t, []byte("hello"), got.Body)
		assert.Equal(t, "text/html", got.Header.Get("Content-Type"))

		at, ok := got.CapturedAt()
		require.True(t, ok)
		assert.Equal(t, int64(1_700_000_000_000), at.UnixMilli())
	})

	t.Run("second put replaces first", func(t *testing.T) {
		ctx := context.Background()
		part := open(t, newProvider(t), "generic-v1")

		require.NoError(t, part.Put(ctx, "/api/leads", sample(http.StatusOK, "first")))
		require.NoError(t, part.Put(ctx, "/api/leads", sample(http.StatusOK, "second")))

		keys, err := part.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/api/leads"}, keys)

		got, err := part.Match(ctx, "/api/leads")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got.Body)
	})

	t.Run("keys are sorted", func(t *testing.T) {
		ctx := context.Background()
		part := open(t, newProvider(t), "static-v1")

		for _, k := range []string{"/z.js", "/a.css", "/index.html?b=2&a=1"} {
			require.NoError(t, part.Put(ctx, k, sample(http.StatusOK, k)))
		}

		keys, err := part.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/a.css", "/index.html?b=2&a=1", "/z.js"}, keys)
	})

	t.Run("delete entry", func(t *testing.T) {
		ctx := context.Background()
		part := open(t, newProvider(t), "static-v1")
		require.NoError(t, part.Put(ctx, "/a", sample(http.StatusOK, "a")))

		deleted, err := part.Delete(ctx, "/a")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = part.Delete(ctx, "/a")
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = part.Match(ctx, "/a")
		require.ErrorIs(t, err, storage.ErrEntryNotFound)
	})

	t.Run("names and delete partition", func(t *testing.T) {
		ctx := context.Background()
		p := newProvider(t)

		for _, name := range []string{"static-v0", "images-v1", "generic-v1"} {
			part := open(t, p, name)
			require.NoError(t, part.Put(ctx, "/x", sample(http.StatusOK, name)))
		}

		names, err := p.Names(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"static-v0", "images-v1", "generic-v1"}, names)

		deleted, err := p.Delete(ctx, "static-v0")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = p.Delete(ctx, "static-v0")
		require.NoError(t, err)
		assert.False(t, deleted)

		names, err = p.Names(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"images-v1", "generic-v1"}, names)

		reopened := open(t, p, "static-v0")
		_, err = reopened.Match(ctx, "/x")
		require.ErrorIs(t, err, storage.ErrEntryNotFound)
	})

	t.Run("lookup never creates a partition", func(t *testing.T) {
		ctx := context.Background()
		p := newProvider(t)

		_, err := p.Lookup(ctx, "static-v0")
		require.ErrorIs(t, err, storage.ErrPartitionNotFound)

		names, err := p.Names(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)

		require.NoError(t, open(t, p, "static-v1").Put(ctx, "/a", sample(http.StatusOK, "a")))
		part, err := p.Lookup(ctx, "static-v1")
		require.NoError(t, err)
		assert.Equal(t, "static-v1", part.Name())
		keys, err := part.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/a"}, keys)

		_, err = p.Delete(ctx, "static-v1")
		require.NoError(t, err)
		_, err = p.Lookup(ctx, "static-v1")
		require.ErrorIs(t, err, storage.ErrPartitionNotFound)
	})

	t.Run("partitions are disjoint", func(t *testing.T) {
		ctx := context.Background()
		p := newProvider(t)
		v1 := open(t, p, "static-v1")
		v2 := open(t, p, "static-v2")

		require.NoError(t, v1.Put(ctx, "/index.html", sample(http.StatusOK, "v1")))
		_, err := v2.Match(ctx, "/index.html")
		require.ErrorIs(t, err, storage.ErrEntryNotFound)
	})

	t.Run("stored copy is isolated from caller", func(t *testing.T) {
		ctx := context.Background()
		part := open(t, newProvider(t), "static-v1")

		resp := sample(http.StatusOK, "orig")
		require.NoError(t, part.Put(ctx, "/a", resp))
		resp.Body[0] = 'X'
		resp.Header.Set("Content-Type", "changed")

		got, err := part.Match(ctx, "/a")
		require.NoError(t, err)
		assert.Equal(t, []byte("orig"), got.Body)
		assert.Equal(t, "text/html", got.Header.Get("Content-Type"))
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := newProvider(t).Open(context.Background(), "../etc")
		require.ErrorIs(t, err, storage.ErrInvalidName)
	})

	t.Run("concurrent puts keep one entry", func(t *testing.T) {
		ctx := context.Background()
		part := open(t, newProvider(t), "images-v1")

		const writers = 8
		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, part.Put(ctx, "/logo.png", sample(http.StatusOK, string(rune('a'+i)))))
			}()
		}
		wg.Wait()

		keys, err := part.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)

		got, err := part.Match(ctx, "/logo.png")
		require.NoError(t, err)
		assert.Len(t, got.Body, 1)
	})
}

func open(t *testing.T, p storage.Provider, name string) storage.Partition {
	t.Helper()
	part, err := p.Open(context.Background(), name)
	require.NoError(t, err)
	require.Equal(t, name, part.Name())
	return part
}

func sample(status int, body string) *storage.Response {
	return &storage.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(body),
	}
}
