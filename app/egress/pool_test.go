package egress

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool(t *testing.T) {
	pool, err := NewPool([]string{"http://a:1", "http://user:pw@b:2"})
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Len())

	_, err = NewPool([]string{"not a url"})
	assert.Error(t, err)
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "10.0.0.1:8080:alice:secret\n\nbroken-line\n10.0.0.2:9090:bob:hunter2\n")
	}))
	defer server.Close()

	pool, err := Download(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	require.Equal(t, 2, pool.Len())

	first := pool.proxies[0]
	assert.Equal(t, "http", first.Scheme)
	assert.Equal(t, "10.0.0.1:8080", first.Host)
	assert.Equal(t, "alice", first.User.Username())
	pw, _ := first.User.Password()
	assert.Equal(t, "secret", pw)
}

func TestDownloadEmptyList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	_, err := Download(context.Background(), server.Client(), server.URL)
	assert.Error(t, err)
}

func TestRotationAvoidsTriedUntilExhausted(t *testing.T) {
	pool, err := NewPool([]string{"http://a:1", "http://b:2", "http://c:3"})
	require.NoError(t, err)

	for range 20 {
		rotation := pool.Rotation()

		seen := make(map[string]bool)
		for range 3 {
			u := rotation.Next()
			require.NotNil(t, u)
			assert.False(t, seen[u.Host], "identity %s drawn twice before pool was exhausted", u.Host)
			seen[u.Host] = true
		}
		assert.Len(t, seen, 3)

		// Pool exhausted: the avoided set resets and reuse is allowed.
		assert.NotNil(t, rotation.Next())
		assert.Len(t, rotation.tried, 1)
	}
}

func TestRotationEmptyPool(t *testing.T) {
	var nilPool *Pool
	assert.Nil(t, nilPool.Rotation().Next())

	empty, err := NewPool(nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Rotation().Next())
}

func TestRotationsAreIndependent(t *testing.T) {
	pool, err := NewPool([]string{"http://only:1"})
	require.NoError(t, err)

	want := &url.URL{Scheme: "http", Host: "only:1"}
	assert.Equal(t, want.String(), pool.Rotation().Next().String())
	assert.Equal(t, want.String(), pool.Rotation().Next().String())
}
