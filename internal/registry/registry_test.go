package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexJSON = `[
	{"id": "ge-8.26", "asset_url": "https://cdn.example.com/ge-8.26.tar.gz", "digest": "sha256:abc123", "size": 123},
	{"id": "ge-8.30", "asset_url": "https://cdn.example.com/ge-8.30.tar.gz", "size": 456}
]`

func TestListVersions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(indexJSON))
	}))
	defer srv.Close()

	releases, err := NewHTTPClient(srv.URL).ListVersions(context.Background())
	require.NoError(t, err)
	require.Len(t, releases, 2)

	assert.Equal(t, "ge-8.26", releases[0].ID)
	assert.Equal(t, "sha256:abc123", releases[0].Digest)
	assert.Equal(t, int64(456), releases[1].Size)
	assert.Empty(t, releases[1].Digest)
}

func TestFind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(indexJSON))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)

	rel, err := client.Find(context.Background(), "ge-8.30")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/ge-8.30.tar.gz", rel.AssetURL)

	_, err = client.Find(context.Background(), "ge-99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListVersionsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).ListVersions(context.Background())
	assert.Error(t, err)
}

func TestListVersionsMalformedIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).ListVersions(context.Background())
	assert.Error(t, err)
}
