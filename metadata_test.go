package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://open.spotify.com/track/abc123", r.URL.Query().Get("url"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Take On Me","author_name":"a-ha"}`))
	}))
	defer srv.Close()

	m := newMetadataClient(time.Second)
	m.spotifyOembed = srv.URL

	meta, err := m.Lookup("https://open.spotify.com/track/abc123")
	require.NoError(t, err)
	assert.Equal(t, "Take On Me", meta.Title)
	assert.Equal(t, "a-ha", meta.AuthorName)
}

func TestMetadataPlatformRouting(t *testing.T) {
	m := newMetadataClient(time.Second)

	endpoint, err := m.oembedURL("https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Contains(t, endpoint, m.youtubeOembed)
	assert.Contains(t, endpoint, "format=json")

	endpoint, err = m.oembedURL("https://open.spotify.com/track/abc")
	require.NoError(t, err)
	assert.Contains(t, endpoint, m.spotifyOembed)
}

func TestMetadataUnsupportedURL(t *testing.T) {
	m := newMetadataClient(time.Second)

	_, err := m.Lookup("https://example.com/song.mp3")
	assert.ErrorIs(t, err, errUnsupportedURL)
}

func TestMetadataUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := newMetadataClient(time.Second)
	m.youtubeOembed = srv.URL

	_, err := m.Lookup("https://youtube.com/watch?v=missing")
	assert.Error(t, err)
}
