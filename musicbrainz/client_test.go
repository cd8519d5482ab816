package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchResult = `<?xml version="1.0" encoding="UTF-8"?>
<metadata xmlns="http://musicbrainz.org/ns/mmd-2.0#">
  <recording-list count="2" offset="0">
    <recording id="aaa">
      <title>Karma Police</title>
      <release-list>
        <release id="r1"><title>OK Computer</title></release>
        <release id="r2"><title>Karma Police (single)</title></release>
      </release-list>
    </recording>
    <recording id="bbb"><title>Karma Police (live)</title></recording>
  </recording-list>
</metadata>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient()
	client.baseURL = server.URL
	return client
}

func TestNewClient(t *testing.T) {
	client := NewClient()
	require.NotNil(t, client)
	assert.NotNil(t, client.httpClient)
	assert.NotEmpty(t, client.userAgent)
	assert.Equal(t, DefaultBaseURL, client.baseURL)
}

func TestAlbumFor(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recording/", r.URL.Path)
		assert.Equal(t, `artist:"Radiohead" AND recording:"Karma Police"`, r.URL.Query().Get("query"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(searchResult))
	})

	album, err := client.AlbumFor(context.Background(), "Radiohead", "Karma Police")
	require.NoError(t, err)
	assert.Equal(t, "OK Computer", album)
}

func TestAlbumForEscapesQuotes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `artist:"The \"Band\"" AND recording:"Song"`, r.URL.Query().Get("query"))
		w.Write([]byte(`<metadata><recording-list count="0"/></metadata>`))
	})

	album, err := client.AlbumFor(context.Background(), `The "Band"`, "Song")
	require.NoError(t, err)
	assert.Empty(t, album)
}

func TestAlbumForRequiresArtistAndTitle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.AlbumFor(context.Background(), "", "Song")
	assert.Error(t, err)
	_, err = client.AlbumFor(context.Background(), "Artist", "")
	assert.Error(t, err)
}

func TestAlbumForServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusServiceUnavailable)
	})

	_, err := client.AlbumFor(context.Background(), "Radiohead", "Karma Police")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
