package plex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garry/plexbot/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Plex: config.PlexConfig{
			URL:              server.URL + "/",
			Token:            "test_token",
			LibraryName:      "Music",
			LibrarySectionID: 3,
			ServerID:         "test_server_id",
		},
	}
	return NewClient(cfg)
}

func TestNewClient(t *testing.T) {
	cfg := &config.Config{
		Plex: config.PlexConfig{
			URL:              "http://test.plex.server:32400/",
			Token:            "test_token",
			LibrarySectionID: 1,
			ServerID:         "test_server_id",
			SkipTLSVerify:    true,
		},
	}

	client := NewClient(cfg)
	require.NotNil(t, client)
	assert.Equal(t, "http://test.plex.server:32400", client.baseURL)
	assert.Equal(t, "test_token", client.token)
	assert.Equal(t, 1, client.SectionID())
	assert.NotNil(t, client.httpClient.Transport)
}

func TestPrepareDiscoversServerAndSection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test_token", r.URL.Query().Get("X-Plex-Token"))
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`<MediaContainer friendlyName="nas" machineIdentifier="abc123" version="1.40"/>`))
		case "/library/sections":
			w.Write([]byte(`<MediaContainer>
				<Directory key="1" title="Movies" type="movie"/>
				<Directory key="5" title="Music" type="artist"/>
			</MediaContainer>`))
		default:
			http.NotFound(w, r)
		}
	})
	client.serverID = ""
	client.sectionID = 0

	require.NoError(t, client.Prepare(context.Background()))
	assert.Equal(t, "abc123", client.serverID)
	assert.Equal(t, 5, client.SectionID())
}

func TestResolveSectionIDNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<MediaContainer><Directory key="1" title="Movies"/></MediaContainer>`))
	})

	_, err := client.ResolveSectionID(context.Background(), "Music")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Music")
}

func TestArtistsAndTracks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/library/sections/3/all":
			assert.Equal(t, PlexArtistType, r.URL.Query().Get("type"))
			w.Write([]byte(`<MediaContainer size="2">
				<Directory ratingKey="100" title="Test Band" type="artist"/>
				<Directory ratingKey="200" title="Other" type="artist"/>
			</MediaContainer>`))
		case "/library/metadata/100/allLeaves":
			w.Write([]byte(`<MediaContainer size="2">
				<Track ratingKey="101" title="One" grandparentTitle="Test Band" parentTitle="First"/>
				<Track ratingKey="102" title="Three" grandparentTitle="Test Band" parentTitle="First"/>
			</MediaContainer>`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	artists, err := client.Artists(ctx)
	require.NoError(t, err)
	require.Len(t, artists, 2)
	assert.Equal(t, "100", artists[0].ID)
	assert.Equal(t, "Test Band", artists[0].Name)

	tracks, err := client.ArtistTracks(ctx, "100")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "101", tracks[0].ID)
	assert.Equal(t, "One", tracks[0].Title)
	assert.Equal(t, "Test Band", tracks[0].Artist)
	assert.Equal(t, "First", tracks[0].Album)
}

func TestErrorStatusIsNotEmptyResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	artists, err := client.Artists(context.Background())
	require.Error(t, err)
	assert.Nil(t, artists)
	assert.Contains(t, err.Error(), "status 401")
}

func TestUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := NewClient(&config.Config{Plex: config.PlexConfig{URL: server.URL, Token: "t", LibrarySectionID: 1}})
	_, err := client.GetPlaylists(context.Background())
	assert.Error(t, err)
}

func TestCreatePlaylist(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/playlists", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "audio", q.Get("type"))
		assert.Equal(t, "Test Band - 2024 - US", q.Get("title"))
		assert.Equal(t, "0", q.Get("smart"))
		assert.Equal(t, "server://test_server_id/com.plexapp.plugins.library/library/metadata/101,102", q.Get("uri"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"MediaContainer":{"size":1,"Metadata":[{"ratingKey":"900","title":"Test Band - 2024 - US","leafCount":2}]}}`))
	})

	playlist, err := client.Catalog().CreatePlaylist(context.Background(), "Test Band - 2024 - US", []string{"101", "102"})
	require.NoError(t, err)
	assert.Equal(t, "900", playlist.ID)
	assert.Equal(t, "Test Band - 2024 - US", playlist.Title)
}

func TestCreatePlaylistRequiresTracks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.CreatePlaylist(context.Background(), "Empty", nil)
	assert.Error(t, err)
}

func TestPlaylistLifecycle(t *testing.T) {
	var deleted, added []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/playlists":
			w.Write([]byte(`<MediaContainer><Playlist ratingKey="900" title="Mix" leafCount="1"/></MediaContainer>`))
		case r.Method == http.MethodGet && r.URL.Path == "/playlists/900/items":
			w.Write([]byte(`<MediaContainer><Track ratingKey="101" title="One" grandparentTitle="Test Band"/></MediaContainer>`))
		case r.Method == http.MethodPut && r.URL.Path == "/playlists/900/items":
			added = append(added, r.URL.Query().Get("uri"))
			w.Write([]byte(`<MediaContainer leafCountAdded="1"/>`))
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/playlists/"):
			deleted = append(deleted, strings.TrimPrefix(r.URL.Path, "/playlists/"))
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	playlists, err := client.Playlists(ctx)
	require.NoError(t, err)
	require.Len(t, playlists, 1)
	assert.Equal(t, "Mix", playlists[0].Title)

	items, err := client.PlaylistTracks(ctx, "900")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "101", items[0].ID)

	require.NoError(t, client.AddToPlaylist(ctx, "900", []string{"102"}))
	assert.Equal(t, []string{"server://test_server_id/com.plexapp.plugins.library/library/metadata/102"}, added)

	require.NoError(t, client.AddToPlaylist(ctx, "900", nil))
	assert.Len(t, added, 1)

	require.NoError(t, client.DeletePlaylist(ctx, "900"))
	assert.Equal(t, []string{"900"}, deleted)
}

func TestAddTracksNotAdded(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<MediaContainer leafCountAdded="0"/>`))
	})

	err := client.AddTracksToPlaylist(context.Background(), "900", []string{"102"})
	assert.Error(t, err)
}

func TestRefreshLibrary(t *testing.T) {
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
	})

	require.NoError(t, client.RefreshLibrary(context.Background()))
	assert.Equal(t, "/library/sections/3/refresh", path)
}
