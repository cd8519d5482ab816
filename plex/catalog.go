package plex

import (
	"context"

	"github.com/garry/plexbot/library"
)

// The methods below let *Client serve as a library.Catalog.

func (c *Client) Artists(ctx context.Context) ([]library.Artist, error) {
	dirs, err := c.GetArtists(ctx)
	if err != nil {
		return nil, err
	}
	artists := make([]library.Artist, 0, len(dirs))
	for _, d := range dirs {
		artists = append(artists, library.Artist{ID: d.ID, Name: d.Title})
	}
	return artists, nil
}

func (c *Client) ArtistTracks(ctx context.Context, artistID string) ([]library.Track, error) {
	tracks, err := c.GetArtistTracks(ctx, artistID)
	if err != nil {
		return nil, err
	}
	return toTracks(tracks), nil
}

func (c *Client) Playlists(ctx context.Context) ([]library.Playlist, error) {
	playlists, err := c.GetPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]library.Playlist, 0, len(playlists))
	for _, p := range playlists {
		out = append(out, library.Playlist{ID: p.ID, Title: p.Title})
	}
	return out, nil
}

func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]library.Track, error) {
	tracks, err := c.GetPlaylistItems(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return toTracks(tracks), nil
}

func (c *Client) AddToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	return c.AddTracksToPlaylist(ctx, playlistID, trackIDs)
}

var _ library.Catalog = catalog{}

// catalog adapts CreatePlaylist, whose native form returns a *PlexPlaylist.
type catalog struct {
	*Client
}

// Catalog returns the client as a library.Catalog.
func (c *Client) Catalog() library.Catalog {
	return catalog{c}
}

func (c catalog) CreatePlaylist(ctx context.Context, title string, trackIDs []string) (library.Playlist, error) {
	created, err := c.Client.CreatePlaylist(ctx, title, trackIDs)
	if err != nil {
		return library.Playlist{}, err
	}
	return library.Playlist{ID: created.ID, Title: created.Title}, nil
}

func toTracks(tracks []PlexTrack) []library.Track {
	out := make([]library.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, library.Track{ID: t.ID, Title: t.Title, Artist: t.Artist, Album: t.Album})
	}
	return out
}
