// Package librarytest provides an in-memory catalog for tests.
package librarytest

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/garry/plexbot/library"
)

// Catalog is an in-memory library.Catalog. Setting Err makes every call fail.
type Catalog struct {
	mu        sync.Mutex
	artists   []library.Artist
	tracks    map[string][]library.Track
	playlists []library.Playlist
	items     map[string][]string
	nextID    int

	Err error
	// Calls records method names in call order.
	Calls []string
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		tracks: make(map[string][]library.Track),
		items:  make(map[string][]string),
	}
}

// AddArtist registers an artist with tracks titled titles and returns the tracks.
func (c *Catalog) AddArtist(name string, titles ...string) []library.Track {
	c.mu.Lock()
	defer c.mu.Unlock()

	artist := library.Artist{ID: c.id(), Name: name}
	c.artists = append(c.artists, artist)
	for _, title := range titles {
		c.tracks[artist.ID] = append(c.tracks[artist.ID], library.Track{ID: c.id(), Title: title, Artist: name})
	}
	return c.tracks[artist.ID]
}

// AddTrack adds one track to the first artist called name, creating the artist if needed.
func (c *Catalog) AddTrack(name, title string) library.Track {
	c.mu.Lock()
	for _, a := range c.artists {
		if a.Name == name {
			track := library.Track{ID: c.id(), Title: title, Artist: name}
			c.tracks[a.ID] = append(c.tracks[a.ID], track)
			c.mu.Unlock()
			return track
		}
	}
	c.mu.Unlock()
	return c.AddArtist(name, title)[0]
}

// PlaylistsNamed returns the playlists titled name.
func (c *Catalog) PlaylistsNamed(name string) []library.Playlist {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []library.Playlist
	for _, p := range c.playlists {
		if p.Title == name {
			out = append(out, p)
		}
	}
	return out
}

// Items returns the track titles of a playlist in order.
func (c *Catalog) Items(playlistID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var titles []string
	for _, id := range c.items[playlistID] {
		if t, ok := c.trackByID(id); ok {
			titles = append(titles, t.Title)
		}
	}
	return titles
}

func (c *Catalog) Artists(ctx context.Context) ([]library.Artist, error) {
	if err := c.record("Artists"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]library.Artist(nil), c.artists...), nil
}

func (c *Catalog) ArtistTracks(ctx context.Context, artistID string) ([]library.Track, error) {
	if err := c.record("ArtistTracks"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]library.Track(nil), c.tracks[artistID]...), nil
}

func (c *Catalog) Playlists(ctx context.Context) ([]library.Playlist, error) {
	if err := c.record("Playlists"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]library.Playlist(nil), c.playlists...), nil
}

func (c *Catalog) PlaylistTracks(ctx context.Context, playlistID string) ([]library.Track, error) {
	if err := c.record("PlaylistTracks"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []library.Track
	for _, id := range c.items[playlistID] {
		if t, ok := c.trackByID(id); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Catalog) CreatePlaylist(ctx context.Context, title string, trackIDs []string) (library.Playlist, error) {
	if err := c.record("CreatePlaylist"); err != nil {
		return library.Playlist{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := library.Playlist{ID: c.id(), Title: title}
	c.playlists = append(c.playlists, p)
	c.items[p.ID] = append([]string(nil), trackIDs...)
	return p, nil
}

func (c *Catalog) DeletePlaylist(ctx context.Context, playlistID string) error {
	if err := c.record("DeletePlaylist"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.playlists {
		if p.ID == playlistID {
			c.playlists = append(c.playlists[:i], c.playlists[i+1:]...)
			delete(c.items, playlistID)
			return nil
		}
	}
	return errors.Newf("playlist %s not found", playlistID)
}

func (c *Catalog) AddToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if err := c.record("AddToPlaylist"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[playlistID]; !ok {
		return errors.Newf("playlist %s not found", playlistID)
	}
	c.items[playlistID] = append(c.items[playlistID], trackIDs...)
	return nil
}

func (c *Catalog) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, call)
	return c.Err
}

func (c *Catalog) trackByID(id string) (library.Track, bool) {
	for _, tracks := range c.tracks {
		for _, t := range tracks {
			if t.ID == id {
				return t, true
			}
		}
	}
	return library.Track{}, false
}

func (c *Catalog) id() string {
	c.nextID++
	return strconv.Itoa(c.nextID)
}
