// Package library reconciles wanted songs against the media catalog and keeps
// the resulting playlists in order.
package library

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrCatalog marks failures talking to the catalog, as opposed to empty results.
var ErrCatalog = errors.New("catalog unavailable")

// WantedSong is a song requested by a setlist or a streaming playlist.
type WantedSong struct {
	Artist string
	Title  string
	// Album is only known for streaming playlist entries.
	Album string
}

// Collection is an ordered list of wanted songs plus the playlist they should end up in.
type Collection struct {
	Name  string
	Songs []WantedSong
}

// Artist is an artist entry in the catalog.
type Artist struct {
	ID   string
	Name string
}

// Track is a read-only handle on a track already in the catalog.
type Track struct {
	ID     string
	Title  string
	Artist string
	Album  string
}

// Playlist is a catalog playlist.
type Playlist struct {
	ID    string
	Title string
}

// Match pairs a wanted song with the catalog track that satisfied it.
type Match struct {
	Wanted WantedSong
	Track  Track
}

// Result is the outcome of reconciling a collection.
// Matches follow collection order. Missing follows collection order too.
type Result struct {
	Matches []Match
	Missing []WantedSong
}

// Tracks returns the matched catalog tracks in collection order.
func (r Result) Tracks() []Track {
	tracks := make([]Track, 0, len(r.Matches))
	for _, m := range r.Matches {
		tracks = append(tracks, m.Track)
	}
	return tracks
}

// Catalog is the subset of the media server the reconciler and assembler need.
type Catalog interface {
	Artists(ctx context.Context) ([]Artist, error)
	ArtistTracks(ctx context.Context, artistID string) ([]Track, error)
	Playlists(ctx context.Context) ([]Playlist, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]Track, error)
	CreatePlaylist(ctx context.Context, title string, trackIDs []string) (Playlist, error)
	DeletePlaylist(ctx context.Context, playlistID string) error
	AddToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
}

func catalogError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrCatalog)
}
