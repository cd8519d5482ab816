package spotify

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/garry/plexbot/config"
	"github.com/garry/plexbot/library"
)

// pageSize is the largest page the playlist tracks endpoint serves.
const pageSize = 100

// Client wraps the Spotify API client
type Client struct {
	client *spotify.Client
}

// Song represents a track from a Spotify playlist
type Song struct {
	ID     string
	Name   string
	Artist string
	Album  string
}

// NewClient creates a new Spotify client using the client credentials flow.
// The token is fetched on first use and refreshed when it expires.
func NewClient(ctx context.Context, cfg *config.Config) *Client {
	creds := &clientcredentials.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	return &Client{client: spotify.New(creds.Client(ctx))}
}

// ParsePlaylistID extracts the playlist id from an open.spotify.com link.
func ParsePlaylistID(link string) string {
	segment := link
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	if i := strings.Index(segment, "?"); i >= 0 {
		segment = segment[:i]
	}
	return segment
}

// GetPlaylistName returns the display name of a playlist
func (c *Client) GetPlaylistName(ctx context.Context, playlistID string) (string, error) {
	playlist, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID), spotify.Fields("name"))
	if err != nil {
		return "", errors.Wrap(err, "playlist not found or not accessible")
	}
	return playlist.Name, nil
}

// GetPlaylistSongs fetches all songs from a Spotify playlist
func (c *Client) GetPlaylistSongs(ctx context.Context, playlistID string) ([]Song, error) {
	var songs []Song
	page := 1

	// Iterate through all tracks in the playlist
	for {
		playlistTracks, err := c.client.GetPlaylistTracks(ctx, spotify.ID(playlistID), spotify.Offset((page-1)*pageSize), spotify.Limit(pageSize))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get playlist tracks (page %d)", page)
		}

		for _, item := range playlistTracks.Tracks {
			if item.Track.Name == "" {
				continue
			}
			songs = append(songs, convertTrackToSong(item.Track))
		}

		if len(playlistTracks.Tracks) < pageSize {
			break
		}
		page++
	}

	return songs, nil
}

// GetCollection resolves a playlist link into a collection named after the playlist
func (c *Client) GetCollection(ctx context.Context, link string) (library.Collection, error) {
	playlistID := ParsePlaylistID(link)
	if playlistID == "" {
		return library.Collection{}, errors.Newf("no playlist id in %q", link)
	}

	name, err := c.GetPlaylistName(ctx, playlistID)
	if err != nil {
		return library.Collection{}, err
	}

	songs, err := c.GetPlaylistSongs(ctx, playlistID)
	if err != nil {
		return library.Collection{}, err
	}

	coll := library.Collection{Name: name}
	for _, s := range songs {
		coll.Songs = append(coll.Songs, library.WantedSong{Artist: s.Artist, Title: s.Name, Album: s.Album})
	}

	zerolog.Ctx(ctx).Info().Str("playlist", name).Int("songs", len(coll.Songs)).Msg("Fetched Spotify playlist")
	return coll, nil
}

// convertTrackToSong converts a Spotify track to our Song struct.
// Only the first listed artist is kept.
func convertTrackToSong(track spotify.FullTrack) Song {
	artist := ""
	if len(track.Artists) > 0 {
		artist = track.Artists[0].Name
	}

	return Song{
		ID:     string(track.ID),
		Name:   track.Name,
		Artist: artist,
		Album:  track.Album.Name,
	}
}
