package library

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/garry/plexbot/matcher"
)

// ArtistTracks is one catalog artist accepted for a name, with its tracks in catalog order.
type ArtistTracks struct {
	Artist Artist
	Tracks []Track
}

// Index looks up an artist's tracks in the catalog.
type Index struct {
	catalog Catalog
	matcher matcher.Matcher
}

// NewIndex creates an index over catalog using m for artist name comparison.
func NewIndex(catalog Catalog, m matcher.Matcher) *Index {
	return &Index{catalog: catalog, matcher: m}
}

// ForArtist returns every catalog artist whose name matches name, each with
// all of its tracks. No match yields a nil slice and a nil error; catalog
// failures are marked with ErrCatalog.
func (ix *Index) ForArtist(ctx context.Context, name string) ([]ArtistTracks, error) {
	artists, err := ix.catalog.Artists(ctx)
	if err != nil {
		return nil, catalogError(err, "failed to list artists")
	}
	return ix.forArtistIn(ctx, artists, name)
}

func (ix *Index) forArtistIn(ctx context.Context, artists []Artist, name string) ([]ArtistTracks, error) {
	log := zerolog.Ctx(ctx)

	var result []ArtistTracks
	for _, artist := range artists {
		score := ix.matcher.Score(name, artist.Name)
		if !matcher.Accept(score) {
			continue
		}
		log.Debug().Str("artist", name).Str("catalog_artist", artist.Name).Float64("score", score).Msg("Artist matched")

		tracks, err := ix.catalog.ArtistTracks(ctx, artist.ID)
		if err != nil {
			return nil, catalogError(err, "failed to list tracks for "+artist.Name)
		}
		result = append(result, ArtistTracks{Artist: artist, Tracks: tracks})
	}

	if len(result) == 0 {
		log.Info().Str("artist", name).Msg("Artist not found in library")
	}
	return result, nil
}

// Candidates concatenates the tracks of all matched artists.
func Candidates(groups []ArtistTracks) []Track {
	var tracks []Track
	for _, g := range groups {
		tracks = append(tracks, g.Tracks...)
	}
	return tracks
}
