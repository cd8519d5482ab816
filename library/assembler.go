package library

import (
	"context"

	"github.com/rs/zerolog"
)

// Assembler writes reconciled tracks into named catalog playlists.
//
// Upsert replaces a playlist wholesale and is used when a link is first
// processed. Append only adds tracks the playlist does not hold yet and is
// used for the top-up after downloads.
type Assembler struct {
	catalog Catalog
}

// NewAssembler creates an assembler over catalog.
func NewAssembler(catalog Catalog) *Assembler {
	return &Assembler{catalog: catalog}
}

// Upsert deletes every playlist titled exactly name and creates a fresh one
// holding tracks in order. With no tracks the old playlist is still removed
// and nothing is created.
func (a *Assembler) Upsert(ctx context.Context, name string, tracks []Track) (*Playlist, error) {
	log := zerolog.Ctx(ctx)

	existing, err := a.find(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if err := a.catalog.DeletePlaylist(ctx, p.ID); err != nil {
			return nil, catalogError(err, "failed to delete playlist "+p.Title)
		}
		log.Info().Str("playlist", p.Title).Str("playlist_id", p.ID).Msg("Deleted existing playlist")
	}

	ids := uniqueIDs(tracks, nil)
	if len(ids) == 0 {
		log.Info().Str("playlist", name).Msg("No tracks matched, playlist not created")
		return nil, nil
	}

	created, err := a.catalog.CreatePlaylist(ctx, name, ids)
	if err != nil {
		return nil, catalogError(err, "failed to create playlist "+name)
	}
	log.Info().Str("playlist", created.Title).Str("playlist_id", created.ID).Int("tracks", len(ids)).Msg("Created playlist")
	return &created, nil
}

// Append adds the tracks missing from the playlist titled name, keeping
// their order. The playlist is created when it does not exist.
func (a *Assembler) Append(ctx context.Context, name string, tracks []Track) (*Playlist, error) {
	log := zerolog.Ctx(ctx)

	existing, err := a.find(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		ids := uniqueIDs(tracks, nil)
		if len(ids) == 0 {
			return nil, nil
		}
		created, err := a.catalog.CreatePlaylist(ctx, name, ids)
		if err != nil {
			return nil, catalogError(err, "failed to create playlist "+name)
		}
		log.Info().Str("playlist", created.Title).Str("playlist_id", created.ID).Int("tracks", len(ids)).Msg("Created playlist")
		return &created, nil
	}

	playlist := existing[0]
	items, err := a.catalog.PlaylistTracks(ctx, playlist.ID)
	if err != nil {
		return nil, catalogError(err, "failed to list playlist "+playlist.Title)
	}

	present := make(map[string]struct{}, len(items))
	for _, item := range items {
		present[item.ID] = struct{}{}
	}

	ids := uniqueIDs(tracks, present)
	if len(ids) == 0 {
		log.Debug().Str("playlist", playlist.Title).Msg("Nothing to append")
		return &playlist, nil
	}
	if err := a.catalog.AddToPlaylist(ctx, playlist.ID, ids); err != nil {
		return nil, catalogError(err, "failed to add tracks to playlist "+playlist.Title)
	}
	log.Info().Str("playlist", playlist.Title).Str("playlist_id", playlist.ID).Int("tracks", len(ids)).Msg("Appended to playlist")
	return &playlist, nil
}

func (a *Assembler) find(ctx context.Context, name string) ([]Playlist, error) {
	playlists, err := a.catalog.Playlists(ctx)
	if err != nil {
		return nil, catalogError(err, "failed to list playlists")
	}
	var found []Playlist
	for _, p := range playlists {
		if p.Title == name {
			found = append(found, p)
		}
	}
	return found, nil
}

// uniqueIDs returns track ids in order, skipping repeats and anything in skip.
func uniqueIDs(tracks []Track, skip map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(tracks))
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if _, ok := skip[t.ID]; ok {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		ids = append(ids, t.ID)
	}
	return ids
}
