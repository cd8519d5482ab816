package library

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/garry/plexbot/matcher"
)

// Reconcile walks wanted in order and pairs each title with the first
// candidate whose title matches. A candidate is taken out of the pool once
// matched, so one catalog track never fills two wanted slots.
//
// matched and wantedMatched are parallel and follow wanted order.
func Reconcile(m matcher.Matcher, wanted []string, candidates []Track) (matched []Track, wantedMatched []string) {
	for i, idx := range assign(m, wanted, candidates) {
		if idx < 0 {
			continue
		}
		matched = append(matched, candidates[idx])
		wantedMatched = append(wantedMatched, wanted[i])
	}
	return matched, wantedMatched
}

// Missing returns the wanted titles absent from wantedMatched by exact string
// comparison, in wanted order and without repeats.
func Missing(wanted, wantedMatched []string) []string {
	found := make(map[string]struct{}, len(wantedMatched))
	for _, title := range wantedMatched {
		found[title] = struct{}{}
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, title := range wanted {
		if _, ok := found[title]; ok {
			continue
		}
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		missing = append(missing, title)
	}
	return missing
}

// assign returns, for each wanted title, the index of the candidate it took or -1.
func assign(m matcher.Matcher, wanted []string, candidates []Track) []int {
	used := make([]bool, len(candidates))
	out := make([]int, len(wanted))
	for i, title := range wanted {
		out[i] = -1
		for j, track := range candidates {
			if used[j] {
				continue
			}
			if m.Match(title, track.Title) {
				used[j] = true
				out[i] = j
				break
			}
		}
	}
	return out
}

// Reconciler partitions collections into matched and missing songs.
type Reconciler struct {
	index   *Index
	matcher matcher.Matcher
}

// NewReconciler creates a reconciler over catalog.
func NewReconciler(catalog Catalog, m matcher.Matcher) *Reconciler {
	return &Reconciler{index: NewIndex(catalog, m), matcher: m}
}

// Index exposes the artist index used by the reconciler.
func (r *Reconciler) Index() *Index {
	return r.index
}

// ReconcileCollection reconciles every song of coll. Songs are grouped by
// artist, each group is matched against the tracks of the catalog artists
// accepted for that name, and the result is reassembled in collection order.
// A catalog failure aborts the whole collection.
func (r *Reconciler) ReconcileCollection(ctx context.Context, coll Collection) (Result, error) {
	log := zerolog.Ctx(ctx)

	artists, err := r.index.catalog.Artists(ctx)
	if err != nil {
		return Result{}, catalogError(err, "failed to list artists")
	}

	order, groups := groupByArtist(coll.Songs)

	trackAt := make([]*Track, len(coll.Songs))
	missingByArtist := make(map[string]map[string]struct{}, len(order))

	for _, artist := range order {
		positions := groups[artist]
		titles := make([]string, len(positions))
		for i, pos := range positions {
			titles[i] = coll.Songs[pos].Title
		}

		indexed, err := r.index.forArtistIn(ctx, artists, artist)
		if err != nil {
			return Result{}, err
		}
		candidates := Candidates(indexed)

		var wantedMatched []string
		for i, idx := range assign(r.matcher, titles, candidates) {
			if idx < 0 {
				continue
			}
			track := candidates[idx]
			trackAt[positions[i]] = &track
			wantedMatched = append(wantedMatched, titles[i])
		}

		missing := make(map[string]struct{})
		for _, title := range Missing(titles, wantedMatched) {
			missing[title] = struct{}{}
		}
		missingByArtist[artist] = missing

		log.Debug().Str("artist", artist).Int("wanted", len(titles)).Int("matched", len(wantedMatched)).Msg("Artist reconciled")
	}

	var result Result
	emitted := make(map[WantedSong]struct{})
	for pos, song := range coll.Songs {
		if track := trackAt[pos]; track != nil {
			result.Matches = append(result.Matches, Match{Wanted: song, Track: *track})
			continue
		}
		if _, ok := missingByArtist[song.Artist][song.Title]; !ok {
			continue
		}
		key := WantedSong{Artist: song.Artist, Title: song.Title}
		if _, ok := emitted[key]; ok {
			continue
		}
		emitted[key] = struct{}{}
		result.Missing = append(result.Missing, song)
	}

	log.Info().Str("playlist", coll.Name).Int("matched", len(result.Matches)).Int("missing", len(result.Missing)).Msg("Collection reconciled")
	return result, nil
}

// groupByArtist returns artists in first-seen order and the song positions for each.
func groupByArtist(songs []WantedSong) ([]string, map[string][]int) {
	var order []string
	groups := make(map[string][]int)
	for i, song := range songs {
		if _, ok := groups[song.Artist]; !ok {
			order = append(order, song.Artist)
		}
		groups[song.Artist] = append(groups[song.Artist], i)
	}
	return order, groups
}
