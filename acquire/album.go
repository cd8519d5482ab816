package acquire

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// AlbumChain asks each resolver in turn and returns the first album found.
// Lookup errors are logged and treated as misses, so AlbumFor never fails.
type AlbumChain []AlbumResolver

func (chain AlbumChain) AlbumFor(ctx context.Context, artist, title string) (string, error) {
	log := zerolog.Ctx(ctx)
	for _, r := range chain {
		album, err := r.AlbumFor(ctx, artist, title)
		if err != nil {
			log.Warn().Err(err).Str("resolver", resolverName(r)).Str("artist", artist).Str("title", title).Msg("Album lookup failed")
			continue
		}
		if album != "" {
			log.Debug().Str("resolver", resolverName(r)).Str("album", album).Msg("Album resolved")
			return album, nil
		}
	}

	log.Warn().Str("artist", artist).Str("title", title).Msg("No album found")
	return "", nil
}

func resolverName(r AlbumResolver) string {
	if n, ok := r.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", r)
}
