package acquire

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlbumChain(t *testing.T) {
	failing := &fakeAlbums{err: errors.New("status 503")}
	empty := &fakeAlbums{}
	found := &fakeAlbums{album: "OK Computer"}
	never := &fakeAlbums{album: "Other"}

	album, err := AlbumChain{failing, empty, found, never}.AlbumFor(context.Background(), "Radiohead", "Karma Police")
	require.NoError(t, err)
	assert.Equal(t, "OK Computer", album)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 0, never.calls)
}

func TestAlbumChainMiss(t *testing.T) {
	album, err := AlbumChain{&fakeAlbums{err: errors.New("down")}}.AlbumFor(context.Background(), "A", "T")
	require.NoError(t, err)
	assert.Empty(t, album)

	album, err = AlbumChain{}.AlbumFor(context.Background(), "A", "T")
	require.NoError(t, err)
	assert.Empty(t, album)
}
