package tags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyFile creates a file with no tag, which id3v2 treats as a blank tag to fill in.
func emptyFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfb, 0x90, 0x64, 0x00, 0x00, 0x00, 0x00}, 0o644))
	return path
}

func TestWriteAndRead(t *testing.T) {
	path := emptyFile(t)

	err := Write(path, Tags{Artist: "Sigur Rós", AlbumArtist: "Sigur Rós", Album: "Takk...", Title: "Hoppípolla"})
	require.NoError(t, err)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, Tags{Artist: "Sigur Rós", AlbumArtist: "Sigur Rós", Album: "Takk...", Title: "Hoppípolla"}, got)
}

func TestWriteKeepsAudio(t *testing.T) {
	path := emptyFile(t)
	require.NoError(t, Writer{}.Write(path, Tags{Artist: "A", Title: "T"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xfb, 0x90, 0x64}, data[len(data)-8:len(data)-4])
}

func TestWriteOverwrites(t *testing.T) {
	path := emptyFile(t)
	require.NoError(t, Write(path, Tags{Artist: "Old", Album: "Old Album", Title: "Old Title"}))
	require.NoError(t, Write(path, Tags{Artist: "New", Title: "New Title"}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Artist)
	assert.Equal(t, "New Title", got.Title)
	assert.Equal(t, "Old Album", got.Album)
}

func TestWriteMissingFile(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "missing", "track.mp3"), Tags{Title: "T"})
	assert.Error(t, err)
}
