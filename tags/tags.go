// Package tags writes ID3 metadata onto downloaded audio files.
package tags

import (
	"github.com/bogem/id3v2/v2"
	"github.com/cockroachdb/errors"
)

// albumArtistFrame is the ID3v2 "Band/orchestra/accompaniment" frame players read as album artist.
const albumArtistFrame = "TPE2"

// Tags is the metadata written onto a track.
type Tags struct {
	Artist      string
	AlbumArtist string
	Album       string
	Title       string
}

// Writer writes tags with Write. Its zero value is ready to use.
type Writer struct{}

// Write replaces artist, album artist, album and title on the file at path.
func (Writer) Write(path string, t Tags) error {
	return Write(path, t)
}

// Write replaces artist, album artist, album and title on the file at path.
// Other frames already present are kept. An empty album is not written.
func Write(path string, t Tags) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetVersion(4)

	if t.Artist != "" {
		tag.SetArtist(t.Artist)
	}
	if t.AlbumArtist != "" {
		tag.AddTextFrame(albumArtistFrame, id3v2.EncodingUTF8, t.AlbumArtist)
	}
	if t.Album != "" {
		tag.SetAlbum(t.Album)
	}
	if t.Title != "" {
		tag.SetTitle(t.Title)
	}

	if err := tag.Save(); err != nil {
		return errors.Wrapf(err, "failed to save tags to %s", path)
	}
	return nil
}

// Read returns the tags currently stored in the file at path.
func Read(path string) (Tags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return Tags{}, errors.Wrapf(err, "failed to open %s", path)
	}
	defer tag.Close()

	return Tags{
		Artist:      tag.Artist(),
		AlbumArtist: tag.GetTextFrame(albumArtistFrame).Text,
		Album:       tag.Album(),
		Title:       tag.Title(),
	}, nil
}
