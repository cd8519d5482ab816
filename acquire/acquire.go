// Package acquire downloads songs missing from the library and files them
// into the music directory with tags.
package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"

	"github.com/garry/plexbot/library"
	"github.com/garry/plexbot/tags"
)

// UnknownAlbum names the directory of tracks whose album could not be resolved.
const UnknownAlbum = "Unknown Album"

var (
	ErrNoResult  = errors.New("no search result")
	ErrDownload  = errors.New("download failed")
	ErrTranscode = errors.New("transcode failed")
	ErrTag       = errors.New("tag writing failed")
)

// Source is a downloadable audio source found for a search query.
type Source struct {
	ID     string
	URL    string
	Artist string
	Title  string
	Album  string
}

// Searcher finds the best audio source for a free text query.
type Searcher interface {
	Search(ctx context.Context, query string) (Source, error)
}

// Downloader fetches source into dir as <stem>.<ext> and returns the file path.
type Downloader interface {
	Download(ctx context.Context, source, stem, dir string) (string, error)
}

// Transcoder converts src into the container implied by dst's extension.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// Tagger writes metadata onto an audio file.
type Tagger interface {
	Write(path string, t tags.Tags) error
}

// AlbumResolver looks up the album a song was released on. "" means unknown.
type AlbumResolver interface {
	AlbumFor(ctx context.Context, artist, title string) (string, error)
}

// Notifier delivers a progress message to the requester.
type Notifier func(ctx context.Context, text string)

// Acquired is a track that was downloaded, transcoded and tagged.
type Acquired struct {
	Wanted library.WantedSong
	Artist string
	Title  string
	Album  string
	Path   string
}

// Coordinator runs the search, download, transcode and tag steps for songs
// missing from the library. Songs are processed one at a time.
type Coordinator struct {
	Searcher   Searcher
	Downloader Downloader
	Transcoder Transcoder
	Tagger     Tagger
	Albums     AlbumResolver

	// WorkDir receives intermediate downloads.
	WorkDir string
	// MusicDir is the library root, laid out as artist/album/track.
	MusicDir string
	// LinkDir receives tracks downloaded from a direct video link.
	LinkDir string
	// Format is the target audio container extension.
	Format string
}

// AcquireAll downloads every song and returns the ones that succeeded, in
// input order. A failing song is reported through notify and skipped.
func (c *Coordinator) AcquireAll(ctx context.Context, songs []library.WantedSong, notify Notifier) []Acquired {
	log := zerolog.Ctx(ctx)

	var acquired []Acquired
	for _, song := range songs {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Msg("Acquisition cancelled")
			break
		}

		track, err := c.acquire(ctx, song, notify)
		if err != nil {
			log.Error().Err(err).Str("artist", song.Artist).Str("title", song.Title).Msg("Failed to acquire song")
			notify(ctx, fmt.Sprintf("Failed to download missing song: %s", song.Title))
			continue
		}

		log.Info().Str("path", track.Path).Str("album", track.Album).Msg("Acquired song")
		acquired = append(acquired, track)
	}

	return acquired
}

func (c *Coordinator) acquire(ctx context.Context, song library.WantedSong, notify Notifier) (Acquired, error) {
	query := fmt.Sprintf("%s - %s", song.Artist, song.Title)
	src, err := c.Searcher.Search(ctx, query)
	if err != nil {
		return Acquired{}, errors.Wrapf(err, "search %q", query)
	}
	if src.Artist == "" {
		src.Artist = song.Artist
	}
	if src.Title == "" {
		src.Title = song.Title
	}

	substituted := src.Title != song.Title || src.Artist != song.Artist
	if substituted {
		zerolog.Ctx(ctx).Warn().Str("wanted", query).Str("found", src.Artist+" - "+src.Title).Msg("Downloading a substitute")
		notify(ctx, fmt.Sprintf(`Cant find "%s". Downloading "%s - %s" instead`, query, src.Artist, src.Title))
	}

	album := src.Album
	if album == "" && !substituted {
		album = song.Album
	}
	if album == "" {
		album = c.albumFor(ctx, src.Artist, src.Title)
	}

	dir := filepath.Join(c.MusicDir, pathSafe(src.Artist), pathSafe(albumOrUnknown(album)))
	path, err := c.fetch(ctx, src.URL, Stem(src.Title), dir)
	if err != nil {
		return Acquired{}, err
	}

	t := tags.Tags{Artist: src.Artist, AlbumArtist: src.Artist, Album: album, Title: src.Title}
	if err := c.Tagger.Write(path, t); err != nil {
		removeFile(ctx, path)
		return Acquired{}, errors.Mark(errors.Wrapf(err, "tag %s", path), ErrTag)
	}

	return Acquired{Wanted: song, Artist: src.Artist, Title: src.Title, Album: album, Path: path}, nil
}

// AcquireLink downloads a direct video link into LinkDir, which is emptied
// first, and tags the result with the artist and title the user confirmed.
func (c *Coordinator) AcquireLink(ctx context.Context, link, artist, title string) (Acquired, error) {
	if err := os.RemoveAll(c.LinkDir); err != nil {
		return Acquired{}, errors.Wrapf(err, "failed to clean %s", c.LinkDir)
	}

	path, err := c.fetch(ctx, link, Stem(title), c.LinkDir)
	if err != nil {
		return Acquired{}, err
	}

	album := c.albumFor(ctx, artist, title)
	t := tags.Tags{Artist: artist, AlbumArtist: artist, Album: album, Title: title}
	if err := c.Tagger.Write(path, t); err != nil {
		removeFile(ctx, path)
		return Acquired{}, errors.Mark(errors.Wrapf(err, "tag %s", path), ErrTag)
	}

	wanted := library.WantedSong{Artist: artist, Title: title}
	return Acquired{Wanted: wanted, Artist: artist, Title: title, Album: album, Path: path}, nil
}

// fetch downloads source into WorkDir and transcodes it to dir/<stem>.<format>.
// No WorkDir file named after stem outlives the call, whether the download
// succeeded or not, and a failed transcode leaves no partial output behind.
func (c *Coordinator) fetch(ctx context.Context, source, stem, dir string) (string, error) {
	if err := os.MkdirAll(c.WorkDir, 0o755); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "failed to create %s", c.WorkDir), ErrDownload)
	}

	target := filepath.Join(dir, stem+"."+c.format())
	// Leftovers of an earlier attempt would be mistaken for this download.
	c.removeIntermediates(ctx, stem, target)
	defer c.removeIntermediates(ctx, stem, target)

	downloaded, err := c.Downloader.Download(ctx, source, stem, c.WorkDir)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "download %s", source), ErrDownload)
	}
	if downloaded != target {
		defer removeFile(ctx, downloaded)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "failed to create %s", dir), ErrTranscode)
	}

	zerolog.Ctx(ctx).Info().Str("from", downloaded).Str("to", target).Msg("Transcoding")
	if err := c.Transcoder.Transcode(ctx, downloaded, target); err != nil {
		if downloaded != target {
			removeFile(ctx, target)
		}
		return "", errors.Mark(errors.Wrapf(err, "transcode %s", downloaded), ErrTranscode)
	}

	return target, nil
}

// removeIntermediates deletes every WorkDir entry named <stem>.*, including
// partial downloads, except keep.
func (c *Coordinator) removeIntermediates(ctx context.Context, stem, keep string) {
	entries, err := os.ReadDir(c.WorkDir)
	if err != nil {
		if !os.IsNotExist(err) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("dir", c.WorkDir).Msg("Failed to list intermediate files")
		}
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), stem+".") {
			continue
		}
		path := filepath.Join(c.WorkDir, e.Name())
		if path != keep {
			removeFile(ctx, path)
		}
	}
}

func (c *Coordinator) albumFor(ctx context.Context, artist, title string) string {
	if c.Albums == nil {
		return ""
	}
	album, err := c.Albums.AlbumFor(ctx, artist, title)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("artist", artist).Str("title", title).Msg("Album lookup failed")
		return ""
	}
	return album
}

func (c *Coordinator) format() string {
	if c.Format == "" {
		return "mp3"
	}
	return strings.TrimPrefix(c.Format, ".")
}

// Stem turns a title into a file name stem safe for every filesystem.
func Stem(title string) string {
	if s := slug.Make(title); s != "" {
		return s
	}
	return "track"
}

func albumOrUnknown(album string) string {
	if album == "" {
		return UnknownAlbum
	}
	return album
}

// pathSafe keeps display names as directory names but strips separators.
func pathSafe(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

func removeFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("Failed to remove file")
	}
}
