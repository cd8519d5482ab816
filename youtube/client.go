// Package youtube finds and downloads audio with yt-dlp and converts it with ffmpeg.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	yt "github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"

	"github.com/garry/plexbot/acquire"
	"github.com/garry/plexbot/config"
)

const watchURL = "https://www.youtube.com/watch?v="

// Runner executes an external program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, errors.Wrapf(err, "%s: %s", name, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// videoLookup is the part of the kkdai client used for direct links.
type videoLookup interface {
	GetVideoContext(ctx context.Context, url string) (*yt.Video, error)
}

// Client drives yt-dlp and ffmpeg
type Client struct {
	runner Runner
	ytdlp  string
	ffmpeg string
	videos videoLookup
}

// Video is the metadata of a direct video link
type Video struct {
	ID      string
	Title   string
	Channel string
}

// searchResult holds the yt-dlp --dump-json fields we use.
type searchResult struct {
	ID         string `json:"id"`
	WebpageURL string `json:"webpage_url"`
	Title      string `json:"title"`
	Track      string `json:"track"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Channel    string `json:"channel"`
	Uploader   string `json:"uploader"`
}

// NewClient creates a client using the tool paths from cfg
func NewClient(cfg config.DownloadConfig) *Client {
	return &Client{
		runner: ExecRunner{},
		ytdlp:  cfg.YtDlpPath,
		ffmpeg: cfg.FFmpegPath,
		videos: &yt.Client{},
	}
}

// Search returns the first yt-dlp search hit for query. Music metadata
// (track, artist, album) wins over the generic video title and channel.
func (c *Client) Search(ctx context.Context, query string) (acquire.Source, error) {
	out, err := c.runner.Run(ctx, c.ytdlp, "--dump-json", "--skip-download", "--no-playlist", "ytsearch1:"+query)
	if err != nil {
		return acquire.Source{}, errors.Wrap(err, "yt-dlp search failed")
	}

	line := strings.TrimSpace(string(out))
	if line == "" {
		return acquire.Source{}, errors.Wrapf(acquire.ErrNoResult, "query %q", query)
	}
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	var res searchResult
	if err := json.Unmarshal([]byte(line), &res); err != nil {
		return acquire.Source{}, errors.Wrap(err, "failed to decode yt-dlp output")
	}

	src := acquire.Source{
		ID:     res.ID,
		URL:    res.WebpageURL,
		Artist: firstNonEmpty(res.Artist, res.Channel, res.Uploader),
		Title:  firstNonEmpty(res.Track, res.Title),
		Album:  res.Album,
	}
	if src.URL == "" && src.ID != "" {
		src.URL = watchURL + src.ID
	}
	if src.URL == "" {
		return acquire.Source{}, errors.Wrapf(acquire.ErrNoResult, "query %q", query)
	}

	zerolog.Ctx(ctx).Info().Str("query", query).Str("artist", src.Artist).Str("title", src.Title).Str("url", src.URL).Msg("Found source")
	return src, nil
}

// Download fetches the best audio stream of source into dir/<stem>.<ext>.
// When yt-dlp leaves several files with the stem, the lexicographically
// first one is used.
func (c *Client) Download(ctx context.Context, source, stem, dir string) (string, error) {
	template := filepath.Join(dir, stem+".%(ext)s")
	if _, err := c.runner.Run(ctx, c.ytdlp, "-f", "bestaudio", "--no-playlist", "-o", template, source); err != nil {
		return "", errors.Wrap(err, "yt-dlp download failed")
	}

	matches, err := filepath.Glob(filepath.Join(dir, globEscape(stem)+".*"))
	if err != nil {
		return "", errors.Wrap(err, "invalid download pattern")
	}
	if len(matches) == 0 {
		return "", errors.Newf("yt-dlp produced no file for %s", stem)
	}

	sort.Strings(matches)
	if len(matches) > 1 {
		zerolog.Ctx(ctx).Warn().Strs("files", matches).Msg("Several downloads share a stem, using the first")
	}

	zerolog.Ctx(ctx).Info().Str("file", matches[0]).Msg("Downloaded")
	return matches[0], nil
}

// Transcode converts src to dst with ffmpeg, overwriting dst.
func (c *Client) Transcode(ctx context.Context, src, dst string) error {
	if _, err := c.runner.Run(ctx, c.ffmpeg, "-y", "-loglevel", "error", "-i", src, dst); err != nil {
		return errors.Wrap(err, "ffmpeg failed")
	}
	return nil
}

// VideoInfo returns the title and channel of a direct video link.
func (c *Client) VideoInfo(ctx context.Context, link string) (Video, error) {
	v, err := c.videos.GetVideoContext(ctx, link)
	if err != nil {
		return Video{}, errors.Wrapf(err, "failed to get video %s", link)
	}
	return Video{ID: v.ID, Title: v.Title, Channel: v.Author}, nil
}

// SuggestSong guesses the song name from a video title by removing the
// channel name and the usual video decorations.
func SuggestSong(v Video) string {
	title := v.Title
	if v.Channel != "" {
		title = strings.ReplaceAll(title, v.Channel, "")
	}
	for _, noise := range []string{"Official Video", "[]", "()", "-"} {
		title = strings.ReplaceAll(title, noise, "")
	}
	return strings.TrimSpace(title)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// globEscape quotes glob metacharacters in a literal file name.
func globEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`).Replace(s)
}
