package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garry/plexbot/acquire"
	"github.com/garry/plexbot/bot"
	"github.com/garry/plexbot/config"
	"github.com/garry/plexbot/tags"
	"github.com/garry/plexbot/youtube"
)

func TestFlagOverrides(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		logfile string
		want    map[string]string
	}{
		{
			name: "no flags",
			want: map[string]string{"LOG_OUTPUT": ""},
		},
		{
			name:    "verbose",
			verbose: true,
			want:    map[string]string{"LOG_OUTPUT": "", "LOG_LEVEL": "debug"},
		},
		{
			name:    "log file",
			logfile: "/var/log/plexbot.log",
			want:    map[string]string{"LOG_OUTPUT": "/var/log/plexbot.log"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flagOverrides(tt.verbose, tt.logfile))
		})
	}
}

func TestNewSessionStoreWithoutRedis(t *testing.T) {
	store, closer, err := newSessionStore(context.Background(), config.SessionConfig{})
	require.NoError(t, err)
	require.NotNil(t, closer)
	assert.IsType(t, &bot.MemoryStore{}, store)
	assert.NoError(t, closer.Close())
}

func TestNewCoordinator(t *testing.T) {
	cfg := config.DownloadConfig{
		Dir:         "/downloads",
		MusicDir:    "/music",
		WorkDir:     "/work",
		YtDlpPath:   "yt-dlp",
		FFmpegPath:  "ffmpeg",
		AudioFormat: "mp3",
	}
	videos := youtube.NewClient(cfg)

	c := newCoordinator(cfg, videos)
	assert.Same(t, videos, c.Searcher)
	assert.Same(t, videos, c.Downloader)
	assert.Same(t, videos, c.Transcoder)
	assert.Equal(t, tags.Writer{}, c.Tagger)
	assert.Equal(t, "/work", c.WorkDir)
	assert.Equal(t, "/music", c.MusicDir)
	assert.Equal(t, "/downloads", c.LinkDir)
	assert.Equal(t, "mp3", c.Format)

	chain, ok := c.Albums.(acquire.AlbumChain)
	require.True(t, ok)
	require.Len(t, chain, 2)
	assert.Equal(t, "deezer", chain[0].(interface{ Name() string }).Name())
	assert.Equal(t, "musicbrainz", chain[1].(interface{ Name() string }).Name())
}

func TestNewApplicationRejectsUnknownMatcher(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Match.Algorithm = "soundex"

	app, err := NewApplication(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, app)
}
