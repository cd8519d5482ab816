package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/garry/plexbot/acquire"
	"github.com/garry/plexbot/bot"
	"github.com/garry/plexbot/config"
	"github.com/garry/plexbot/deezer"
	"github.com/garry/plexbot/library"
	"github.com/garry/plexbot/logger"
	"github.com/garry/plexbot/matcher"
	"github.com/garry/plexbot/musicbrainz"
	"github.com/garry/plexbot/plex"
	"github.com/garry/plexbot/rescan"
	"github.com/garry/plexbot/setlistfm"
	"github.com/garry/plexbot/spotify"
	"github.com/garry/plexbot/tags"
	"github.com/garry/plexbot/youtube"
)

// Version information - set during build
var version = "dev"

// Exit codes
const (
	exitCodeSuccess     = 0
	exitCodeConfigError = 2
	exitCodeClientError = 3
)

// queueSize bounds the requests waiting behind the one being processed.
const queueSize = 16

var (
	app     = kingpin.New("plexbot", "Telegram bot that builds Plex playlists from setlists and playlists")
	verbose = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

// Application represents the main application state
type Application struct {
	config     *config.Config
	plexClient *plex.Client
	telegram   *bot.Telegram
	worker     *bot.Worker
	bot        *bot.Bot
	closers    []io.Closer
}

// NewApplication creates every collaborator and wires them together
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	m, err := matcher.New(cfg.Match.Algorithm)
	if err != nil {
		return nil, err
	}

	sessions, closer, err := newSessionStore(ctx, cfg.Session)
	if err != nil {
		return nil, err
	}

	telegram, err := bot.NewTelegram(cfg.Telegram.Token)
	if err != nil {
		closer.Close()
		return nil, err
	}

	plexClient := plex.NewClient(cfg)
	catalog := plexClient.Catalog()
	videos := youtube.NewClient(cfg.Download)
	worker := bot.NewWorker(queueSize)

	b := bot.New(bot.Deps{
		Messenger:  telegram,
		Setlists:   setlistfm.NewClient(cfg.Setlist.APIKey),
		Playlists:  spotify.NewClient(ctx, cfg),
		Videos:     videos,
		Reconciler: library.NewReconciler(catalog, m),
		Assembler:  library.NewAssembler(catalog),
		Acquirer:   newCoordinator(cfg.Download, videos),
		Rescanner:  rescan.NewTrigger(cfg, plexClient),
		Sessions:   sessions,
		Worker:     worker,
	}, cfg.Telegram, cfg.Session.TTL)

	return &Application{
		config:     cfg,
		plexClient: plexClient,
		telegram:   telegram,
		worker:     worker,
		bot:        b,
		closers:    []io.Closer{closer},
	}, nil
}

// Run serves chat messages until ctx is cancelled
func (app *Application) Run(ctx context.Context) error {
	defer app.close()

	if err := app.plexClient.Prepare(ctx); err != nil {
		return errors.Wrap(err, "failed to reach plex")
	}
	zlog.Info().Int("section", app.plexClient.SectionID()).Str("matcher", app.config.Match.Algorithm).Msg("Plex library ready")

	go app.worker.Run(ctx)

	zlog.Info().Msg("Listening for messages")
	app.telegram.Listen(ctx, func(msg bot.Message) {
		app.bot.Dispatch(ctx, msg)
	})

	zlog.Info().Msg("Shutting down")
	return nil
}

func (app *Application) close() {
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			zlog.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}

// newCoordinator builds the download pipeline on top of yt-dlp and ffmpeg
func newCoordinator(cfg config.DownloadConfig, videos *youtube.Client) *acquire.Coordinator {
	return &acquire.Coordinator{
		Searcher:   videos,
		Downloader: videos,
		Transcoder: videos,
		Tagger:     tags.Writer{},
		Albums:     acquire.AlbumChain{deezer.NewClient(), musicbrainz.NewClient()},
		WorkDir:    cfg.WorkDir,
		MusicDir:   cfg.MusicDir,
		LinkDir:    cfg.Dir,
		Format:     cfg.AudioFormat,
	}
}

// newSessionStore uses Redis when an address is configured and process memory otherwise
func newSessionStore(ctx context.Context, cfg config.SessionConfig) (bot.SessionStore, io.Closer, error) {
	if cfg.RedisAddress == "" {
		zlog.Info().Msg("Keeping conversations in memory")
		return bot.NewMemoryStore(), io.NopCloser(nil), nil
	}

	store, err := bot.NewRedisStore(ctx, cfg.RedisAddress)
	if err != nil {
		return nil, nil, err
	}
	zlog.Info().Str("address", cfg.RedisAddress).Msg("Keeping conversations in redis")
	return store, store, nil
}

// flagOverrides maps command line flags onto the environment variables they override
func flagOverrides(verbose bool, logfile string) map[string]string {
	overrides := map[string]string{"LOG_OUTPUT": logfile}
	if verbose {
		overrides["LOG_LEVEL"] = "debug"
	}
	return overrides
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	app.Version(version)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.LoadWithOverrides(flagOverrides(*verbose, *logfile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(exitCodeConfigError)
	}

	closer, err := logger.Init(logger.Config{Output: cfg.Log.Output, Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(exitCodeConfigError)
	}

	code := run(cfg)
	closer.Close()
	os.Exit(code)
}

// run executes the bot. Using a separate function ensures deferred calls run before exit.
func run(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = zlog.Logger.WithContext(ctx)

	application, err := NewApplication(ctx, cfg)
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to create application")
		return exitCodeClientError
	}

	if err := application.Run(ctx); err != nil {
		zlog.Error().Err(err).Msg("Application failed")
		return exitCodeClientError
	}
	return exitCodeSuccess
}
