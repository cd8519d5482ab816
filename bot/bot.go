// Package bot routes chat messages to the playlist and download workflows.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/garry/plexbot/acquire"
	"github.com/garry/plexbot/config"
	"github.com/garry/plexbot/library"
	"github.com/garry/plexbot/logger"
	"github.com/garry/plexbot/rescan"
	"github.com/garry/plexbot/youtube"
)

// Link prefixes, matched case-sensitively.
const (
	SetlistPrefix  = "https://www.setlist.fm/setlist"
	PlaylistPrefix = "https://open.spotify.com/playlist"
)

// VideoPrefixes are the direct video link prefixes.
var VideoPrefixes = []string{
	"https://www.youtube.com",
	"https://youtu.be",
	"https://m.youtube.com",
	"https://youtube.com",
}

// ErrUnauthorized is logged when a chat outside the allow-list writes.
var ErrUnauthorized = errors.New("chat is not authorized")

// Reply texts.
const (
	msgPrivate      = "Sorry, this is a private bot"
	msgExecuting    = "Executing your command, please wait..."
	msgCreated      = "Playlist created!"
	msgNothingFound = "None of the songs were found on Plex"
	msgAskArtist    = "Enter artist name manually or press the button with the suggested one"
	msgAskSong      = "Enter song name manually or press the button with the suggested one"
	msgAskCategory  = "Do I sort it as music/podcast/audiobook?"
	msgStarting     = "Starting the download..."
	msgBusy         = "I'm busy with other requests, please try again later"
)

// CollectionSource resolves a link into the songs it lists.
type CollectionSource interface {
	GetCollection(ctx context.Context, link string) (library.Collection, error)
}

// VideoInspector reads the metadata of a direct video link.
type VideoInspector interface {
	VideoInfo(ctx context.Context, link string) (youtube.Video, error)
}

// Acquirer downloads songs into the library.
type Acquirer interface {
	AcquireAll(ctx context.Context, songs []library.WantedSong, notify acquire.Notifier) []acquire.Acquired
	AcquireLink(ctx context.Context, link, artist, title string) (acquire.Acquired, error)
}

// Rescanner makes the library notice new files.
type Rescanner interface {
	Rescan(ctx context.Context, category string, runScript bool) error
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Messenger  Messenger
	Setlists   CollectionSource
	Playlists  CollectionSource
	Videos     VideoInspector
	Reconciler *library.Reconciler
	Assembler  *library.Assembler
	Acquirer   Acquirer
	Rescanner  Rescanner
	Sessions   SessionStore
	Worker     *Worker
}

// Bot handles inbound messages
type Bot struct {
	Deps
	telegram config.TelegramConfig
	ttl      time.Duration
	now      func() time.Time
	routes   []route
}

type route struct {
	name     string
	prefixes []string
	handle   func(ctx context.Context, msg Message)
}

// New creates a bot. Every dependency must be set.
func New(deps Deps, telegram config.TelegramConfig, ttl time.Duration) *Bot {
	b := &Bot{Deps: deps, telegram: telegram, ttl: ttl, now: time.Now}
	b.routes = []route{
		{name: "setlist", prefixes: []string{SetlistPrefix}, handle: func(ctx context.Context, msg Message) {
			b.handleCollection(ctx, msg, b.Setlists)
		}},
		{name: "playlist", prefixes: []string{PlaylistPrefix}, handle: func(ctx context.Context, msg Message) {
			b.handleCollection(ctx, msg, b.Playlists)
		}},
		{name: "video", prefixes: VideoPrefixes, handle: b.handleVideo},
	}
	return b
}

// Dispatch queues msg on the worker. It is safe to call from the listener.
func (b *Bot) Dispatch(ctx context.Context, msg Message) {
	if b.Worker.Submit(func(ctx context.Context) { b.Handle(ctx, msg) }) {
		return
	}
	zerolog.Ctx(ctx).Warn().Int64("chat_id", msg.ChatID).Msg("Job queue is full")
	b.send(ctx, msg.ChatID, msgBusy)
}

// Handle processes one message to completion.
func (b *Bot) Handle(ctx context.Context, msg Message) {
	ctx, _ = logger.WithRequest(ctx, msg.ChatID)
	log := zerolog.Ctx(ctx)
	log.Info().Msgf("[FROM %d] [%s]", msg.ChatID, msg.Text)

	if !b.telegram.IsAuthorized(msg.ChatID) {
		log.Warn().Err(ErrUnauthorized).Msg("Rejected message")
		b.send(ctx, msg.ChatID, msgPrivate)
		return
	}

	for _, r := range b.routes {
		if hasAnyPrefix(msg.Text, r.prefixes) {
			log.Debug().Str("route", r.name).Msg("Routing message")
			r.handle(ctx, msg)
			return
		}
	}

	b.continueConversation(ctx, msg)
}

// handleCollection imports a setlist or playlist into a Plex playlist and
// downloads the songs Plex does not have.
func (b *Bot) handleCollection(ctx context.Context, msg Message, source CollectionSource) {
	log := zerolog.Ctx(ctx)
	b.send(ctx, msg.ChatID, msgExecuting)

	coll, err := source.GetCollection(ctx, msg.Text)
	if err != nil {
		b.fail(ctx, msg.ChatID, err)
		return
	}

	result, err := b.Reconciler.ReconcileCollection(ctx, coll)
	if err != nil {
		b.fail(ctx, msg.ChatID, err)
		return
	}

	var response []string
	if tracks := result.Tracks(); len(tracks) > 0 {
		if _, err := b.Assembler.Upsert(ctx, coll.Name, tracks); err != nil {
			b.fail(ctx, msg.ChatID, err)
			return
		}
		response = append(response, msgCreated)
	}

	if len(result.Missing) > 0 {
		b.send(ctx, msg.ChatID, "Missing songs: "+joinMissing(result.Missing))

		notify := func(ctx context.Context, text string) { b.send(ctx, msg.ChatID, text) }
		acquired := b.Acquirer.AcquireAll(ctx, result.Missing, notify)
		if len(acquired) > 0 {
			if err := b.topUp(ctx, coll.Name, acquired); err != nil {
				log.Error().Err(err).Str("playlist", coll.Name).Msg("Failed to add downloaded songs to playlist")
			}
			response = append(response, "There were missing songs on Plex. I tried to download them and add to the playlist. Here is the list: "+joinAcquired(acquired))
		}
	}

	if len(response) == 0 {
		response = append(response, msgNothingFound)
	}
	b.reply(ctx, msg.ChatID, strings.Join(response, "\n"))
}

// topUp refreshes the library and appends the downloaded songs to the playlist.
func (b *Bot) topUp(ctx context.Context, playlist string, acquired []acquire.Acquired) error {
	if err := b.Rescanner.Rescan(ctx, rescan.CategoryMusic, false); err != nil {
		return err
	}

	coll := library.Collection{Name: playlist}
	for _, a := range acquired {
		coll.Songs = append(coll.Songs, library.WantedSong{Artist: a.Artist, Title: a.Title, Album: a.Album})
	}

	result, err := b.Reconciler.ReconcileCollection(ctx, coll)
	if err != nil {
		return err
	}
	if len(result.Missing) > 0 {
		zerolog.Ctx(ctx).Warn().Str("songs", joinTitles(result.Missing)).Msg("Downloaded songs are not indexed yet")
	}

	_, err = b.Assembler.Append(ctx, playlist, result.Tracks())
	return err
}

// handleVideo starts the conversation that names and files a direct video download.
func (b *Bot) handleVideo(ctx context.Context, msg Message) {
	video, err := b.Videos.VideoInfo(ctx, msg.Text)
	if err != nil {
		b.fail(ctx, msg.ChatID, err)
		return
	}

	conv := NewConversation(msg.ChatID, msg.Text, video.Channel, youtube.SuggestSong(video), b.now().Add(b.ttl))
	if err := b.Sessions.Save(ctx, conv); err != nil {
		b.fail(ctx, msg.ChatID, err)
		return
	}

	b.sendKeyboard(ctx, msg.ChatID, msgAskArtist, nonEmpty(conv.Artist)...)
}

// continueConversation applies msg to the chat's open conversation, if any.
func (b *Bot) continueConversation(ctx context.Context, msg Message) {
	log := zerolog.Ctx(ctx)

	conv, err := b.Sessions.Get(ctx, msg.ChatID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load conversation")
		return
	}
	if conv == nil || conv.Expired(b.now()) {
		log.Debug().Msg("No open conversation, ignoring message")
		return
	}

	if err := conv.Advance(msg.Text); err != nil {
		log.Warn().Err(err).Str("state", string(conv.State)).Msg("Answer rejected")
		b.prompt(ctx, conv)
		return
	}

	if conv.State != StateDone {
		conv.ExpiresAt = b.now().Add(b.ttl)
		if err := b.Sessions.Save(ctx, conv); err != nil {
			b.fail(ctx, msg.ChatID, err)
			return
		}
		b.prompt(ctx, conv)
		return
	}

	if err := b.Sessions.Delete(ctx, msg.ChatID); err != nil {
		log.Warn().Err(err).Msg("Failed to delete conversation")
	}
	b.download(ctx, conv)
}

// prompt asks the question of the conversation's current step.
func (b *Bot) prompt(ctx context.Context, conv *Conversation) {
	switch conv.State {
	case StateAwaitingArtist:
		b.sendKeyboard(ctx, conv.ChatID, msgAskArtist, nonEmpty(conv.Artist)...)
	case StateAwaitingSong:
		b.sendKeyboard(ctx, conv.ChatID, msgAskSong, nonEmpty(conv.Song)...)
	case StateAwaitingCategory:
		b.sendKeyboard(ctx, conv.ChatID, msgAskCategory, rescan.Categories...)
	}
}

func (b *Bot) download(ctx context.Context, conv *Conversation) {
	log := zerolog.Ctx(ctx)

	logOutgoing(ctx, conv.ChatID, msgStarting)
	if err := b.Messenger.RemoveKeyboard(ctx, conv.ChatID, msgStarting); err != nil {
		log.Error().Err(err).Msg("Failed to send message")
	}

	if _, err := b.Acquirer.AcquireLink(ctx, conv.VideoLink, conv.Artist, conv.Song); err != nil {
		log.Error().Err(err).Str("link", conv.VideoLink).Msg("Failed to download video")
		b.reply(ctx, conv.ChatID, fmt.Sprintf("Failed to download missing song: %s", conv.Song))
		return
	}

	b.reply(ctx, conv.ChatID, fmt.Sprintf("%s - %s was downloaded", conv.Artist, conv.Song))

	if err := b.Rescanner.Rescan(ctx, conv.Category, true); err != nil {
		log.Error().Err(err).Str("category", conv.Category).Msg("Failed to rescan library")
	}
}

// fail reports a request-level error to the user.
func (b *Bot) fail(ctx context.Context, chatID int64, err error) {
	zerolog.Ctx(ctx).Error().Err(err).Msg("Request failed")
	b.reply(ctx, chatID, fmt.Sprintf("Failed to process your link: %s", err.Error()))
}

// reply sends a final response. When that fails the user gets a short
// apology pointing at the support contact instead.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	logOutgoing(ctx, chatID, text)
	err := b.Messenger.Send(ctx, chatID, text)
	if err == nil {
		return
	}

	log := zerolog.Ctx(ctx)
	log.Error().Err(err).Msg("Failed to send reply")
	apology := fmt.Sprintf("Sorry, I can't send you reply. Report it to %s", b.telegram.SupportContact)
	if err := b.Messenger.Send(ctx, chatID, apology); err != nil {
		log.Error().Err(err).Msg("Failed to send apology")
	}
}

// send delivers an intermediate message. Failures are only logged.
func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	logOutgoing(ctx, chatID, text)
	if err := b.Messenger.Send(ctx, chatID, text); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to send message")
	}
}

func (b *Bot) sendKeyboard(ctx context.Context, chatID int64, text string, buttons ...string) {
	logOutgoing(ctx, chatID, text)
	if err := b.Messenger.SendKeyboard(ctx, chatID, text, buttons...); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to send message")
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func joinTitles(songs []library.WantedSong) string {
	titles := make([]string, len(songs))
	for i, s := range songs {
		titles[i] = s.Title
	}
	return strings.Join(titles, ", ")
}

// joinMissing names songs by title alone when they share one artist and as
// "artist - title" otherwise.
func joinMissing(songs []library.WantedSong) string {
	for _, s := range songs {
		if s.Artist != songs[0].Artist {
			names := make([]string, len(songs))
			for i, s := range songs {
				names[i] = s.Artist + " - " + s.Title
			}
			return strings.Join(names, ", ")
		}
	}
	return joinTitles(songs)
}

func joinAcquired(acquired []acquire.Acquired) string {
	names := make([]string, len(acquired))
	for i, a := range acquired {
		names[i] = a.Artist + " - " + a.Title
	}
	return strings.Join(names, ", ")
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
