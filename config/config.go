package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultPlexPort is appended to PLEX_HOST when PLEX_URL is not given.
const DefaultPlexPort = 32400

// Config holds all configuration values
type Config struct {
	Telegram TelegramConfig
	Plex     PlexConfig
	Rescan   RescanConfig
	Setlist  SetlistConfig
	Spotify  SpotifyConfig
	Download DownloadConfig
	Match    MatchConfig
	Session  SessionConfig
	Log      LogConfig
}

// TelegramConfig holds the chat transport settings
type TelegramConfig struct {
	Token           string `envconfig:"TELEGRAM_BOT_TOKEN" validate:"required"`
	AuthorizedUsers string `envconfig:"AUTHORIZED_USERS" default:"294967926,191151492"`
	SupportContact  string `envconfig:"SUPPORT_CONTACT" default:"@Lestarby"`

	// AllowedChats is parsed from AuthorizedUsers during Load.
	AllowedChats []int64 `ignored:"true"`
}

// PlexConfig holds Plex server configuration
type PlexConfig struct {
	URL              string `envconfig:"PLEX_URL" validate:"required,url"`
	Host             string `envconfig:"PLEX_HOST"`
	Token            string `envconfig:"PLEX_TOKEN" validate:"required"`
	LibraryName      string `envconfig:"PLEX_LIBRARY_NAME" default:"Music"`
	LibrarySectionID int    `envconfig:"PLEX_LIBRARY_SECTION_ID"`
	ServerID         string `envconfig:"PLEX_SERVER_ID"`
	SkipTLSVerify    bool   `envconfig:"PLEX_SKIP_TLS_VERIFY"`
}

// RescanConfig describes how to reach the Plex host over SSH
type RescanConfig struct {
	Username   string `envconfig:"PLEX_HOST_USERNAME"`
	Port       int    `envconfig:"PLEX_HOST_SSH_PORT" default:"22" validate:"gt=0,lte=65535"`
	KeyPath    string `envconfig:"SSH_KEY_PATH" default:"/sshconfig/id_rsa.oci"`
	KnownHosts string `envconfig:"SSH_KNOWN_HOSTS"`
	ScriptPath string `envconfig:"PLEX_UPDATE_SCRIPT_PATH"`
	RemoteDir  string `envconfig:"REMOTE_DOWNLOAD_DIR" default:"/Users/admin/Plex/downloads/ytdl"`
}

// SetlistConfig holds setlist.fm API configuration
type SetlistConfig struct {
	APIKey string `envconfig:"SETLIST_FM_API_KEY" validate:"required"`
}

// SpotifyConfig holds Spotify API configuration
type SpotifyConfig struct {
	ClientID     string `envconfig:"SPOTIFY_CLIENT_ID" validate:"required"`
	ClientSecret string `envconfig:"SPOTIFY_CLIENT_SECRET" validate:"required"`
}

// DownloadConfig holds local paths and external tool locations
type DownloadConfig struct {
	Dir         string `envconfig:"DOWNLOAD_DIR" default:"/Plex/downloads/ytdl"`
	MusicDir    string `envconfig:"MUSIC_DIR" default:"/Plex/Music"`
	WorkDir     string `envconfig:"WORK_DIR" default:"."`
	YtDlpPath   string `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	FFmpegPath  string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	AudioFormat string `envconfig:"AUDIO_FORMAT" default:"mp3" validate:"oneof=mp3"`
}

// MatchConfig selects the title similarity algorithm
type MatchConfig struct {
	Algorithm string `envconfig:"MATCH_ALGORITHM" default:"sequence" validate:"oneof=sequence jarowinkler levenshtein"`
}

// SessionConfig holds conversation storage settings
type SessionConfig struct {
	RedisAddress string        `envconfig:"REDIS_ADDRESS"`
	TTL          time.Duration `envconfig:"CONVERSATION_TTL" default:"10m" validate:"gt=0"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `envconfig:"LOG_OUTPUT" default:"stdout"`
}

// Default returns a configuration populated with default values only.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to apply defaults")
	}
	return cfg, nil
}

// Load loads configuration following the specified order:
// 1. Start with default values
// 2. Load from .env file (only if it exists; OS variables win)
// 3. Load from OS environment variables
// 4. Validate
func Load() (*Config, error) {
	return LoadWithOverrides(nil)
}

// LoadWithOverrides loads configuration and applies CLI flag overrides.
// Overrides are keyed by environment variable name; empty values are skipped.
func LoadWithOverrides(overrides map[string]string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	// .env file is optional
	_ = godotenv.Load()

	for key, value := range overrides {
		if value == "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return nil, errors.Wrapf(err, "failed to apply override %s", key)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolve fills derived fields.
func (c *Config) resolve() error {
	if c.Plex.URL == "" && c.Plex.Host != "" {
		c.Plex.URL = fmt.Sprintf("http://%s:%d", c.Plex.Host, DefaultPlexPort)
	}
	c.Plex.URL = strings.TrimRight(c.Plex.URL, "/")

	chats, err := parseChatIDs(c.Telegram.AuthorizedUsers)
	if err != nil {
		return err
	}
	c.Telegram.AllowedChats = chats
	return nil
}

// validate checks that all required configuration values are present
func (c *Config) validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("envconfig")
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return errors.Wrap(err, "failed to validate configuration")
	}

	var missingFields, invalidFields []string
	for _, fe := range fieldErrors {
		if fe.Tag() == "required" {
			missingFields = append(missingFields, fe.Field())
			continue
		}
		invalidFields = append(invalidFields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}

	var sections []string
	if len(missingFields) > 0 {
		sections = append(sections, "missing required configuration values:\n"+strings.Join(missingFields, "\n"))
	}
	if len(invalidFields) > 0 {
		sections = append(sections, "invalid configuration values:\n"+strings.Join(invalidFields, "\n"))
	}

	return errors.Newf("%s\n\nSet these values via environment variables, .env file, or CLI flags", strings.Join(sections, "\n\n"))
}

// IsAuthorized reports whether chatID is on the allow-list.
func (t TelegramConfig) IsAuthorized(chatID int64) bool {
	for _, id := range t.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

// RescanEnabled reports whether the remote update script can be run.
func (r RescanConfig) RescanEnabled() bool {
	return r.ScriptPath != "" && r.Username != ""
}

// parseChatIDs parses a comma-separated list of chat ids
func parseChatIDs(input string) ([]int64, error) {
	var ids []int64
	for _, item := range parseCommaSeparatedList(input) {
		if item == "" {
			continue
		}
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid chat id '%s' in AUTHORIZED_USERS", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseCommaSeparatedList parses a comma-separated string into a slice of trimmed strings
func parseCommaSeparatedList(input string) []string {
	if input == "" {
		return nil
	}

	items := strings.Split(input, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}

	return items
}
