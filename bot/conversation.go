package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"

	"github.com/garry/plexbot/rescan"
)

// State is a step of the video download conversation.
type State string

const (
	StateAwaitingArtist   State = "awaiting_artist"
	StateAwaitingSong     State = "awaiting_song"
	StateAwaitingCategory State = "awaiting_category"
	StateDone             State = "done"
)

var (
	ErrInvalidTransition = errors.New("conversation is already finished")
	ErrEmptyAnswer       = errors.New("empty answer")
	ErrInvalidCategory   = errors.New("unknown category")
)

// Conversation collects artist, song and category for a direct video link.
// Artist and Song hold the suggestions until the user answers.
type Conversation struct {
	ChatID    int64     `json:"chat_id"`
	State     State     `json:"state"`
	VideoLink string    `json:"video_link"`
	Artist    string    `json:"artist"`
	Song      string    `json:"song"`
	Category  string    `json:"category"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewConversation starts a conversation waiting for the artist name.
func NewConversation(chatID int64, link, artist, song string, expiresAt time.Time) *Conversation {
	return &Conversation{
		ChatID:    chatID,
		State:     StateAwaitingArtist,
		VideoLink: link,
		Artist:    artist,
		Song:      song,
		ExpiresAt: expiresAt,
	}
}

// Advance applies the user's answer to the current step and moves to the
// next one. A rejected answer leaves the conversation unchanged.
func (c *Conversation) Advance(answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" && c.State != StateDone {
		return ErrEmptyAnswer
	}

	switch c.State {
	case StateAwaitingArtist:
		c.Artist = answer
		c.State = StateAwaitingSong
	case StateAwaitingSong:
		c.Song = answer
		c.State = StateAwaitingCategory
	case StateAwaitingCategory:
		if !rescan.ValidCategory(answer) {
			return errors.Wrapf(ErrInvalidCategory, "%q", answer)
		}
		c.Category = answer
		c.State = StateDone
	default:
		return errors.Wrapf(ErrInvalidTransition, "state %s", c.State)
	}
	return nil
}

// Expired reports whether the conversation timed out at now.
func (c *Conversation) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// SessionStore keeps one conversation per chat. Get returns nil without an
// error when the chat has no live conversation.
type SessionStore interface {
	Get(ctx context.Context, chatID int64) (*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, chatID int64) error
}

// MemoryStore is a SessionStore held in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[int64]Conversation
	now   func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[int64]Conversation), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, chatID int64) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[chatID]
	if !ok {
		return nil, nil
	}
	if conv.Expired(s.now()) {
		delete(s.convs, chatID)
		return nil, nil
	}
	return &conv, nil
}

func (s *MemoryStore) Save(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ChatID] = *conv
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, chatID)
	return nil
}

// RedisStore is a SessionStore in Redis. Keys expire with the conversation.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr and checks the connection.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addr)
	}
	return &RedisStore{client: client}, nil
}

// SessionKey is the Redis key of a chat's conversation.
func SessionKey(chatID int64) string {
	return fmt.Sprintf("session:%d", chatID)
}

func (s *RedisStore) Get(ctx context.Context, chatID int64) (*Conversation, error) {
	data, err := s.client.Get(ctx, SessionKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load conversation")
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, errors.Wrap(err, "failed to decode conversation")
	}
	if conv.Expired(time.Now()) {
		return nil, nil
	}
	return &conv, nil
}

func (s *RedisStore) Save(ctx context.Context, conv *Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return errors.Wrap(err, "failed to encode conversation")
	}

	ttl := time.Until(conv.ExpiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, conv.ChatID)
	}
	if err := s.client.Set(ctx, SessionKey(conv.ChatID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save conversation")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, SessionKey(chatID)).Err(); err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
