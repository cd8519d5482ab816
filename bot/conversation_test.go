package bot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationAdvance(t *testing.T) {
	conv := NewConversation(1, "https://youtu.be/x", "Channel", "Suggested", time.Time{})
	assert.Equal(t, StateAwaitingArtist, conv.State)

	require.NoError(t, conv.Advance(" Nirvana "))
	assert.Equal(t, StateAwaitingSong, conv.State)
	assert.Equal(t, "Nirvana", conv.Artist)
	assert.Equal(t, "Suggested", conv.Song)

	require.NoError(t, conv.Advance("Lithium"))
	assert.Equal(t, StateAwaitingCategory, conv.State)

	err := conv.Advance("music")
	assert.True(t, errors.Is(err, ErrInvalidCategory))
	assert.Equal(t, StateAwaitingCategory, conv.State)

	require.NoError(t, conv.Advance("Podcast"))
	assert.Equal(t, StateDone, conv.State)
	assert.Equal(t, "Podcast", conv.Category)

	assert.True(t, errors.Is(conv.Advance("again"), ErrInvalidTransition))
}

func TestConversationRejectsEmptyAnswer(t *testing.T) {
	conv := NewConversation(1, "link", "", "", time.Time{})

	assert.True(t, errors.Is(conv.Advance("   "), ErrEmptyAnswer))
	assert.Equal(t, StateAwaitingArtist, conv.State)
}

func TestConversationExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation(1, "link", "", "", now.Add(time.Minute))

	assert.False(t, conv.Expired(now))
	assert.True(t, conv.Expired(now.Add(time.Minute)))
	assert.False(t, NewConversation(1, "link", "", "", time.Time{}).Expired(now))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	conv, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, conv)

	require.NoError(t, store.Save(ctx, NewConversation(1, "link", "A", "S", now.Add(time.Minute))))
	conv, err = store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "A", conv.Artist)

	conv.Artist = "changed"
	again, _ := store.Get(ctx, 1)
	assert.Equal(t, "A", again.Artist, "store must hand out copies")

	now = now.Add(2 * time.Minute)
	conv, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, conv)

	require.NoError(t, store.Save(ctx, NewConversation(2, "link", "A", "S", now.Add(time.Minute))))
	require.NoError(t, store.Delete(ctx, 2))
	conv, _ = store.Get(ctx, 2)
	assert.Nil(t, conv)
}

func TestConversationJSON(t *testing.T) {
	expires := time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC)
	conv := NewConversation(42, "https://youtu.be/x", "Nirvana", "Lithium", expires)

	data, err := json.Marshal(conv)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"awaiting_artist"`)

	var decoded Conversation
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, expires.Equal(decoded.ExpiresAt))
	assert.Equal(t, conv.VideoLink, decoded.VideoLink)
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "session:42", SessionKey(42))
	assert.Equal(t, "session:-100123", SessionKey(-100123))
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, "127.0.0.1:1")
	assert.Error(t, err)
}
