package bot

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Message is an inbound text message.
type Message struct {
	ChatID int64
	Text   string
}

// Messenger sends replies to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
	// SendKeyboard shows one reply button per entry of buttons.
	SendKeyboard(ctx context.Context, chatID int64, text string, buttons ...string) error
	RemoveKeyboard(ctx context.Context, chatID int64, text string) error
}

// Telegram is a Messenger backed by the Telegram Bot API with long polling.
type Telegram struct {
	api *tgbotapi.BotAPI
}

// NewTelegram authenticates with the Bot API.
func NewTelegram(token string) (*Telegram, error) {
	if err := tgbotapi.SetLogger(botLogger{}); err != nil {
		return nil, errors.Wrap(err, "failed to set telegram logger")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to telegram")
	}
	zlog.Info().Str("username", api.Self.UserName).Msg("Authorized on telegram")

	return &Telegram{api: api}, nil
}

func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	return t.send(tgbotapi.NewMessage(chatID, text))
}

func (t *Telegram) SendKeyboard(ctx context.Context, chatID int64, text string, buttons ...string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(buttons) > 0 {
		row := make([]tgbotapi.KeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			row = append(row, tgbotapi.NewKeyboardButton(b))
		}
		keyboard := tgbotapi.NewReplyKeyboard(row)
		keyboard.ResizeKeyboard = true
		keyboard.OneTimeKeyboard = true
		msg.ReplyMarkup = keyboard
	}
	return t.send(msg)
}

func (t *Telegram) RemoveKeyboard(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	return t.send(msg)
}

func (t *Telegram) send(msg tgbotapi.MessageConfig) error {
	if _, err := t.api.Send(msg); err != nil {
		return errors.Wrapf(err, "failed to send message to %d", msg.ChatID)
	}
	return nil
}

// Listen long-polls for updates and passes every text message to handle
// until ctx is cancelled.
func (t *Telegram) Listen(ctx context.Context, handle func(Message)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			zlog.Info().Msg("Stopped receiving updates")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			handle(Message{ChatID: update.Message.Chat.ID, Text: update.Message.Text})
		}
	}
}

// botLogger routes the library's own log lines into zerolog.
type botLogger struct{}

func (botLogger) Println(v ...interface{}) {
	zlog.Warn().Str("component", "telegram").Msg(fmt.Sprint(v...))
}

func (botLogger) Printf(format string, v ...interface{}) {
	zlog.Warn().Str("component", "telegram").Msgf(format, v...)
}

var _ Messenger = (*Telegram)(nil)

// logOutgoing records a reply the way inbound messages are recorded.
func logOutgoing(ctx context.Context, chatID int64, text string) {
	zerolog.Ctx(ctx).Info().Msgf("[TO %d] [%s]", chatID, text)
}
