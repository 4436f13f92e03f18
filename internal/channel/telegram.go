package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"phibot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMsgLen = 4000

// Telegram implements domain.Channel for a Telegram bot using long polling.
type Telegram struct {
	token     string
	parseMode string

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger

	stopOnce sync.Once
}

type TelegramConfig struct {
	Token     string
	ParseMode string // default "Markdown"
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.ParseMode == "" {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	return &Telegram{
		token:     cfg.Token,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Connect calls getMe and returns the bot identity. Mentions are @username.
func (t *Telegram) Connect(ctx context.Context) (domain.Identity, error) {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		if isTelegramAuthError(err) {
			return domain.Identity{}, fmt.Errorf("telegram auth: %w", domain.ErrInvalidCredential)
		}
		return domain.Identity{}, fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	return domain.TelegramIdentity(bot.Self.ID, bot.Self.UserName), nil
}

// Start polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if t.bot == nil {
		return errors.New("telegram: Start called before Connect")
	}
	t.bus = bus
	bus.OnOutbound(t.Name(), t.Send)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.Stop()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			in, ok := t.toInbound(update)
			if !ok {
				continue
			}
			t.logger.Debug("telegram message received", "chat_id", in.Channel, "text_len", len(in.Text))
			bus.Publish(in)
		}
	}
}

// Stop ends long polling. StopReceivingUpdates panics when called twice.
func (t *Telegram) Stop() error {
	t.stopOnce.Do(func() {
		if t.bot != nil {
			t.bot.StopReceivingUpdates()
		}
	})
	return nil
}

func (t *Telegram) toInbound(update tgbotapi.Update) (domain.InboundEvent, bool) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil || msg.Chat == nil {
		return domain.InboundEvent{}, false
	}
	if t.bot != nil && msg.From != nil && msg.From.ID == t.bot.Self.ID {
		return domain.InboundEvent{}, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	return domain.InboundEvent{
		Source:   t.Name(),
		Channel:  strconv.FormatInt(msg.Chat.ID, 10),
		Author:   telegramAuthor(msg.From),
		Text:     text,
		TS:       strconv.Itoa(msg.MessageID),
		Received: time.Unix(int64(msg.Date), 0),
	}, true
}

// telegramAuthor returns the username when set, otherwise the numeric id.
func telegramAuthor(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strconv.FormatInt(u.ID, 10)
}

func (t *Telegram) Send(ctx context.Context, action domain.OutboundAction) error {
	if t.bot == nil {
		return errors.New("telegram: not connected")
	}
	chatID, err := strconv.ParseInt(action.Channel, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", action.Channel, err)
	}

	switch action.Kind {
	case domain.ActionPost, "":
		for _, chunk := range splitMessage(action.Text, telegramMaxMsgLen) {
			if err := t.sendChunk(chatID, chunk); err != nil {
				return err
			}
		}
	case domain.ActionUpdate:
		msgID, err := strconv.Atoi(action.TS)
		if err != nil {
			return fmt.Errorf("invalid message ID %q: %w", action.TS, err)
		}
		if _, err := t.bot.Send(tgbotapi.NewEditMessageText(chatID, msgID, action.Text)); err != nil {
			return fmt.Errorf("telegram edit: %w", err)
		}
	case domain.ActionDelete:
		msgID, err := strconv.Atoi(action.TS)
		if err != nil {
			return fmt.Errorf("invalid message ID %q: %w", action.TS, err)
		}
		// deleteMessage returns a bool, so Request instead of Send.
		if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID)); err != nil {
			return fmt.Errorf("telegram delete: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedAction, action.Kind)
	}
	return nil
}

// sendChunk sends one message, falling back to plain text when Telegram
// rejects the markup.
func (t *Telegram) sendChunk(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = t.parseMode

	_, err := t.bot.Send(msg)
	if err == nil {
		return nil
	}
	if msg.ParseMode != "" && strings.Contains(err.Error(), "can't parse entities") {
		t.logger.Warn("telegram markdown parse error, sending as plain text", "parseMode", t.parseMode)
		if _, err = t.bot.Send(tgbotapi.NewMessage(chatID, text)); err == nil {
			return nil
		}
	}
	return fmt.Errorf("telegram send: %w", err)
}

func isTelegramAuthError(err error) bool {
	var te *tgbotapi.Error
	if errors.As(err, &te) {
		return te.Code == http.StatusUnauthorized
	}
	return strings.Contains(err.Error(), "Unauthorized")
}
