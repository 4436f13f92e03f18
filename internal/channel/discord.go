package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"phibot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const discordMaxMsgLen = 2000

// Discord implements domain.Channel for Discord.
type Discord struct {
	token   string
	guildID string
	selfID  string
	session *discordgo.Session
	bus     domain.MessageBus
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token   string
	GuildID string // optional: only watch this guild
	Logger  *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		logger:  cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Connect validates the token against the REST API and returns the bot identity.
func (d *Discord) Connect(ctx context.Context) (domain.Identity, error) {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	me, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusUnauthorized {
			return domain.Identity{}, fmt.Errorf("discord auth: %w", domain.ErrInvalidCredential)
		}
		return domain.Identity{}, fmt.Errorf("discord auth: %w", err)
	}

	d.session = session
	d.selfID = me.ID
	d.logger.Info("discord bot connected", "user", me.Username, "user_id", me.ID)

	return domain.Identity{
		Platform:     d.Name(),
		BotID:        me.ID,
		MentionToken: "<@" + me.ID + ">",
		UserMention:  "<@%s>",
	}, nil
}

// Start opens the gateway and blocks until ctx is cancelled or Stop is called.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	if d.session == nil {
		return errors.New("discord: Start called before Connect")
	}
	d.bus = bus

	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	bus.OnOutbound(d.Name(), d.Send)

	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		in, ok := d.toInbound(m.Message)
		if !ok {
			return
		}
		d.logger.Debug("discord message received",
			"author", in.Author,
			"channel_id", in.Channel,
			"text_len", len(in.Text),
		)
		bus.Publish(in)
	})

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return d.session.Close()
}

// toInbound converts a gateway message. It reports false for the bot's own
// messages and for guilds outside the configured one.
func (d *Discord) toInbound(m *discordgo.Message) (domain.InboundEvent, bool) {
	if m == nil || m.Author == nil || m.Author.ID == d.selfID {
		return domain.InboundEvent{}, false
	}
	if d.guildID != "" && m.GuildID != d.guildID {
		return domain.InboundEvent{}, false
	}

	received := m.Timestamp
	if received.IsZero() {
		received = time.Now()
	}
	return domain.InboundEvent{
		Source:   d.Name(),
		Channel:  m.ChannelID,
		Author:   m.Author.ID,
		Text:     normalizeDiscordMentions(m.Content, d.selfID),
		TS:       m.ID,
		Received: received,
	}, true
}

// normalizeDiscordMentions rewrites the nickname form <@!ID> of the bot's
// mention to the plain <@ID> form.
func normalizeDiscordMentions(text, botID string) string {
	if botID == "" {
		return text
	}
	return strings.ReplaceAll(text, "<@!"+botID+">", "<@"+botID+">")
}

func (d *Discord) Send(ctx context.Context, action domain.OutboundAction) error {
	if d.session == nil {
		return errors.New("discord: not connected")
	}

	switch action.Kind {
	case domain.ActionPost, "":
		for _, chunk := range splitMessage(action.Text, discordMaxMsgLen) {
			if _, err := d.session.ChannelMessageSend(action.Channel, chunk, discordgo.WithContext(ctx)); err != nil {
				return fmt.Errorf("discord send: %w", err)
			}
		}
	case domain.ActionUpdate:
		if _, err := d.session.ChannelMessageEdit(action.Channel, action.TS, action.Text, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord edit: %w", err)
		}
	case domain.ActionDelete:
		if err := d.session.ChannelMessageDelete(action.Channel, action.TS, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord delete: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedAction, action.Kind)
	}
	return nil
}

func (d *Discord) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}
