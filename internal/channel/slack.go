package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"phibot/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMsgLen = 4000

// slackAuthErrors are the error codes that mean a token itself is bad.
var slackAuthErrors = map[string]bool{
	"invalid_auth":           true,
	"not_authed":             true,
	"account_inactive":       true,
	"token_revoked":          true,
	"not_allowed_token_type": true,
}

// Slack implements domain.Channel for Slack using Socket Mode.
type Slack struct {
	botToken string
	appToken string
	botID    string // id used in mentions; from config or auth.test
	apiURL   string // test override of the Web API base URL
	selfUID  string // auth.test user id
	selfBot  string // auth.test bot id

	client *slack.Client
	bus    domain.MessageBus
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	BotToken string
	AppToken string
	BotID    string // optional override of the auth.test user id
	Logger   *slog.Logger
}

// NewSlack creates a new Slack channel handler.
func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		botID:    cfg.BotID,
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Connect verifies the bot token with auth.test and the app-level token with
// apps.connections.open, then returns the bot identity. The connection URL
// obtained here is discarded; Start opens its own.
func (s *Slack) Connect(ctx context.Context) (domain.Identity, error) {
	opts := []slack.Option{slack.OptionAppLevelToken(s.appToken)}
	if s.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(s.apiURL))
	}
	api := slack.New(s.botToken, opts...)

	authResp, err := api.AuthTestContext(ctx)
	if err != nil {
		return domain.Identity{}, slackCredentialError("slack auth", err)
	}
	if _, _, err := api.StartSocketModeContext(ctx); err != nil {
		return domain.Identity{}, slackCredentialError("slack app token", err)
	}

	s.client = api
	s.selfUID = authResp.UserID
	s.selfBot = authResp.BotID
	if s.botID == "" {
		s.botID = authResp.UserID
	}
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID, "team", authResp.Team)

	return domain.SlackIdentity(s.botID), nil
}

// Start runs the Socket Mode event loop until ctx is cancelled or Stop is called.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	if s.client == nil {
		return errors.New("slack: Start called before Connect")
	}
	s.bus = bus

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	bus.OnOutbound(s.Name(), s.Send)

	socketClient := socketmode.New(s.client)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-socketClient.Events:
				if !ok {
					return
				}
				s.handleSocketEvent(socketClient, evt)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return nil
		}
		return slackCredentialError("slack socket mode", err)
	}
}

func (s *Slack) handleSocketEvent(client *socketmode.Client, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		s.logger.Debug("slack socket mode connecting")
	case socketmode.EventTypeConnected:
		s.logger.Info("slack socket mode connected")
	case socketmode.EventTypeConnectionError:
		s.logger.Warn("slack socket mode connection error")
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			client.Ack(*evt.Request)
		}
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		s.handleEventsAPI(eventsAPIEvent)
	default:
		// Acknowledge anything else so Slack does not retry it.
		if evt.Request != nil {
			client.Ack(*evt.Request)
		}
	}
}

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	// Only message events are consumed. app_mention duplicates every mention.
	ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	in, ok := s.toInbound(ev)
	if !ok {
		return
	}

	s.logger.Debug("slack message received",
		"user", in.Author,
		"channel", in.Channel,
		"subtype", ev.SubType,
		"text_len", len(in.Text),
	)
	s.bus.Publish(in)
}

// toInbound converts a message event. It reports false for the bot's own messages.
func (s *Slack) toInbound(ev *slackevents.MessageEvent) (domain.InboundEvent, bool) {
	if ev.User != "" && (ev.User == s.selfUID || ev.User == s.botID) {
		return domain.InboundEvent{}, false
	}
	if ev.BotID != "" && ev.BotID == s.selfBot {
		return domain.InboundEvent{}, false
	}

	text := ev.Text
	switch ev.SubType {
	case "message_changed", "message_deleted":
		text = ""
	}

	return domain.InboundEvent{
		Source:   s.Name(),
		Channel:  ev.Channel,
		Author:   ev.User,
		Text:     text,
		TS:       ev.TimeStamp,
		Received: time.Now(),
	}, true
}

// Send performs action through the Web API: chat.postMessage, chat.update or chat.delete.
func (s *Slack) Send(ctx context.Context, action domain.OutboundAction) error {
	if s.client == nil {
		return errors.New("slack: not connected")
	}

	switch action.Kind {
	case domain.ActionPost, "":
		for _, chunk := range splitMessage(action.Text, slackMaxMsgLen) {
			_, _, err := s.client.PostMessageContext(ctx,
				action.Channel,
				slack.MsgOptionText(chunk, false),
				slack.MsgOptionAsUser(true),
			)
			if err != nil {
				return fmt.Errorf("slack chat.postMessage: %w", err)
			}
		}
	case domain.ActionUpdate:
		if _, _, _, err := s.client.UpdateMessageContext(ctx, action.Channel, action.TS, slack.MsgOptionText(action.Text, false)); err != nil {
			return fmt.Errorf("slack chat.update: %w", err)
		}
	case domain.ActionDelete:
		if _, _, err := s.client.DeleteMessageContext(ctx, action.Channel, action.TS); err != nil {
			return fmt.Errorf("slack chat.delete: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedAction, action.Kind)
	}
	return nil
}

func (s *Slack) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// slackCredentialError wraps err under op, replacing token rejections with
// domain.ErrInvalidCredential.
func slackCredentialError(op string, err error) error {
	if isSlackAuthError(err) {
		return fmt.Errorf("%s: %w", op, domain.ErrInvalidCredential)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isSlackAuthError(err error) bool {
	var se slack.SlackErrorResponse
	if errors.As(err, &se) {
		return slackAuthErrors[se.Err]
	}
	return slackAuthErrors[err.Error()]
}
