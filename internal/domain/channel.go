package domain

import "context"

// Channel is a chat platform adapter (Slack, Discord, Telegram, console).
//
// Connect authenticates and returns the bot's identity on that platform; a
// failure here is fatal for the process. Start pumps platform events into the
// bus and blocks until ctx is cancelled or the stream breaks.
type Channel interface {
	Name() string
	Connect(ctx context.Context) (Identity, error)
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, action OutboundAction) error
}

// Poster performs outbound actions on behalf of the dispatcher.
type Poster interface {
	Send(ctx context.Context, action OutboundAction) error
}
