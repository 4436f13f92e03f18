package domain

import "context"

// OutboundHandler delivers an action to one platform.
type OutboundHandler func(ctx context.Context, action OutboundAction) error

// MessageBus carries inbound events from adapters to the loop and routes
// outbound actions back to the adapter that owns the source.
type MessageBus interface {
	Publish(ev InboundEvent)
	Drain(max int) []InboundEvent
	Send(ctx context.Context, action OutboundAction) error
	OnOutbound(source string, handler OutboundHandler)
	Close()
}
