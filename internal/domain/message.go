package domain

import "time"

// InboundEvent is one message unit read from a platform stream.
// Text is empty when the platform event carried no text (edits, deletes, joins).
type InboundEvent struct {
	Source   string // platform adapter name: slack | discord | telegram | console
	Channel  string
	Author   string
	Text     string
	TS       string // platform message id, needed for update/delete
	Received time.Time
}

type ActionKind string

const (
	ActionPost   ActionKind = "post"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// OutboundAction is a side effect requested from a platform adapter.
type OutboundAction struct {
	Kind    ActionKind
	Source  string
	Channel string
	Text    string
	TS      string // target message for update/delete
}
