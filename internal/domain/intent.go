package domain

// IntentKind tags the variant held by an Intent.
type IntentKind string

const (
	IntentIgnore    IntentKind = "ignore"
	IntentCommand   IntentKind = "command"
	IntentSensitive IntentKind = "sensitive"
)

// Intent is the classification of exactly one InboundEvent.
//
//   - IntentCommand: Command and Channel are set.
//   - IntentSensitive: Redacted is set; Event carries channel and author.
//   - IntentIgnore: nothing else is meaningful.
//
// Event is always the source event so the dispatcher can route by Event.Source.
type Intent struct {
	Kind     IntentKind
	Command  string
	Channel  string
	Redacted string
	Event    InboundEvent
}

func Ignore(ev InboundEvent) Intent {
	return Intent{Kind: IntentIgnore, Event: ev}
}
