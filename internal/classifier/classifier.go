// Package classifier decides what a single inbound event asks of the bot.
package classifier

import (
	"strings"

	"phibot/internal/domain"
	"phibot/internal/scanner"
)

// Classify maps one event to exactly one intent.
//
// A message that mentions the bot is always a command, even if it also
// contains an identifier: people asking the bot about an MRN are talking to
// the bot, not leaking into the channel. Only the text after the first
// mention is used as the command. Events without text or without a channel
// to answer in are ignored.
func Classify(ev domain.InboundEvent, id domain.Identity) domain.Intent {
	if ev.Text == "" || ev.Channel == "" {
		return domain.Ignore(ev)
	}

	if id.MentionToken != "" {
		if idx := strings.Index(ev.Text, id.MentionToken); idx >= 0 {
			cmd := ev.Text[idx+len(id.MentionToken):]
			return domain.Intent{
				Kind:    domain.IntentCommand,
				Command: strings.ToLower(strings.TrimSpace(cmd)),
				Channel: ev.Channel,
				Event:   ev,
			}
		}
	}

	if redacted, ok := scanner.Scan(ev.Text); ok {
		return domain.Intent{
			Kind:     domain.IntentSensitive,
			Channel:  ev.Channel,
			Redacted: redacted,
			Event:    ev,
		}
	}

	return domain.Ignore(ev)
}
