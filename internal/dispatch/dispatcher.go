// Package dispatch turns classified intents into outbound chat actions.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"phibot/internal/domain"
)

// RedactMode selects what happens to the offending message besides the warning.
type RedactMode string

const (
	RedactOff    RedactMode = "off"    // warning only
	RedactRepost RedactMode = "repost" // post the masked text to the channel
	RedactUpdate RedactMode = "update" // edit the original message in place
	RedactDelete RedactMode = "delete" // delete the original message
)

// ParseRedactMode maps a config value to a RedactMode. Empty means off.
func ParseRedactMode(s string) (RedactMode, error) {
	switch RedactMode(s) {
	case "", RedactOff:
		return RedactOff, nil
	case RedactRepost, RedactUpdate, RedactDelete:
		return RedactMode(s), nil
	default:
		return "", fmt.Errorf("unknown redact mode %q (want off, repost, update or delete)", s)
	}
}

// Dispatcher performs the single outbound action for each intent.
type Dispatcher struct {
	poster         domain.Poster
	catalog        Catalog
	exampleCommand string
	rules          []Rule
	redactMode     RedactMode
	logger         *slog.Logger
}

// Config configures a Dispatcher.
type Config struct {
	Poster         domain.Poster
	Catalog        *Catalog // nil uses DefaultCatalog
	ExampleCommand string   // default "do"
	RedactMode     RedactMode
	Logger         *slog.Logger
}

func New(cfg Config) *Dispatcher {
	cat := DefaultCatalog()
	if cfg.Catalog != nil {
		cat = *cfg.Catalog
	}
	if cfg.ExampleCommand == "" {
		cfg.ExampleCommand = "do"
	}
	if cfg.RedactMode == "" {
		cfg.RedactMode = RedactOff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		poster:         cfg.Poster,
		catalog:        cat,
		exampleCommand: cfg.ExampleCommand,
		rules:          buildRules(cat, cfg.ExampleCommand),
		redactMode:     cfg.RedactMode,
		logger:         cfg.Logger,
	}
}

// Rules returns the command table in evaluation order.
func (d *Dispatcher) Rules() []Rule {
	out := make([]Rule, len(d.rules))
	copy(out, d.rules)
	return out
}

// Reply resolves the rule and reply text for a command without posting.
func (d *Dispatcher) Reply(commandText string) (rule string, reply string) {
	r := match(d.rules, commandText)
	return r.Name, r.Reply
}

// DispatchCommand answers a command with exactly one post. It returns the
// name of the rule that fired.
func (d *Dispatcher) DispatchCommand(ctx context.Context, source, commandText, channel string) (string, error) {
	rule, reply := d.Reply(commandText)
	d.logger.Debug("command matched", "rule", rule, "source", source, "channel", channel)
	return rule, d.post(ctx, domain.OutboundAction{
		Kind:    domain.ActionPost,
		Source:  source,
		Channel: channel,
		Text:    reply,
	})
}

// DispatchSensitiveWarning posts the warning for ev, mentioning its author.
// With a redact mode other than off, the redaction action is attempted first;
// its failure does not suppress the warning.
func (d *Dispatcher) DispatchSensitiveWarning(ctx context.Context, ev domain.InboundEvent, redacted, authorMention string) error {
	var redactErr error
	if d.redactMode != RedactOff {
		redactErr = d.redact(ctx, ev, redacted)
		if redactErr != nil {
			d.logger.Warn("redaction failed", "mode", d.redactMode, "channel", ev.Channel, "err", redactErr)
		}
	}

	warnErr := d.post(ctx, domain.OutboundAction{
		Kind:    domain.ActionPost,
		Source:  ev.Source,
		Channel: ev.Channel,
		Text:    d.catalog.warning(authorMention),
	})
	return errors.Join(redactErr, warnErr)
}

func (d *Dispatcher) redact(ctx context.Context, ev domain.InboundEvent, redacted string) error {
	action := domain.OutboundAction{Source: ev.Source, Channel: ev.Channel, TS: ev.TS}
	switch d.redactMode {
	case RedactRepost:
		action.Kind = domain.ActionPost
		action.Text = redacted
		action.TS = ""
	case RedactUpdate:
		action.Kind = domain.ActionUpdate
		action.Text = redacted
	case RedactDelete:
		action.Kind = domain.ActionDelete
	default:
		return nil
	}
	return d.post(ctx, action)
}

func (d *Dispatcher) post(ctx context.Context, action domain.OutboundAction) error {
	if d.poster == nil {
		return &domain.PostFailedError{Source: action.Source, Channel: action.Channel, Text: action.Text, Err: domain.ErrNoRoute}
	}
	if err := d.poster.Send(ctx, action); err != nil {
		return &domain.PostFailedError{
			Source:  action.Source,
			Channel: action.Channel,
			Text:    action.Text,
			Err:     err,
		}
	}
	return nil
}
