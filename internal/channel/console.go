package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"phibot/internal/domain"
)

// Console implements domain.Channel over a line-oriented reader and writer.
// Every input line is one message in channel "console"; outbound actions are
// printed. It is meant for local dry runs without a chat platform.
type Console struct {
	botName string
	author  string
	bus     domain.MessageBus
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
	outMu   sync.Mutex
	seq     int
}

type ConsoleConfig struct {
	BotName string // mention token is "@" + BotName; default "phibot"
	Author  string // author id attached to every line; default "user"
	Logger  *slog.Logger
	In      io.Reader
	Out     io.Writer
}

func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.BotName == "" {
		cfg.BotName = "phibot"
	}
	if cfg.Author == "" {
		cfg.Author = "user"
	}
	return &Console{
		botName: cfg.BotName,
		author:  cfg.Author,
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     cfg.Out,
	}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Connect(ctx context.Context) (domain.Identity, error) {
	return domain.Identity{
		Platform:     c.Name(),
		BotID:        c.botName,
		MentionToken: "@" + c.botName,
		UserMention:  "@%s",
	}, nil
}

// Start reads lines until EOF, /quit or ctx cancellation.
func (c *Console) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus
	bus.OnOutbound(c.Name(), c.Send)

	c.println(fmt.Sprintf("PHIbot console. Mention @%s to send a command. Type /quit to exit.", c.botName))

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		c.seq++
		c.bus.Publish(domain.InboundEvent{
			Source:   c.Name(),
			Channel:  "console",
			Author:   c.author,
			Text:     line,
			TS:       strconv.Itoa(c.seq),
			Received: time.Now(),
		})
	}
}

// Stop is a no-op; Start returns when the input ends.
func (c *Console) Stop() error { return nil }

func (c *Console) Send(ctx context.Context, action domain.OutboundAction) error {
	switch action.Kind {
	case domain.ActionPost, "":
		return c.println(fmt.Sprintf("[%s] %s", c.botName, action.Text))
	case domain.ActionUpdate:
		return c.println(fmt.Sprintf("[%s] (edited #%s) %s", c.botName, action.TS, action.Text))
	case domain.ActionDelete:
		return c.println(fmt.Sprintf("[%s] (deleted #%s)", c.botName, action.TS))
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedAction, action.Kind)
	}
}

func (c *Console) println(s string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := fmt.Fprintln(c.out, s)
	return err
}
