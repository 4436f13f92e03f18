package domain

import (
	"strconv"
	"strings"
)

// Identity describes how the bot is addressed on one platform.
// It is built once when the platform connects and never mutated.
type Identity struct {
	Platform     string
	BotID        string
	MentionToken string // e.g. "<@U024BE7LH>" on Slack, "@phibot" on Telegram
	UserMention  string // format with a single %s for the user id, e.g. "<@%s>"

	// IDMention replaces UserMention for all-digit user ids on platforms
	// where those need a different syntax. Every %s is replaced.
	IDMention string
}

// MentionUser renders a mention of userID in the platform's syntax.
func (i Identity) MentionUser(userID string) string {
	if i.IDMention != "" && isDigits(userID) {
		return strings.ReplaceAll(i.IDMention, "%s", userID)
	}
	if i.UserMention == "" || !strings.Contains(i.UserMention, "%s") {
		return userID
	}
	return strings.Replace(i.UserMention, "%s", userID, 1)
}

// SlackIdentity builds the identity for a Slack bot user id.
func SlackIdentity(botID string) Identity {
	return Identity{
		Platform:     "slack",
		BotID:        botID,
		MentionToken: "<@" + botID + ">",
		UserMention:  "<@%s>",
	}
}

// TelegramIdentity builds the identity for a Telegram bot. Users without a
// username are addressed with a tg://user link, which the Markdown parse
// mode renders as a mention.
func TelegramIdentity(botID int64, username string) Identity {
	return Identity{
		Platform:     "telegram",
		BotID:        strconv.FormatInt(botID, 10),
		MentionToken: "@" + username,
		UserMention:  "@%s",
		IDMention:    "[%s](tg://user?id=%s)",
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
