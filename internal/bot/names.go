package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// unknownName is shown whenever a user's display name cannot be resolved.
// It is a placeholder, never persisted as a real name.
const unknownName = "name unknown"

// displayName builds a human-readable name from Telegram profile fields,
// preferring the @username handle.
func displayName(username, firstName, lastName string) string {
	if username != "" {
		return "@" + username
	}
	full := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	if full == "" {
		return unknownName
	}
	return full
}

// userDisplayName resolves a display name from an incoming message sender.
func userDisplayName(from *tgbotapi.User) string {
	if from == nil {
		return unknownName
	}
	return displayName(from.UserName, from.FirstName, from.LastName)
}

// lookupDisplayName resolves a display name for a user the bot is not
// currently talking to, falling back to the placeholder when the profile
// cannot be fetched.
func (b *Bot) lookupDisplayName(userID int64) string {
	chat, err := b.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: userID},
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("display name lookup failed")
		return unknownName
	}
	return displayName(chat.UserName, chat.FirstName, chat.LastName)
}
