package bot

import (
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/nevskii/vpnkeybot/internal/issuance"
	"github.com/nevskii/vpnkeybot/internal/pool"
	"github.com/nevskii/vpnkeybot/internal/session"
	"github.com/nevskii/vpnkeybot/internal/sites"
)

func (b *Bot) handleStart(msg *tgbotapi.Message) {
	userID := msg.From.ID

	banned, err := b.registry.IsBanned(userID)
	if err != nil {
		log.WithError(err).Error("ban check failed")
		b.send(userID, msgGenericError)
		return
	}
	if banned {
		b.send(userID, msgBanned)
		return
	}

	authorized, err := b.registry.IsAuthorized(userID)
	if err != nil {
		log.WithError(err).Error("authorization check failed")
		b.send(userID, msgGenericError)
		return
	}
	if !authorized {
		b.sendAccessRequest(userID)
		return
	}
	b.sendMenu(userID, msgWelcome)
}

func (b *Bot) sendAccessRequest(userID int64) {
	out := tgbotapi.NewMessage(userID, msgAccessRequest)
	out.ReplyMarkup = accessRequestKeyboard()
	b.sendChattable(out)
}

func (b *Bot) handleGetKey(msg *tgbotapi.Message) {
	userID := msg.From.ID
	name := userDisplayName(msg.From)

	deliver := func(cred pool.Credential, firstKey bool) error {
		doc := tgbotapi.NewDocument(userID, tgbotapi.FileBytes{
			Name:  cred.Filename,
			Bytes: cred.Payload,
		})
		if firstKey {
			doc.Caption = msgFirstKeyInstructions
			doc.ParseMode = tgbotapi.ModeHTML
		}
		_, err := b.api.Send(doc)
		return err
	}

	result, err := b.issuer.Issue(userID, name, deliver)
	switch {
	case err == nil:
		if result.FirstKey {
			b.sendMenu(userID, msgKeySentFirst)
		} else {
			b.sendMenu(userID, msgKeySent)
		}
	case errors.Is(err, issuance.ErrForbidden):
		b.send(userID, msgBanned)
	case errors.Is(err, issuance.ErrUnauthorized):
		b.sendAccessRequest(userID)
	case errors.Is(err, issuance.ErrQuotaExceeded):
		b.send(userID, msgKeyLimitReached)
	case errors.Is(err, issuance.ErrPoolExhausted):
		b.send(userID, msgPoolEmpty)
		b.send(b.registry.AdminID(), "⚠️ The key pool is empty.")
	default:
		log.WithError(err).WithField("user_id", userID).Error("issuance failed")
		b.send(userID, msgGenericError)
	}
}

// Support flow: carrier question, then the problem description.

func (b *Bot) handleSupportStart(msg *tgbotapi.Message) {
	b.sessions.SetState(msg.From.ID, session.AwaitingOperator)
	b.sendWithBack(msg.From.ID, msgSupportOperator)
}

func (b *Bot) handleSupportOperator(msg *tgbotapi.Message) {
	operator := msg.Text
	b.sessions.Update(msg.From.ID, func(s *session.Session) {
		s.Operator = operator
		s.State = session.AwaitingDescription
	})
	b.sendWithBack(msg.From.ID, msgSupportDescribe)
}

func (b *Bot) handleSupportDescription(msg *tgbotapi.Message, sess session.Session) {
	userID := msg.From.ID
	name := userDisplayName(msg.From)

	ticket, err := b.support.NewIssue(userID, name, sess.Operator, msg.Text)
	if err != nil {
		log.WithError(err).Error("support ticket persist failed")
		b.send(userID, msgGenericError)
		return
	}

	notice := tgbotapi.NewMessage(b.registry.AdminID(), fmt.Sprintf(
		"🛠 Support ticket %s\nFrom: %s (ID: %d)\nCarrier: %s\n\n%s",
		ticket.ID, name, userID, sess.Operator, msg.Text))
	notice.ReplyMarkup = replyKeyboard(userID)
	b.sendChattable(notice)

	b.sessions.Reset(userID)
	b.sendMenu(userID, fmt.Sprintf(msgSupportSubmitted, ticket.ID))
}

// Suggestion flow.

func (b *Bot) handleSuggestStart(msg *tgbotapi.Message) {
	b.sessions.SetState(msg.From.ID, session.AwaitingSuggestionText)
	b.sendWithBack(msg.From.ID, msgSuggestionPrompt)
}

func (b *Bot) handleSuggestionText(msg *tgbotapi.Message) {
	userID := msg.From.ID
	name := userDisplayName(msg.From)

	ticket, err := b.support.NewSuggestion(userID, name, msg.Text)
	if err != nil {
		log.WithError(err).Error("suggestion persist failed")
		b.send(userID, msgGenericError)
		return
	}

	notice := tgbotapi.NewMessage(b.registry.AdminID(), fmt.Sprintf(
		"💬 Suggestion %s from %s (ID: %d):\n\n%s", ticket.ID, name, userID, msg.Text))
	notice.ReplyMarkup = replyKeyboard(userID)
	b.sendChattable(notice)

	b.sessions.Reset(userID)
	b.sendMenu(userID, msgSuggestionThanks)
}

// Site exception flow.

func (b *Bot) handleAddSiteStart(msg *tgbotapi.Message) {
	b.sessions.SetState(msg.From.ID, session.AwaitingSiteURL)
	b.sendWithBack(msg.From.ID, msgSitePrompt)
}

func (b *Bot) handleSiteURL(msg *tgbotapi.Message) {
	userID := msg.From.ID

	added, err := b.sites.Add(msg.Text)
	switch {
	case errors.Is(err, sites.ErrInvalidURL):
		// Stay in the flow so the user can retry.
		b.sendWithBack(userID, msgSiteInvalid)
		return
	case err != nil:
		log.WithError(err).Error("site exception persist failed")
		b.send(userID, msgGenericError)
		return
	}

	b.sessions.Reset(userID)
	if !added {
		b.sendMenu(userID, msgSiteExists)
		return
	}
	b.send(b.registry.AdminID(), fmt.Sprintf(
		"🌐 New site exception from %s (ID: %d): %s", userDisplayName(msg.From), userID, msg.Text))
	b.sendMenu(userID, msgSiteAdded)
}
