package bot

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/nevskii/vpnkeybot/internal/limits"
	"github.com/nevskii/vpnkeybot/internal/pool"
	"github.com/nevskii/vpnkeybot/internal/session"
)

func (b *Bot) handleStats(adminID int64) {
	stats, err := b.issuer.Stats()
	if err != nil {
		log.WithError(err).Error("stats query failed")
		b.send(adminID, msgGenericError)
		return
	}
	global, err := b.limits.GlobalLimit()
	if err != nil {
		log.WithError(err).Error("global limit query failed")
		b.send(adminID, msgGenericError)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Keys remaining: %d\n", stats.Remaining)
	fmt.Fprintf(&sb, "🔑 Keys issued: %d\n", stats.TotalIssued)
	fmt.Fprintf(&sb, "⚙️ Global key limit: %d\n", global)

	authorized, err := b.registry.Authorized()
	if err != nil {
		log.WithError(err).Error("roster query failed")
		b.send(adminID, msgGenericError)
		return
	}
	fmt.Fprintf(&sb, "\n👥 Authorized users: %d\n", len(authorized))
	for _, id := range authorized {
		used, errUsed := b.ledger.CountFor(id)
		if errUsed != nil {
			log.WithError(errUsed).WithField("user_id", id).Warn("issued count lookup failed")
		}
		limit, errLimit := b.limits.EffectiveLimit(id)
		if errLimit != nil {
			limit = global
		}
		fmt.Fprintf(&sb, "  %s (%d): %d/%d keys\n", b.lookupDisplayName(id), id, used, limit)
	}

	banned, err := b.registry.Banned()
	if err != nil {
		log.WithError(err).Error("roster query failed")
		b.send(adminID, msgGenericError)
		return
	}
	fmt.Fprintf(&sb, "\n🚫 Banned users: %d\n", len(banned))
	for _, id := range banned {
		fmt.Fprintf(&sb, "  %s (%d)\n", b.lookupDisplayName(id), id)
	}

	b.send(adminID, sb.String())
}

// userListEntry is one row of the management view.
type userListEntry struct {
	UserID int64
	Name   string
	Banned bool
}

func (b *Bot) buildUserList() ([]userListEntry, error) {
	authorized, err := b.registry.Authorized()
	if err != nil {
		return nil, err
	}
	banned, err := b.registry.Banned()
	if err != nil {
		return nil, err
	}

	entries := make([]userListEntry, 0, len(authorized)+len(banned))
	seen := make(map[int64]bool, len(authorized)+len(banned))
	for _, id := range authorized {
		entries = append(entries, userListEntry{UserID: id, Name: b.lookupDisplayName(id)})
		seen[id] = true
	}
	for _, id := range banned {
		if seen[id] {
			continue
		}
		entries = append(entries, userListEntry{UserID: id, Name: b.lookupDisplayName(id), Banned: true})
	}
	return entries, nil
}

func (b *Bot) handleUserList(adminID int64) {
	entries, err := b.buildUserList()
	if err != nil {
		log.WithError(err).Error("roster query failed")
		b.send(adminID, msgGenericError)
		return
	}
	if len(entries) == 0 {
		b.send(adminID, "👥 No users yet.")
		return
	}
	out := tgbotapi.NewMessage(adminID, "👥 Pick a user:")
	out.ReplyMarkup = userListKeyboard(entries)
	b.sendChattable(out)
}

// showUserCard sends the per-user management card.
func (b *Bot) showUserCard(adminID, userID int64) {
	banned, err := b.registry.IsBanned(userID)
	if err != nil {
		log.WithError(err).Error("ban check failed")
		b.send(adminID, msgGenericError)
		return
	}
	used, err := b.ledger.CountFor(userID)
	if err != nil {
		log.WithError(err).Error("issued count lookup failed")
		b.send(adminID, msgGenericError)
		return
	}
	limit, err := b.limits.EffectiveLimit(userID)
	if err != nil {
		log.WithError(err).Error("limit lookup failed")
		b.send(adminID, msgGenericError)
		return
	}

	status := "authorized"
	if banned {
		status = "banned"
	}
	text := fmt.Sprintf("👤 %s\nID: %d\nStatus: %s\nKeys: %d/%d",
		b.lookupDisplayName(userID), userID, status, used, limit)

	out := tgbotapi.NewMessage(adminID, text)
	out.ReplyMarkup = userActionsKeyboard(userID, banned)
	b.sendChattable(out)
}

// Broadcast flow.

func (b *Bot) handleBroadcastStart(adminID int64) {
	b.sessions.SetState(adminID, session.AwaitingBroadcastText)
	b.sendWithBack(adminID, msgBroadcastPrompt)
}

func (b *Bot) handleBroadcastText(msg *tgbotapi.Message) {
	adminID := msg.From.ID

	authorized, err := b.registry.Authorized()
	if err != nil {
		log.WithError(err).Error("roster query failed")
		b.send(adminID, msgGenericError)
		return
	}

	delivered := 0
	for _, id := range authorized {
		if id == adminID {
			continue
		}
		if _, errSend := b.api.Send(tgbotapi.NewMessage(id, msg.Text)); errSend != nil {
			log.WithError(errSend).WithField("user_id", id).Warn("broadcast delivery failed")
			continue
		}
		delivered++
	}

	b.sessions.Reset(adminID)
	b.sendMenu(adminID, fmt.Sprintf(msgBroadcastSent, delivered))
}

// Archive upload flow.

func (b *Bot) handleUploadStart(adminID int64) {
	b.sessions.SetState(adminID, session.AwaitingArchive)
	b.sendWithBack(adminID, msgUploadPrompt)
}

func (b *Bot) handleArchive(msg *tgbotapi.Message) {
	adminID := msg.From.ID
	doc := msg.Document
	if doc == nil {
		b.sendWithBack(adminID, msgUploadPrompt)
		return
	}
	if !strings.HasSuffix(strings.ToLower(doc.FileName), ".zip") {
		b.sendWithBack(adminID, fmt.Sprintf(msgUploadBadName, doc.FileName))
		return
	}
	if int64(doc.FileSize) > b.cfg.MaxArchiveSize() {
		b.sendWithBack(adminID, fmt.Sprintf(msgUploadTooLarge, b.cfg.Ingest.MaxArchiveSizeMiB))
		return
	}

	data, err := b.downloadFile(doc.FileID)
	if err != nil {
		log.WithError(err).Error("archive download failed")
		b.send(adminID, msgGenericError)
		return
	}

	added, replaced, err := b.pool.IngestArchive(data)
	switch {
	case errors.Is(err, pool.ErrArchiveTooLarge):
		b.sendWithBack(adminID, fmt.Sprintf(msgUploadTooLarge, b.cfg.Ingest.MaxArchiveSizeMiB))
		return
	case errors.Is(err, pool.ErrTooManyEntries):
		b.sendWithBack(adminID, msgUploadTooMany)
		return
	case errors.Is(err, pool.ErrBadArchive):
		b.sendWithBack(adminID, msgUploadBadArchive)
		return
	case err != nil:
		log.WithError(err).Error("archive ingest failed")
		b.send(adminID, msgGenericError)
		return
	}

	b.sessions.Reset(adminID)
	b.sendMenu(adminID, fmt.Sprintf(msgUploadDone, added, replaced))
}

func (b *Bot) downloadFile(fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file: status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, b.cfg.MaxArchiveSize()+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Limit flows.

func (b *Bot) handleGlobalLimitStart(adminID int64) {
	current, err := b.limits.GlobalLimit()
	if err != nil {
		log.WithError(err).Error("global limit query failed")
		b.send(adminID, msgGenericError)
		return
	}
	b.sessions.SetState(adminID, session.AwaitingGlobalLimit)
	b.sendWithBack(adminID, fmt.Sprintf("Current global limit: %d.\n%s", current, msgGlobalLimitPrompt))
}

func (b *Bot) handleGlobalLimitValue(msg *tgbotapi.Message) {
	adminID := msg.From.ID

	n, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil {
		b.sendWithBack(adminID, msgLimitInvalid)
		return
	}
	if err = b.limits.SetGlobalLimit(n); err != nil {
		if errors.Is(err, limits.ErrInvalidLimit) {
			b.sendWithBack(adminID, msgLimitInvalid)
			return
		}
		log.WithError(err).Error("global limit update failed")
		b.send(adminID, msgGenericError)
		return
	}

	b.sessions.Reset(adminID)
	b.sendMenu(adminID, fmt.Sprintf(msgGlobalLimitSet, n))
}

func (b *Bot) handleLimitValue(msg *tgbotapi.Message, sess session.Session) {
	adminID := msg.From.ID
	target := sess.SelectedUserID
	text := strings.TrimSpace(msg.Text)

	if strings.EqualFold(text, "default") {
		if err := b.limits.ClearUserLimit(target); err != nil {
			log.WithError(err).Error("limit override clear failed")
			b.send(adminID, msgGenericError)
			return
		}
		b.sessions.Reset(adminID)
		b.sendMenu(adminID, fmt.Sprintf(msgLimitCleared, target))
		return
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		b.sendWithBack(adminID, msgLimitPrompt)
		return
	}
	if err = b.limits.SetUserLimit(target, n); err != nil {
		if errors.Is(err, limits.ErrInvalidLimit) {
			b.sendWithBack(adminID, msgLimitInvalid)
			return
		}
		log.WithError(err).Error("limit override update failed")
		b.send(adminID, msgGenericError)
		return
	}

	b.sessions.Reset(adminID)
	b.sendMenu(adminID, fmt.Sprintf(msgLimitSet, target, n))
}

// Callback routing.

func (b *Bot) handleCallback(cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	userID := cq.From.ID
	action, targetID := parseCallback(cq.Data)

	if action == cbRequestAccess {
		b.handleAccessRequest(cq)
		return
	}

	if !b.registry.IsAdmin(userID) {
		b.answerCallbackAlert(cq.ID, msgNoPermission)
		return
	}

	switch action {
	case cbAuthorizeYes:
		b.handleAuthorize(cq, targetID, true)
	case cbAuthorizeNo:
		b.handleAuthorize(cq, targetID, false)
	case cbReply:
		b.sessions.Update(userID, func(s *session.Session) {
			s.ReplyToID = targetID
			s.State = session.AwaitingReplyText
		})
		b.sendWithBack(userID, msgReplyPrompt)
		b.answerCallback(cq.ID, "")
	case cbUserList:
		b.handleUserList(userID)
		b.answerCallback(cq.ID, "")
	case cbUser:
		b.showUserCard(userID, targetID)
		b.answerCallback(cq.ID, "")
	case cbBan:
		b.handleBanUser(cq, targetID)
	case cbUnban:
		b.handleUnbanUser(cq, targetID)
	case cbSetLimit:
		b.sessions.Update(userID, func(s *session.Session) {
			s.SelectedUserID = targetID
			s.State = session.AwaitingLimitValue
		})
		b.sendWithBack(userID, msgLimitPrompt)
		b.answerCallback(cq.ID, "")
	case cbKeys:
		b.handleIssuedKeys(cq, targetID)
	default:
		b.answerCallback(cq.ID, "")
	}
}

func (b *Bot) handleAccessRequest(cq *tgbotapi.CallbackQuery) {
	userID := cq.From.ID

	banned, err := b.registry.IsBanned(userID)
	if err != nil {
		log.WithError(err).Error("ban check failed")
		b.answerCallbackAlert(cq.ID, msgGenericError)
		return
	}
	if banned {
		b.answerCallbackAlert(cq.ID, msgBanned)
		return
	}
	authorized, err := b.registry.IsAuthorized(userID)
	if err != nil {
		log.WithError(err).Error("authorization check failed")
		b.answerCallbackAlert(cq.ID, msgGenericError)
		return
	}
	if authorized {
		b.answerCallback(cq.ID, "")
		b.sendMenu(userID, msgWelcome)
		return
	}

	name := userDisplayName(cq.From)
	notice := tgbotapi.NewMessage(b.registry.AdminID(), fmt.Sprintf(msgAccessRequestNotice, name, userID))
	notice.ReplyMarkup = authorizeKeyboard(userID)
	b.sendChattable(notice)

	b.answerCallback(cq.ID, "")
	b.send(userID, msgRequestSent)
}

func (b *Bot) handleAuthorize(cq *tgbotapi.CallbackQuery, targetID int64, approve bool) {
	name := b.lookupDisplayName(targetID)

	if approve {
		if err := b.registry.Grant(targetID); err != nil {
			log.WithError(err).WithField("user_id", targetID).Error("access grant failed")
			b.answerCallbackAlert(cq.ID, msgGenericError)
			return
		}
		b.editNotice(cq, fmt.Sprintf(msgAccessGrantedNote, name))
		out := tgbotapi.NewMessage(targetID, msgAccessGranted)
		out.ReplyMarkup = mainMenu(false)
		b.sendChattable(out)
	} else {
		if err := b.registry.Deny(targetID); err != nil {
			log.WithError(err).WithField("user_id", targetID).Error("access deny failed")
			b.answerCallbackAlert(cq.ID, msgGenericError)
			return
		}
		b.editNotice(cq, fmt.Sprintf(msgAccessDeniedNote, name))
		b.send(targetID, msgAccessDenied)
	}
	b.answerCallback(cq.ID, "")
}

func (b *Bot) handleBanUser(cq *tgbotapi.CallbackQuery, targetID int64) {
	// Banning from the card is refused while the user holds standing
	// authorization; declining an access request is the other ban path.
	authorized, err := b.registry.IsAuthorized(targetID)
	if err != nil {
		log.WithError(err).Error("authorization check failed")
		b.answerCallbackAlert(cq.ID, msgGenericError)
		return
	}
	if authorized {
		b.answerCallbackAlert(cq.ID, msgUserIsAuthorized)
		return
	}
	if err = b.registry.Deny(targetID); err != nil {
		log.WithError(err).WithField("user_id", targetID).Error("ban failed")
		b.answerCallbackAlert(cq.ID, msgGenericError)
		return
	}
	b.answerCallback(cq.ID, msgUserBanned)
	b.showUserCard(cq.From.ID, targetID)
}

func (b *Bot) handleUnbanUser(cq *tgbotapi.CallbackQuery, targetID int64) {
	if err := b.registry.Unban(targetID); err != nil {
		log.WithError(err).WithField("user_id", targetID).Error("unban failed")
		b.answerCallbackAlert(cq.ID, msgGenericError)
		return
	}
	b.answerCallback(cq.ID, msgUserUnbanned)
	b.showUserCard(cq.From.ID, targetID)
}

func (b *Bot) handleIssuedKeys(cq *tgbotapi.CallbackQuery, targetID int64) {
	names, err := b.ledger.EventsFor(targetID)
	if err != nil {
		log.WithError(err).Error("ledger query failed")
		b.answerCallbackAlert(cq.ID, msgGenericError)
		return
	}
	if len(names) == 0 {
		b.answerCallbackAlert(cq.ID, fmt.Sprintf(msgNoIssuedKeys, targetID))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔑 Keys issued to %d:\n", targetID)
	for i, name := range names {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, name)
	}
	b.answerCallback(cq.ID, "")
	b.send(cq.From.ID, sb.String())
}

// handleReplyText forwards the admin's reply to the ticket author.
func (b *Bot) handleReplyText(msg *tgbotapi.Message, sess session.Session) {
	adminID := msg.From.ID

	if _, err := b.api.Send(tgbotapi.NewMessage(sess.ReplyToID, fmt.Sprintf(msgReplyFromAdmin, msg.Text))); err != nil {
		log.WithError(err).WithField("user_id", sess.ReplyToID).Error("reply delivery failed")
		b.send(adminID, msgGenericError)
		return
	}
	b.sessions.Reset(adminID)
	b.sendMenu(adminID, msgReplySent)
}

// editNotice replaces the text of the inline-keyboard message that
// triggered cq, dropping the keyboard.
func (b *Bot) editNotice(cq *tgbotapi.CallbackQuery, text string) {
	if cq.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID, text)
	if _, err := b.api.Request(edit); err != nil {
		log.WithError(err).Error("notice edit failed")
	}
}

func (b *Bot) answerCallbackAlert(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(id, text)); err != nil {
		log.WithError(err).Error("callback answer failed")
	}
}
