// Package bot is the Telegram transport: it turns incoming updates into
// calls on the core services and renders the results back as messages,
// documents and keyboards.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/nevskii/vpnkeybot/internal/config"
	"github.com/nevskii/vpnkeybot/internal/issuance"
	"github.com/nevskii/vpnkeybot/internal/ledger"
	"github.com/nevskii/vpnkeybot/internal/limits"
	"github.com/nevskii/vpnkeybot/internal/pool"
	"github.com/nevskii/vpnkeybot/internal/registry"
	"github.com/nevskii/vpnkeybot/internal/session"
	"github.com/nevskii/vpnkeybot/internal/sites"
	"github.com/nevskii/vpnkeybot/internal/support"
)

const updateTimeout = 30

// Bot routes Telegram updates to the core services.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	sessions *session.Store
	registry *registry.Registry
	limits   *limits.Store
	pool     *pool.Pool
	ledger   *ledger.Ledger
	issuer   *issuance.Service
	sites    *sites.List
	support  *support.Log
}

// Deps bundles everything the bot needs.
type Deps struct {
	Config   *config.Config
	Registry *registry.Registry
	Limits   *limits.Store
	Pool     *pool.Pool
	Ledger   *ledger.Ledger
	Issuer   *issuance.Service
	Sites    *sites.List
	Support  *support.Log
}

// New connects to the Telegram Bot API and builds the Bot.
func New(deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(deps.Config.BotToken)
	if err != nil {
		return nil, err
	}
	log.WithField("username", api.Self.UserName).Info("connected to telegram")

	return &Bot{
		api:      api,
		cfg:      deps.Config,
		sessions: session.NewStore(),
		registry: deps.Registry,
		limits:   deps.Limits,
		pool:     deps.Pool,
		ledger:   deps.Ledger,
		issuer:   deps.Issuer,
		sites:    deps.Sites,
		support:  deps.Support,
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(update)
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("update handler panicked")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(update.Message)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	userID := msg.From.ID
	text := strings.TrimSpace(msg.Text)

	// The back button cancels any flow from any state.
	if text == btnBack {
		b.sessions.Reset(userID)
		b.sendMenu(userID, msgWelcome)
		return
	}

	if sess := b.sessions.Get(userID); sess.State != session.Idle {
		b.handleFlowMessage(msg, sess)
		return
	}

	switch text {
	case "/start":
		b.handleStart(msg)
	case btnGetKey:
		b.handleGetKey(msg)
	case btnSupport:
		b.handleSupportStart(msg)
	case btnSuggest:
		b.handleSuggestStart(msg)
	case btnAddSite:
		b.handleAddSiteStart(msg)
	case btnStats:
		b.adminOnly(userID, b.handleStats)
	case btnUsers:
		b.adminOnly(userID, b.handleUserList)
	case btnBroadcast:
		b.adminOnly(userID, b.handleBroadcastStart)
	case btnUpload:
		b.adminOnly(userID, b.handleUploadStart)
	case btnGlobalLimit:
		b.adminOnly(userID, b.handleGlobalLimitStart)
	}
}

// handleFlowMessage routes a message according to the sender's
// conversational state.
func (b *Bot) handleFlowMessage(msg *tgbotapi.Message, sess session.Session) {
	switch sess.State {
	case session.AwaitingOperator:
		b.handleSupportOperator(msg)
	case session.AwaitingDescription:
		b.handleSupportDescription(msg, sess)
	case session.AwaitingSuggestionText:
		b.handleSuggestionText(msg)
	case session.AwaitingReplyText:
		b.handleReplyText(msg, sess)
	case session.AwaitingBroadcastText:
		b.handleBroadcastText(msg)
	case session.AwaitingLimitValue:
		b.handleLimitValue(msg, sess)
	case session.AwaitingGlobalLimit:
		b.handleGlobalLimitValue(msg)
	case session.AwaitingSiteURL:
		b.handleSiteURL(msg)
	case session.AwaitingArchive:
		b.handleArchive(msg)
	default:
		b.sessions.Reset(msg.From.ID)
	}
}

// adminOnly runs fn only for the administrator.
func (b *Bot) adminOnly(userID int64, fn func(userID int64)) {
	if !b.registry.IsAdmin(userID) {
		b.send(userID, msgNoPermission)
		return
	}
	fn(userID)
}

// send delivers a plain text message.
func (b *Bot) send(chatID int64, text string) {
	b.sendChattable(tgbotapi.NewMessage(chatID, text))
}

// sendMenu delivers text together with the main menu keyboard.
func (b *Bot) sendMenu(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenu(b.registry.IsAdmin(chatID))
	b.sendChattable(msg)
}

// sendWithBack delivers a flow prompt with the cancel keyboard.
func (b *Bot) sendWithBack(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = backKeyboard()
	b.sendChattable(msg)
}

func (b *Bot) sendChattable(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		log.WithError(err).Error("telegram send failed")
	}
}

// answerCallback acknowledges a callback query so the client stops the
// loading spinner.
func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		log.WithError(err).Error("callback answer failed")
	}
}
