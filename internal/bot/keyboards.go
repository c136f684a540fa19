package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// mainMenu is the persistent reply keyboard. Admin rows appear only for
// the administrator.
func mainMenu(isAdmin bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnGetKey)),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSupport),
			tgbotapi.NewKeyboardButton(btnSuggest),
		),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAddSite)),
	}
	if isAdmin {
		rows = append(rows,
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(btnStats),
				tgbotapi.NewKeyboardButton(btnUsers),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(btnBroadcast),
				tgbotapi.NewKeyboardButton(btnUpload),
			),
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnGlobalLimit)),
		)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// backKeyboard offers only the cancel button, shown during every
// multi-step flow.
func backKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBack)),
	)
	kb.ResizeKeyboard = true
	return kb
}

// accessRequestKeyboard is shown to unauthorized users.
func accessRequestKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔓 Request access", cbRequestAccess),
		),
	)
}

// authorizeKeyboard is attached to the admin's access-request notice.
func authorizeKeyboard(userID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Yes", callbackData(cbAuthorizeYes, userID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ No", callbackData(cbAuthorizeNo, userID)),
		),
	)
}

// replyKeyboard is attached to support tickets relayed to the admin.
func replyKeyboard(userID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✉️ Reply", callbackData(cbReply, userID)),
		),
	)
}

// userListKeyboard renders one button per known user for the management
// view. Labels carry the display name; the payload carries the ID.
func userListKeyboard(entries []userListEntry) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(entries))
	for _, e := range entries {
		label := fmt.Sprintf("%s (%d)", e.Name, e.UserID)
		if e.Banned {
			label = "🚫 " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackData(cbUser, e.UserID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// userActionsKeyboard renders the per-user management card actions.
func userActionsKeyboard(userID int64, banned bool) tgbotapi.InlineKeyboardMarkup {
	banButton := tgbotapi.NewInlineKeyboardButtonData("🚫 Ban", callbackData(cbBan, userID))
	if banned {
		banButton = tgbotapi.NewInlineKeyboardButtonData("♻️ Unban", callbackData(cbUnban, userID))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(banButton),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚙️ Key limit", callbackData(cbSetLimit, userID)),
			tgbotapi.NewInlineKeyboardButtonData("🔑 Issued keys", callbackData(cbKeys, userID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 To the list", cbUserList),
		),
	)
}
