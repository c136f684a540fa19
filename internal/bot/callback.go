package bot

import (
	"strconv"
	"strings"
)

// Callback actions carried in inline-button payloads. Payloads are
// "action" or "action:userID"; the user ID is never recovered from
// display text.
const (
	cbRequestAccess = "request_access"
	cbAuthorizeYes  = "authorize:yes"
	cbAuthorizeNo   = "authorize:no"
	cbReply         = "reply"
	cbUser          = "user"
	cbBan           = "ban"
	cbUnban         = "unban"
	cbSetLimit      = "setlimit"
	cbKeys          = "keys"
	cbUserList      = "userlist"
)

// callbackData encodes an action and its target user into a payload.
func callbackData(action string, userID int64) string {
	return action + ":" + strconv.FormatInt(userID, 10)
}

// parseCallback splits a payload into action and target user ID. The ID
// is 0 when the payload carries none.
func parseCallback(data string) (action string, userID int64) {
	idx := strings.LastIndex(data, ":")
	if idx < 0 {
		return data, 0
	}
	id, err := strconv.ParseInt(data[idx+1:], 10, 64)
	if err != nil {
		return data, 0
	}
	return data[:idx], id
}
