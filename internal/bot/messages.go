package bot

// User-visible message templates. Formatting placeholders are filled with
// fmt.Sprintf at the call site.
const (
	msgWelcome       = "👋 Welcome! Choose an action"
	msgAccessRequest = "🔒 To use the VPN, request access below."
	msgRequestSent   = "✅ Your request was sent to the administrator"
	msgAccessGranted = "🎉 Your access request was approved! You can use the bot now."
	msgAccessDenied  = "🚫 Your access request was declined. Contact the administrator if you believe this is a mistake."
	msgBanned        = "🚫 You are banned and cannot use this bot."
	msgNotAuthorized = "🔒 You are not authorized to use this bot."
	msgNoPermission  = "🚫 You do not have permission to do that."
	msgGenericError  = "❌ Something went wrong. Please try again later."

	msgKeyLimitReached = "🔒 You reached your key limit. Contact support to raise it."
	msgPoolEmpty       = "❌ No keys are available right now. Please try again later."
	msgKeySent         = "🔑 Your key was sent\n\n👋 Choose an action:"
	msgKeySentFirst    = "🔑 Your key was sent\n\n📖 The setup instructions came with it.\n\n👋 Choose an action:"

	msgFirstKeyInstructions = "📖 <b>VPN setup instructions:</b>\n" +
		"- Install the WireGuard or AmneziaWG app\n" +
		"- Import the attached .conf file into the app\n"

	msgSupportOperator  = "📞 Which mobile carrier are you on?"
	msgSupportDescribe  = "📝 Describe the problem:"
	msgSupportSubmitted = "✅ Ticket %s was sent to support. We will get back to you soon."
	msgSuggestionPrompt = "📝 Write down your suggestion:"
	msgSuggestionThanks = "✅ Thank you for your suggestion!"
	msgReplyPrompt      = "✉️ Type your reply to the user:"
	msgReplySent        = "✅ Your reply was delivered."
	msgReplyFromAdmin   = "📨 Reply from the administrator:\n%s"

	msgSitePrompt        = "🌐 Enter the site URL to route outside the VPN:"
	msgSiteInvalid       = "❌ That does not look like an http(s) URL."
	msgSiteExists        = "✅ That site is already on the exception list."
	msgSiteAdded         = "✅ The site will be excluded from the tunnel within the hour."
	msgBroadcastPrompt   = "📢 Enter the message to send to all users:"
	msgBroadcastSent     = "✅ Message delivered to %d users."
	msgUploadPrompt      = "📤 Send a .zip archive with .conf files:"
	msgUploadBadName     = "❌ The file %q is not a .zip archive."
	msgUploadTooLarge    = "❌ The archive exceeds the %d MiB limit."
	msgUploadTooMany     = "❌ The archive holds too many .conf files."
	msgUploadBadArchive  = "❌ The archive could not be read."
	msgUploadDone        = "✅ Added %d new .conf files.\n✅ Replaced %d existing files."
	msgLimitPrompt       = "Enter the new key limit for this user (or \"default\" to clear the override):"
	msgLimitSet          = "✅ Key limit for user %d set to %d."
	msgLimitCleared      = "✅ Override cleared; user %d follows the global limit."
	msgLimitInvalid      = "❌ The limit must be a positive integer."
	msgGlobalLimitPrompt = "Enter the new global key limit:"
	msgGlobalLimitSet    = "✅ Global key limit set to %d."
	msgUserBanned        = "✅ User banned."
	msgUserUnbanned      = "✅ User unbanned."
	msgUserIsAuthorized  = "❌ The user holds active access and cannot be banned."
	msgNoIssuedKeys      = "❌ User %d has no issued keys."

	msgAccessRequestNotice = "🔔 New access request from %s (ID: %d).\n\nGrant access?"
	msgAccessGrantedNote   = "✅ %s: access granted"
	msgAccessDeniedNote    = "❌ %s: access declined"
)

// Button labels, used both to render keyboards and to route taps.
const (
	btnGetKey      = "🔑 Get a key"
	btnSupport     = "🛠 VPN not working"
	btnSuggest     = "💬 Suggestions"
	btnAddSite     = "🌐 Add site exception"
	btnStats       = "📊 Stats"
	btnBroadcast   = "📢 Broadcast"
	btnUpload      = "📤 Upload keys"
	btnUsers       = "👥 Manage users"
	btnGlobalLimit = "⚙️ Global key limit"
	btnBack        = "🔙 Back"
)
