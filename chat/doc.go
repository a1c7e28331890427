// Package chat contains the Twitch chat responder.
//
// The responder connects to Twitch IRC as the bot account, joins every enabled
// channel and answers messages of the form "!keyword" with the rendered
// content of the channel's command. Messages are matched to channels by the
// room id Twitch attaches to each PRIVMSG, which is the channel's user id.
//
// Credentials: the IRC client requires a bot username and an OAuth token with
// chat:read/chat:edit scopes (TWITCH_BOT_USERNAME, TWITCH_BOT_OAUTH_TOKEN).
// The responder only starts when CHAT_ENABLED is set.
package chat
