// Package rolesbot assigns server roles to chat members.
//
// Members pick roles by reacting to a role message curated by a moderator,
// and newly joined members receive the server's configured autoroles.
//
// A role message starts life as a setup message: a moderator mentions the bot
// with a template containing {ROLE:<name or id>} placeholders. The bot replies
// with the template and the moderator reacts with one emoji per placeholder,
// then with a checkmark. The bot then posts the finalized message, where each
// binding is encoded as :<emoji>:[](<role id>), and only the bound emojis may
// be used as reactions.
//
// All role mutations are funnelled through a Queue which runs one actor per
// server. The actor coalesces pending actions per member and replaces each
// member's roles at most once per pass, backing off when the remote API
// returns a retry-after.
//
// Every mutation is gated by a Guard which checks the permissions and role
// rank of both the bot and the member who triggered it.
package rolesbot
