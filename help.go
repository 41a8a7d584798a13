package rolesbot

import "strings"

const helpTemplate = `**Reaction roles**
Mention me with a message containing role placeholders:
` + "`" + `{mention} Pick a team: {ROLE:Red} or {ROLE:Blue}` + "`" + `
React to my reply with one emoji per placeholder, in order, then react with ✅.
I'll replace the reply with a message members can react to for roles.

Start the message with ` + "`exclusive`" + ` to allow only one of the roles at a time,
or with ` + "`formatted`" + ` to leave out the role names after each emoji.

**Commands**
` + "`{mention} autorole`" + ` roles given to new members
` + "`{mention} colour`" + ` set a role's colour`

const autoroleHelpTemplate = `**AutoRole**
` + "`{mention} autorole <role> [<role>...]`" + ` gives new members these roles, up to 25.
` + "`{mention} autorole clear`" + ` stops giving roles to new members.
Requires the ` + "`AssignRoles`" + ` and ` + "`ManageServer`" + ` permissions.`

const colourHelpTemplate = `**Colour**
` + "`{mention} colour <role> <colour>`" + ` sets the role's colour.
Give two or more colours for a gradient, e.g. ` + "`{mention} colour Red #ff0000 #800000`" + `
Leave out the colour to clear it.
Requires the ` + "`ManageRole`" + ` permission.`

func withMention(tmpl, botID string) string {
	return strings.ReplaceAll(tmpl, "{mention}", Mention(botID))
}

func helpText(botID string) string {
	return withMention(helpTemplate, botID)
}

func autoroleHelpText(botID string) string {
	return withMention(autoroleHelpTemplate, botID)
}

func colourHelpText(botID string) string {
	return withMention(colourHelpTemplate, botID)
}
