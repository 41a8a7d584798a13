package rolesbot

import (
	"context"
	"fmt"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// errorText returns the text shown to a user for e. It returns false for
// errors that aren't reported to anyone.
func errorText(e *Error) (string, bool) {
	switch e.Kind {
	case KindCustom:
		return e.Message, true
	case KindInvalidRole:
		return "Role not found!\n`" + e.Role + "`", true
	case KindMissing:
		return fmt.Sprintf("I'm missing the `%s` permission!", e.Permission), true
	case KindUserMissing:
		return fmt.Sprintf("You're missing the `%s` permission!", e.Permission), true
	case KindRoleRankTooHigh:
		return "I can only assign roles ranked below my own!\n`" + e.Role + "`", true
	case KindUserRankTooLow:
		return "You can only use roles ranked below your own!\n`" + e.Role + "`", true
	case KindMemberRankTooHigh:
		return "I can't change the roles of members ranked above me!", true
	}
	return "", false
}

// sendDM reports an error to a user in a direct message, naming the server
// of the channel the error happened in.
func (b *Bot) sendDM(ctx context.Context, userID, channelID, text string) {
	name := "Unknown"
	if server, ok, err := b.serverOf(ctx, channelID); err == nil && ok {
		name = server.Name
	}

	dm, err := b.platform.OpenDM(ctx, userID)
	if err != nil {
		// NoReturnErr: The user can't be reached.
		b.options.Log.Error(ctx, errors.Wrap(err, "open dm", j.KV("user", userID)))
		return
	}
	content := "Server: " + name + "\nError: " + text
	if err := b.send(ctx, dm.ID, content); err != nil {
		// NoReturnErr: The user can't be reached.
		b.options.Log.Error(ctx, err)
	}
}
