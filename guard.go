package rolesbot

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Guard checks that a user may perform a role mutation. Errors about the
// bot itself are reported as KindMissing and KindRoleRankTooHigh, errors
// about anyone else as KindUserMissing and KindUserRankTooLow.
type Guard struct {
	auth Authority
}

func NewGuard(auth Authority) Guard {
	return Guard{auth: auth}
}

// CheckServerPermissions returns an error for the first of perms the user
// doesn't have on the server.
func (g Guard) CheckServerPermissions(ctx context.Context, serverID, userID string, perms ...Permission) error {
	have, err := g.auth.ServerPermissions(ctx, serverID, userID)
	if err != nil {
		return errors.Wrap(err, "server permissions", j.KV("user", userID))
	}
	for _, p := range perms {
		if have.Has(p) {
			continue
		}
		if userID == g.auth.BotID() {
			return &Error{Kind: KindMissing, Permission: p}
		}
		return &Error{Kind: KindUserMissing, Permission: p}
	}
	return nil
}

// CheckAboveRoles returns an error if any of the referenced roles doesn't
// resolve or isn't ranked strictly below the user.
func (g Guard) CheckAboveRoles(ctx context.Context, serverID, userID string, refs ...string) error {
	server, err := g.auth.FetchServer(ctx, serverID)
	if err != nil {
		return errors.Wrap(err, "fetch server")
	}
	member, err := g.auth.FetchMember(ctx, serverID, userID)
	if err != nil {
		return errors.Wrap(err, "fetch member", j.KV("user", userID))
	}
	rank := member.EffectiveRank(server)
	for _, ref := range refs {
		role, ok := server.RoleByIDOrName(ref)
		if !ok {
			return &Error{Kind: KindInvalidRole, Role: ref}
		}
		if role.Rank > rank {
			continue
		}
		if userID == g.auth.BotID() {
			return &Error{Kind: KindRoleRankTooHigh, Role: role.Name}
		}
		return &Error{Kind: KindUserRankTooLow, Role: role.Name}
	}
	return nil
}

// RequirePermissions checks perms for the bot and then for the user.
func (g Guard) RequirePermissions(ctx context.Context, serverID, userID string, perms ...Permission) error {
	if err := g.CheckServerPermissions(ctx, serverID, g.auth.BotID(), perms...); err != nil {
		return err
	}
	return g.CheckServerPermissions(ctx, serverID, userID, perms...)
}

// RequireAbove checks the role ranks for the bot and then for the user, so
// a role the bot can't assign is never reported as the user's fault.
func (g Guard) RequireAbove(ctx context.Context, serverID, userID string, refs ...string) error {
	if err := g.CheckAboveRoles(ctx, serverID, g.auth.BotID(), refs...); err != nil {
		return err
	}
	return g.CheckAboveRoles(ctx, serverID, userID, refs...)
}
