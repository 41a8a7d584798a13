package rolesbot

import (
	"fmt"
	"time"
)

// Kind classifies an Error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindCustom carries a message meant for the user as is.
	KindCustom
	// KindInvalidRole is returned when a role reference doesn't resolve.
	KindInvalidRole
	// KindMissing is returned when the bot lacks a permission.
	KindMissing
	// KindUserMissing is returned when the invoking member lacks a permission.
	KindUserMissing
	// KindRoleRankTooHigh is returned when a role isn't below the bot's own rank.
	KindRoleRankTooHigh
	// KindUserRankTooLow is returned when a role isn't below the invoking member's rank.
	KindUserRankTooLow
	// KindMemberRankTooHigh is returned when a reacting member outranks the bot.
	KindMemberRankTooHigh
	// KindInvalidUser is returned when someone other than the author reacts to a setup message.
	KindInvalidUser
)

var kindNames = map[Kind]string{
	KindCustom:            "custom",
	KindInvalidRole:       "invalid role",
	KindMissing:           "missing permission",
	KindUserMissing:       "user missing permission",
	KindRoleRankTooHigh:   "role rank too high",
	KindUserRankTooLow:    "user rank too low",
	KindMemberRankTooHigh: "member rank too high",
	KindInvalidUser:       "invalid user",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is returned by the Guard and the role message flows. Remote API
// errors which the core acts upon are translated into an Error or a
// RetryAfterError by the platform adapter.
type Error struct {
	Kind Kind

	// Role is the unresolved reference for KindInvalidRole and the
	// role name for the rank kinds.
	Role string

	// Permission is set for KindMissing and KindUserMissing.
	Permission Permission

	// Message is set for KindCustom.
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindCustom:
		return e.Message
	case KindMissing, KindUserMissing:
		return fmt.Sprintf("%s: %s", e.Kind, e.Permission)
	case KindInvalidRole, KindRoleRankTooHigh, KindUserRankTooLow:
		return fmt.Sprintf("%s: %s", e.Kind, e.Role)
	}
	return e.Kind.String()
}

// Is matches any Error of the same kind, so the Err* values below can be
// used as targets.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidRole       = &Error{Kind: KindInvalidRole}
	ErrMissing           = &Error{Kind: KindMissing}
	ErrUserMissing       = &Error{Kind: KindUserMissing}
	ErrRoleRankTooHigh   = &Error{Kind: KindRoleRankTooHigh}
	ErrUserRankTooLow    = &Error{Kind: KindUserRankTooLow}
	ErrMemberRankTooHigh = &Error{Kind: KindMemberRankTooHigh}
	ErrInvalidUser       = &Error{Kind: KindInvalidUser}
)

// Custom returns an Error whose message is shown to the user unchanged.
func Custom(format string, args ...any) error {
	return &Error{Kind: KindCustom, Message: fmt.Sprintf(format, args...)}
}

// RetryAfterError is returned by the remote API when a request was rate
// limited. The request may be retried once After has elapsed.
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.After)
}
