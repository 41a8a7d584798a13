package rolesbot

import "strconv"

// Permission is a single permission bit.
type Permission uint64

// Permissions is a set of Permission bits.
type Permissions uint64

const (
	ManageChannel       Permission = 1 << 0
	ManageServer        Permission = 1 << 1
	ManagePermissions   Permission = 1 << 2
	ManageRole          Permission = 1 << 3
	ManageCustomisation Permission = 1 << 4
	KickMembers         Permission = 1 << 6
	BanMembers          Permission = 1 << 7
	TimeoutMembers      Permission = 1 << 8
	AssignRoles         Permission = 1 << 9
	ChangeNickname      Permission = 1 << 10
	ManageNicknames     Permission = 1 << 11
	ChangeAvatar        Permission = 1 << 12
	RemoveAvatars       Permission = 1 << 13
	ViewChannel         Permission = 1 << 20
	ReadMessageHistory  Permission = 1 << 21
	SendMessage         Permission = 1 << 22
	ManageMessages      Permission = 1 << 23
	ManageWebhooks      Permission = 1 << 24
	InviteOthers        Permission = 1 << 25
	SendEmbeds          Permission = 1 << 26
	UploadFiles         Permission = 1 << 27
	Masquerade          Permission = 1 << 28
	React               Permission = 1 << 29
)

// AllPermissions is held by server owners.
const AllPermissions Permissions = 1<<30 - 1

var permissionNames = map[Permission]string{
	ManageChannel:       "ManageChannel",
	ManageServer:        "ManageServer",
	ManagePermissions:   "ManagePermissions",
	ManageRole:          "ManageRole",
	ManageCustomisation: "ManageCustomisation",
	KickMembers:         "KickMembers",
	BanMembers:          "BanMembers",
	TimeoutMembers:      "TimeoutMembers",
	AssignRoles:         "AssignRoles",
	ChangeNickname:      "ChangeNickname",
	ManageNicknames:     "ManageNicknames",
	ChangeAvatar:        "ChangeAvatar",
	RemoveAvatars:       "RemoveAvatars",
	ViewChannel:         "ViewChannel",
	ReadMessageHistory:  "ReadMessageHistory",
	SendMessage:         "SendMessage",
	ManageMessages:      "ManageMessages",
	ManageWebhooks:      "ManageWebhooks",
	InviteOthers:        "InviteOthers",
	SendEmbeds:          "SendEmbeds",
	UploadFiles:         "UploadFiles",
	Masquerade:          "Masquerade",
	React:               "React",
}

func (p Permission) String() string {
	if s, ok := permissionNames[p]; ok {
		return s
	}
	return "Permission(" + strconv.FormatUint(uint64(p), 10) + ")"
}

// ParsePermission returns the permission with the given name as reported
// by the remote API.
func ParsePermission(name string) (Permission, bool) {
	for p, n := range permissionNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

// Of returns a set holding the given permissions.
func Of(perms ...Permission) Permissions {
	var ps Permissions
	for _, p := range perms {
		ps |= Permissions(p)
	}
	return ps
}

func (ps Permissions) Has(p Permission) bool {
	return ps&Permissions(p) == Permissions(p)
}
