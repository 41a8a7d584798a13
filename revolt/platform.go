package revolt

import (
	"context"
	"net/http"
	"net/url"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/luno/rolesbot"
)

func (c *Client) BotID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self.ID
}

func (c *Client) fetchUser(ctx context.Context, id string) (user, error) {
	if u, ok := c.cache.user(id); ok {
		return u, nil
	}
	var u user
	err := c.do(ctx, "fetch_user", http.MethodGet, "/users/"+url.PathEscape(id), nil, &u)
	if err != nil {
		return user{}, errors.Wrap(err, "fetch user", j.KV("user", id))
	}
	c.cache.putUser(u)
	return u, nil
}

func (c *Client) fetchServer(ctx context.Context, id string) (server, error) {
	if s, ok := c.cache.server(id); ok {
		return s, nil
	}
	var s server
	err := c.do(ctx, "fetch_server", http.MethodGet, "/servers/"+url.PathEscape(id), nil, &s)
	if err != nil {
		return server{}, errors.Wrap(err, "fetch server", j.KV("server", id))
	}
	c.cache.putServer(s)
	return s, nil
}

func (c *Client) fetchChannel(ctx context.Context, id string) (channel, error) {
	if ch, ok := c.cache.channel(id); ok {
		return ch, nil
	}
	var ch channel
	err := c.do(ctx, "fetch_channel", http.MethodGet, "/channels/"+url.PathEscape(id), nil, &ch)
	if err != nil {
		return channel{}, errors.Wrap(err, "fetch channel", j.KV("channel", id))
	}
	c.cache.putChannel(ch)
	return ch, nil
}

func (c *Client) fetchMember(ctx context.Context, serverID, userID string) (member, error) {
	var m member
	path := "/servers/" + url.PathEscape(serverID) + "/members/" + url.PathEscape(userID)
	if err := c.do(ctx, "fetch_member", http.MethodGet, path, nil, &m); err != nil {
		return member{}, errors.Wrap(err, "fetch member", j.MKV{"server": serverID, "user": userID})
	}
	return m, nil
}

func (c *Client) FetchUser(ctx context.Context, userID string) (rolesbot.User, error) {
	u, err := c.fetchUser(ctx, userID)
	if err != nil {
		return rolesbot.User{}, err
	}
	return u.toUser(), nil
}

func (c *Client) FetchServer(ctx context.Context, serverID string) (rolesbot.Server, error) {
	s, err := c.fetchServer(ctx, serverID)
	if err != nil {
		return rolesbot.Server{}, err
	}
	return s.toServer(), nil
}

func (c *Client) FetchChannel(ctx context.Context, channelID string) (rolesbot.Channel, error) {
	ch, err := c.fetchChannel(ctx, channelID)
	if err != nil {
		return rolesbot.Channel{}, err
	}
	return ch.toChannel(), nil
}

func (c *Client) FetchMember(ctx context.Context, serverID, userID string) (rolesbot.Member, error) {
	m, err := c.fetchMember(ctx, serverID, userID)
	if err != nil {
		return rolesbot.Member{}, err
	}
	return m.toMember(), nil
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (rolesbot.Message, error) {
	var m message
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	if err := c.do(ctx, "fetch_message", http.MethodGet, path, nil, &m); err != nil {
		return rolesbot.Message{}, errors.Wrap(err, "fetch message", j.KV("message", messageID))
	}
	return m.toMessage(), nil
}

func (c *Client) ServerPermissions(ctx context.Context, serverID, userID string) (rolesbot.Permissions, error) {
	s, err := c.fetchServer(ctx, serverID)
	if err != nil {
		return 0, err
	}
	if userID == s.Owner {
		return rolesbot.AllPermissions, nil
	}
	m, err := c.fetchMember(ctx, serverID, userID)
	if err != nil {
		return 0, err
	}
	return serverPermissions(s, m), nil
}

func (c *Client) ChannelPermissions(ctx context.Context, channelID, userID string) (rolesbot.Permissions, error) {
	ch, err := c.fetchChannel(ctx, channelID)
	if err != nil {
		return 0, err
	}
	if ch.Server == "" {
		return channelPermissions(ch, server{}, member{}, userID), nil
	}
	s, err := c.fetchServer(ctx, ch.Server)
	if err != nil {
		return 0, err
	}
	if userID == s.Owner {
		return rolesbot.AllPermissions, nil
	}
	m, err := c.fetchMember(ctx, ch.Server, userID)
	if err != nil {
		return 0, err
	}
	return channelPermissions(ch, s, m, userID), nil
}

func (c *Client) ReplaceMemberRoles(ctx context.Context, serverID, userID string, roles rolesbot.RoleSet) error {
	body := editMember{Roles: roles.Slice()}
	path := "/servers/" + url.PathEscape(serverID) + "/members/" + url.PathEscape(userID)
	return c.do(ctx, "edit_member", http.MethodPatch, path, body, nil)
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg rolesbot.OutgoingMessage) (rolesbot.Message, error) {
	body := sendMessage{Content: msg.Content}
	if msg.ReplyTo != "" {
		body.Replies = []replyIntent{{ID: msg.ReplyTo}}
	}
	if len(msg.Reactions) > 0 || msg.RestrictReactions {
		body.Interactions = &interactions{
			Reactions:         msg.Reactions,
			RestrictReactions: msg.RestrictReactions,
		}
	}

	var m message
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	if err := c.do(ctx, "send_message", http.MethodPost, path, body, &m); err != nil {
		return rolesbot.Message{}, err
	}
	return m.toMessage(), nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	return c.do(ctx, "edit_message", http.MethodPatch, path, editMessage{Content: content}, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	return c.do(ctx, "delete_message", http.MethodDelete, path, nil, nil)
}

func (c *Client) EditRoleColour(ctx context.Context, serverID, roleID, colour string) error {
	body := editRole{Colour: colour}
	if colour == "" {
		body.Remove = []string{"Colour"}
	}
	path := "/servers/" + url.PathEscape(serverID) + "/roles/" + url.PathEscape(roleID)
	if err := c.do(ctx, "edit_role", http.MethodPatch, path, body, nil); err != nil {
		return err
	}
	c.cache.forgetServer(serverID)
	return nil
}

func (c *Client) OpenDM(ctx context.Context, userID string) (rolesbot.Channel, error) {
	var ch channel
	path := "/users/" + url.PathEscape(userID) + "/dm"
	if err := c.do(ctx, "open_dm", http.MethodGet, path, nil, &ch); err != nil {
		return rolesbot.Channel{}, errors.Wrap(err, "open dm", j.KV("user", userID))
	}
	c.cache.putChannel(ch)
	return ch.toChannel(), nil
}
