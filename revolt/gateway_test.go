package revolt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luno/rolesbot"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHandler) add(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, s)
}

func (h *recordingHandler) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *recordingHandler) OnMessage(_ context.Context, msg rolesbot.Message) {
	h.add("message " + msg.ID + " " + msg.Content)
}

func (h *recordingHandler) OnMessageDelete(_ context.Context, channelID, messageID string) {
	h.add("delete " + channelID + " " + messageID)
}

func (h *recordingHandler) OnReact(_ context.Context, channelID, messageID, userID, emoji string, react bool) {
	verb := "unreact"
	if react {
		verb = "react"
	}
	h.add(verb + " " + messageID + " " + userID + " " + emoji)
}

func (h *recordingHandler) OnMemberJoin(_ context.Context, serverID, userID string) {
	h.add("join " + serverID + " " + userID)
}

// gatewayForTesting serves a websocket which checks the token and then
// writes events.
func gatewayForTesting(t *testing.T, events ...string) string {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, b, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if json.Get(b, "token").ToString() != "secret" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Error","error":"InvalidSession"}`))
			return
		}
		for _, e := range events {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(e)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGatewayDispatch(t *testing.T) {
	url := gatewayForTesting(t,
		`{"type":"Authenticated"}`,
		`{"type":"Ready","users":[],"servers":[{"_id":"`+serverID+`","owner":"o","name":"S","roles":{}}],"channels":[]}`,
		`{"type":"Message","_id":"m1","channel":"c1","author":"u1","content":"hello"}`,
		`{"type":"MessageReact","id":"m1","channel_id":"c1","user_id":"u1","emoji_id":"🔧"}`,
		`{"type":"Bulk","v":[
			{"type":"MessageUnreact","id":"m1","channel_id":"c1","user_id":"u1","emoji_id":"🔧"},
			{"type":"ServerMemberJoin","id":"`+serverID+`","user":"u2"}
		]}`,
		`{"type":"MessageDelete","id":"m1","channel":"c1"}`,
	)

	c := New("secret", WithLogger(nopLogger{}))
	h := new(recordingHandler)
	g := NewGateway(c, h, GatewayOptions{URL: url})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(h.Events()) == 5
	}, 5*time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, []string{
		"message m1 hello",
		"react m1 u1 🔧",
		"unreact m1 u1 🔧",
		"join " + serverID + " u2",
		"delete c1 m1",
	}, h.Events())

	_, ok := c.cache.server(serverID)
	assert.True(t, ok)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway didn't stop")
	}
}

func TestGatewayInvalidatesCache(t *testing.T) {
	url := gatewayForTesting(t,
		`{"type":"Ready","users":[{"_id":"u1","username":"a"}],"servers":[{"_id":"`+serverID+`","roles":{}},{"_id":"other","roles":{}}],"channels":[{"_id":"c1","channel_type":"TextChannel","server":"`+serverID+`"}]}`,
		`{"type":"ServerRoleUpdate","id":"`+serverID+`","role_id":"r1","data":{}}`,
		`{"type":"ChannelDelete","id":"c1"}`,
		`{"type":"UserUpdate","id":"u1","data":{}}`,
		`{"type":"Message","_id":"m1","channel":"c2","author":"u1","content":"done"}`,
	)

	c := New("secret", WithLogger(nopLogger{}))
	h := new(recordingHandler)
	g := NewGateway(c, h, GatewayOptions{URL: url})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = g.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(h.Events()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := c.cache.server(serverID)
	assert.False(t, ok)
	_, ok = c.cache.server("other")
	assert.True(t, ok)
	_, ok = c.cache.channel("c1")
	assert.False(t, ok)
	_, ok = c.cache.user("u1")
	assert.False(t, ok)
}
