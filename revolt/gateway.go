package revolt

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"golang.org/x/sync/errgroup"

	"github.com/luno/rolesbot"
)

// Handler receives the chat events the Bot acts upon. Methods are called
// concurrently.
type Handler interface {
	OnMessage(ctx context.Context, msg rolesbot.Message)
	OnMessageDelete(ctx context.Context, channelID, messageID string)
	OnReact(ctx context.Context, channelID, messageID, userID, emoji string, react bool)
	OnMemberJoin(ctx context.Context, serverID, userID string)
}

var _ Handler = (*rolesbot.Bot)(nil)

type GatewayOptions struct {
	// URL of the events websocket. Defaults to DefaultGatewayURL.
	URL string

	// PingInterval is how often the connection is kept alive.
	// Defaults to 20 seconds.
	PingInterval time.Duration

	// ReconnectDelay is how long to wait before reconnecting after the
	// connection failed. Defaults to 5 seconds.
	ReconnectDelay time.Duration

	// StatusText is set as the bot's status once connected, if not empty.
	StatusText string

	Dialer *websocket.Dialer
}

// Gateway receives events over the websocket, keeps the Client's cache up
// to date and passes events on to a Handler.
type Gateway struct {
	client  *Client
	handler Handler
	options GatewayOptions

	wg sync.WaitGroup
}

func NewGateway(c *Client, h Handler, opts GatewayOptions) *Gateway {
	if opts.URL == "" {
		opts.URL = DefaultGatewayURL
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 20 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Gateway{client: c, handler: h, options: opts}
}

// Run connects to the gateway and handles events until ctx is cancelled,
// reconnecting whenever the connection fails. It waits for running
// handlers before returning.
func (g *Gateway) Run(ctx context.Context) error {
	log := g.client.options.Log
	log.Debug(ctx, "running gateway")
	defer log.Debug(ctx, "stopped gateway")
	defer g.wg.Wait()

	for ctx.Err() == nil {
		err := g.runOnce(ctx)
		if err != nil && !errors.IsAny(err, context.Canceled) {
			log.Error(ctx, errors.Wrap(err, "gateway connection"))
		}
		select {
		case <-ctx.Done():
		case <-time.After(g.options.ReconnectDelay):
		}
	}
	return ctx.Err()
}

func (g *Gateway) runOnce(base context.Context) error {
	gatewayConnectsCounter.Inc()
	conn, _, err := g.options.Dialer.DialContext(base, g.options.URL+"?version=1&format=json", nil)
	if err != nil {
		return errors.Wrap(err, "dial gateway")
	}
	defer conn.Close()

	auth := map[string]string{"type": "Authenticate", "token": g.client.token}
	if err := g.write(conn, auth); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(base)
	eg.Go(func() error {
		<-ctx.Done()
		// NoReturnErr: Unblocks the read loop.
		_ = conn.Close()
		return ctx.Err()
	})
	eg.Go(func() error {
		return g.ping(ctx, conn)
	})
	eg.Go(func() error {
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.Wrap(err, "read event")
			}
			if err := g.handle(base, b); err != nil {
				return err
			}
		}
	})
	return eg.Wait()
}

func (g *Gateway) ping(ctx context.Context, conn *websocket.Conn) error {
	t := time.NewTicker(g.options.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			ping := map[string]any{"type": "Ping", "data": now.UnixMilli()}
			if err := g.write(conn, ping); err != nil {
				return err
			}
		}
	}
}

func (g *Gateway) write(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.Wrap(err, "write event")
	}
	return nil
}

type readyEvent struct {
	Users    []user    `json:"users"`
	Servers  []server  `json:"servers"`
	Channels []channel `json:"channels"`
}

type errorEvent struct {
	Error string `json:"error"`
}

type bulkEvent struct {
	V []jsoniter.RawMessage `json:"v"`
}

type deleteEvent struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
}

type reactEvent struct {
	ID      string `json:"id"`
	Channel string `json:"channel_id"`
	User    string `json:"user_id"`
	Emoji   string `json:"emoji_id"`
}

type memberJoinEvent struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

type idEvent struct {
	ID string `json:"id"`
}

// handle updates the cache from an event and dispatches it. It returns an
// error only if the connection must be dropped.
func (g *Gateway) handle(ctx context.Context, b []byte) error {
	typ := json.Get(b, "type").ToString()
	gatewayEventsCounter.WithLabelValues(typ).Inc()
	log := g.client.options.Log

	decode := func(v any) bool {
		if err := json.Unmarshal(b, v); err != nil {
			// NoReturnErr: Skip events we can't read.
			log.Error(ctx, errors.Wrap(err, "decode event", j.KV("type", typ)))
			return false
		}
		return true
	}

	switch typ {
	case "Bulk":
		var e bulkEvent
		if !decode(&e) {
			return nil
		}
		for _, raw := range e.V {
			if err := g.handle(ctx, []byte(raw)); err != nil {
				return err
			}
		}

	case "Authenticated":
		log.Debug(ctx, "gateway authenticated")

	case "Error":
		var e errorEvent
		decode(&e)
		return errors.New("gateway error", j.KV("error", e.Error))

	case "Ready":
		var e readyEvent
		if !decode(&e) {
			return nil
		}
		g.client.cache.reset(e.Users, e.Servers, e.Channels)
		log.Info(ctx, "gateway ready", j.MKV{
			"servers":  len(e.Servers),
			"channels": len(e.Channels),
		})
		if g.options.StatusText != "" {
			g.dispatch(func() {
				if err := g.client.SetStatus(ctx, g.options.StatusText); err != nil {
					// NoReturnErr: The status is cosmetic.
					log.Error(ctx, err)
				}
			})
		}

	case "Message":
		var m message
		if !decode(&m) {
			return nil
		}
		g.dispatch(func() { g.handler.OnMessage(ctx, m.toMessage()) })

	case "MessageDelete":
		var e deleteEvent
		if !decode(&e) {
			return nil
		}
		g.dispatch(func() { g.handler.OnMessageDelete(ctx, e.Channel, e.ID) })

	case "MessageReact", "MessageUnreact":
		var e reactEvent
		if !decode(&e) {
			return nil
		}
		react := typ == "MessageReact"
		g.dispatch(func() { g.handler.OnReact(ctx, e.Channel, e.ID, e.User, e.Emoji, react) })

	case "ServerMemberJoin":
		var e memberJoinEvent
		if !decode(&e) {
			return nil
		}
		g.dispatch(func() { g.handler.OnMemberJoin(ctx, e.ID, e.User) })

	case "ServerMemberLeave":
		var e memberJoinEvent
		if decode(&e) && e.User == g.client.BotID() {
			g.client.cache.forgetServer(e.ID)
		}

	case "ServerUpdate", "ServerDelete", "ServerRoleUpdate", "ServerRoleDelete":
		var e idEvent
		if decode(&e) {
			g.client.cache.forgetServer(e.ID)
		}

	case "ChannelUpdate", "ChannelDelete":
		var e idEvent
		if decode(&e) {
			g.client.cache.forgetChannel(e.ID)
		}

	case "UserUpdate":
		var e idEvent
		if decode(&e) {
			g.client.cache.forgetUser(e.ID)
		}
	}
	return nil
}

func (g *Gateway) dispatch(f func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		f()
	}()
}
