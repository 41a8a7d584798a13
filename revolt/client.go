package revolt

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"golang.org/x/time/rate"

	"github.com/luno/rolesbot"
)

const (
	DefaultAPIURL     = "https://api.revolt.chat"
	DefaultGatewayURL = "wss://ws.revolt.chat"
)

var (
	ErrNotFound = errors.New("not found", j.C("ERR_2b51d3c0a8f4e967"))
	ErrAPI      = errors.New("api request failed", j.C("ERR_7e0c94f1b2d6a358"))
	ErrNotReady = errors.New("client not logged in", j.C("ERR_c4a1e8d97f3b2065"))
)

type options struct {
	APIURL     string
	HTTPClient *http.Client
	Limit      rate.Limit
	Burst      int
	Log        rolesbot.Logger
}

type Option func(*options)

// WithAPIURL sets the base URL of the REST API.
func WithAPIURL(url string) Option {
	return func(o *options) {
		o.APIURL = url
	}
}

// WithHTTPClient sets the http.Client used for REST requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.HTTPClient = c
	}
}

// WithRateLimit limits the rate of REST requests. The default is 10
// requests per second with a burst of 10.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.Limit = limit
		o.Burst = burst
	}
}

// WithLogger sets the logger used by the Client and its Gateway.
func WithLogger(l rolesbot.Logger) Option {
	return func(o *options) {
		o.Log = l
	}
}

func buildOptions(opts []Option) options {
	o := options{
		APIURL: DefaultAPIURL,
		Limit:  10,
		Burst:  10,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Log == nil {
		o.Log = rolesbot.JettisonLogger{}
	}
	return o
}

// Client is a bot's connection to the REST API. It implements
// rolesbot.Platform, caching users, servers and channels until a gateway
// event says they changed. Members and messages are always fetched.
type Client struct {
	token   string
	options options
	limiter *rate.Limiter
	cache   *cache

	mu   sync.RWMutex
	self rolesbot.User
}

var _ rolesbot.Platform = (*Client)(nil)

func New(token string, opts ...Option) *Client {
	o := buildOptions(opts)
	return &Client{
		token:   token,
		options: o,
		limiter: rate.NewLimiter(o.Limit, o.Burst),
		cache:   newCache(),
	}
}

// Login fetches the bot's own user. It must be called before the Client
// is used as a Platform.
func (c *Client) Login(ctx context.Context) (rolesbot.User, error) {
	var u user
	if err := c.do(ctx, "fetch_self", http.MethodGet, "/users/@me", nil, &u); err != nil {
		return rolesbot.User{}, errors.Wrap(err, "login")
	}
	if u.Bot == nil {
		return rolesbot.User{}, errors.New("token does not belong to a bot")
	}
	c.cache.putUser(u)

	c.mu.Lock()
	c.self = u.toUser()
	c.mu.Unlock()
	return u.toUser(), nil
}

// SetStatus sets the bot's status text unless it's already set.
func (c *Client) SetStatus(ctx context.Context, text string) error {
	u, ok := c.cache.user(c.BotID())
	if ok && u.Status != nil && u.Status.Text == text {
		return nil
	}
	body := editUser{Status: &userStatus{Text: text}}
	err := c.do(ctx, "edit_self", http.MethodPatch, "/users/@me", body, nil)
	if err != nil {
		return errors.Wrap(err, "set status")
	}
	c.cache.forgetUser(c.BotID())
	return nil
}

// do sends a request and decodes the response into out. route names the
// request in metrics and errors.
func (c *Client) do(ctx context.Context, route, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait", j.KV("route", route))
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request", j.KV("route", route))
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.options.APIURL+path, r)
	if err != nil {
		return errors.Wrap(err, "new request", j.KV("route", route))
	}
	req.Header.Set("x-bot-token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	t0 := time.Now()
	resp, err := c.options.HTTPClient.Do(req)
	if err != nil {
		requestsCounter.WithLabelValues(route, "error").Inc()
		return errors.Wrap(err, "request", j.KV("route", route))
	}
	defer resp.Body.Close()
	requestDuration.WithLabelValues(route).Observe(time.Since(t0).Seconds())
	requestsCounter.WithLabelValues(route, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp, route)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response", j.KV("route", route))
	}
	return nil
}

// decodeError turns a failed response into the errors the core acts upon:
// a *rolesbot.RetryAfterError when rate limited and a *rolesbot.Error for
// missing permissions.
func decodeError(resp *http.Response, route string) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e apiError
	// NoReturnErr: Not every error has a JSON body.
	_ = json.Unmarshal(b, &e)

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rolesbot.RetryAfterError{After: retryAfter(resp.Header, e)}
	}
	if e.Type == "MissingPermission" {
		if p, ok := rolesbot.ParsePermission(e.Permission); ok {
			return &rolesbot.Error{Kind: rolesbot.KindMissing, Permission: p}
		}
	}
	kv := j.MKV{"route": route, "status": resp.StatusCode, "type": e.Type}
	if resp.StatusCode == http.StatusNotFound || e.Type == "NotFound" {
		return errors.Wrap(ErrNotFound, "", kv)
	}
	return errors.Wrap(ErrAPI, "", kv)
}

// retryAfter reads the wait from the body, falling back to the
// X-RateLimit-Reset-After and Retry-After headers.
func retryAfter(h http.Header, e apiError) time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Millisecond
	}
	if v, err := strconv.ParseInt(h.Get("X-RateLimit-Reset-After"), 10, 64); err == nil && v > 0 {
		return time.Duration(v) * time.Millisecond
	}
	if v, err := strconv.ParseInt(h.Get("Retry-After"), 10, 64); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	return time.Second
}
