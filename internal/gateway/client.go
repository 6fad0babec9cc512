// Package gateway implements the market-maker side of the quoting session
// protocol: a signed-authentication WebSocket session over which the
// gateway pushes quote requests and the client pushes back priced
// responses.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/gorilla/websocket"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/valyala/fastjson"

	"quoting/internal/common"
	"quoting/internal/common/timestamp"
	"quoting/internal/signer"
)

type eventFunc func(ctx context.Context, gen uint64, data *fastjson.Value)

// Client owns one quoting session at a time. The instance is reusable: a
// new Connect after the session ends starts a fresh session with fresh
// credentials.
type Client struct {
	endpoint      string
	marketMakerID string
	key           ed25519.PrivateKey
	handler       QuoteHandler
	opts          Options

	state sessionState

	ws      *websocket.Conn
	writeMu sync.Mutex

	parser fastjson.Parser

	events map[string]eventFunc

	tasks *taskgroup.Group

	outstanding struct {
		mu  sync.Mutex
		ids map[string]struct{}
	}
}

func NewClient(endpoint, marketMakerID string, key ed25519.PrivateKey, handler QuoteHandler,
	options ...common.Option) (*Client, error) {
	opts := defaultOptions()
	for _, o := range options {
		if err := o(&opts); err != nil {
			return nil, err
		}
	}
	if endpoint == "" {
		return nil, errors.New("gateway: empty endpoint")
	}
	if marketMakerID == "" {
		return nil, errors.New("gateway: empty market maker id")
	}
	if handler == nil {
		return nil, errors.New("gateway: nil quote handler")
	}
	c := &Client{
		endpoint:      endpoint,
		marketMakerID: marketMakerID,
		key:           key,
		handler:       handler,
		opts:          opts,
		tasks:         taskgroup.New(nil),
	}
	c.outstanding.ids = make(map[string]struct{})
	c.events = map[string]eventFunc{
		EventQuoteRequest: c.onQuoteRequest,
	}
	return c, nil
}

// Connect signs a fresh auth payload, opens the session, and blocks until
// the session ends. Only connect-phase failures (signing, timeout,
// rejection) are returned; per-event failures never end the session.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.state.begin(); err != nil {
		return err
	}
	established := false
	defer func() {
		if !established {
			c.state.fail()
		}
	}()

	ts := timestamp.Now()
	sig, err := signer.Sign(c.marketMakerID, ts, c.key)
	if err != nil {
		return fmt.Errorf("gateway: sign auth: %w", err)
	}
	auth := AuthPayload{
		ClientVersion: ClientVersion,
		Timestamp:     ts.UnixMilli(),
		MarketMakerID: c.marketMakerID,
		Signature:     base64.StdEncoding.EncodeToString(sig),
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: dial %s", ErrConnectTimeout, c.endpoint)
		}
		return fmt.Errorf("gateway: dial %s: %w", c.endpoint, err)
	}

	if err := c.handshake(ws, auth); err != nil {
		ws.Close()
		return err
	}

	c.ws = ws
	gen, stop := c.state.established()
	established = true
	if c.opts.OnConnect != nil {
		c.opts.OnConnect()
	}
	c.opts.Logger.Info().Str("endpoint", c.endpoint).Msg("session connected")

	return c.pump(ctx, ws, gen, stop)
}

func (c *Client) handshake(ws *websocket.Conn, auth AuthPayload) error {
	msg, err := encodeEvent(EventAuth, auth)
	if err != nil {
		return fmt.Errorf("gateway: encode auth: %w", err)
	}
	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("gateway: send auth: %w", err)
	}
	ws.SetWriteDeadline(time.Time{})
	ws.SetReadDeadline(deadline)
	defer ws.SetReadDeadline(time.Time{})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("%w: no confirmation within %s",
					ErrConnectTimeout, c.opts.HandshakeTimeout)
			}
			return fmt.Errorf("gateway: handshake: %w", err)
		}
		v, err := c.parser.ParseBytes(raw)
		if err != nil {
			continue
		}
		switch event, data := parseEvent(v); event {
		case EventConnected:
			return nil
		case EventAuthError:
			if reason := data.GetStringBytes("reason"); len(reason) > 0 {
				return fmt.Errorf("%w: %s", ErrAuthRejected, reason)
			}
			return ErrAuthRejected
		default:
			// Not part of the handshake, skip.
		}
	}
}

// pump delivers inbound events serially while their handling runs
// concurrently: receipt of event N+1 never waits on handler N.
func (c *Client) pump(ctx context.Context, ws *websocket.Conn, gen uint64, stop chan struct{}) error {
	msgs := make(chan []byte, 1)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if len(msg) == 0 {
				continue
			}
			select {
			case msgs <- msg:
			case <-stop:
				return
			}
		}
	}()

	hctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		select {
		case msg := <-msgs:
			c.process(hctx, gen, msg)
		case err := <-readErr:
			// If a local Disconnect already won the race this is just the
			// reader noticing the closed socket.
			if c.teardown(false) {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.opts.Logger.Info().Msg("session closed by gateway")
				} else {
					c.opts.Logger.Warn().Err(err).Msg("session ended abruptly")
				}
			}
			return nil
		case <-stop:
			return nil
		case <-ctx.Done():
			c.Disconnect()
			return ctx.Err()
		}
	}
}

func (c *Client) process(ctx context.Context, gen uint64, msg []byte) {
	v, err := c.parser.ParseBytes(msg)
	if err != nil {
		c.opts.Logger.Warn().Err(err).Msg("unparsable event")
		return
	}
	event, data := parseEvent(v)
	handle, ok := c.events[event]
	if !ok {
		c.opts.Logger.Debug().Str("event", event).Msg("unhandled event")
		return
	}
	handle(ctx, gen, data)
}

// onQuoteRequest contains all per-event failures: a malformed request or a
// failed handler costs that one request its response, nothing more.
func (c *Client) onQuoteRequest(ctx context.Context, gen uint64, data *fastjson.Value) {
	q, err := parseQuote(data)
	if err != nil {
		c.opts.Logger.Warn().Err(err).Msg("quote request dropped")
		return
	}
	if !c.track(q.ID) {
		// Id reuse across outstanding requests is undefined at the far
		// end; surface it rather than mask it.
		c.opts.Logger.Warn().Str("id", q.ID).Msg("quote id already outstanding")
	}
	c.tasks.Go(func() error {
		defer c.untrack(q.ID)
		intermediate, egress, err := c.handler(ctx, q)
		if err != nil {
			c.opts.Logger.Error().Err(err).Str("id", q.ID).Msg("quote handler failed")
			return nil
		}
		c.emit(gen, QuoteResponse{
			ID:                 q.ID,
			IntermediateAmount: intermediate,
			EgressAmount:       egress,
		})
		return nil
	})
}

// emit sends a response if the originating session is still up; responses
// for ended sessions are dropped, never queued for a later one.
func (c *Client) emit(gen uint64, resp QuoteResponse) {
	if !c.state.sendable(gen) {
		c.opts.Logger.Info().Str("id", resp.ID).Msg("quote response dropped: session ended")
		return
	}
	msg, err := encodeEvent(EventQuoteResponse, resp)
	if err != nil {
		c.opts.Logger.Error().Err(err).Str("id", resp.ID).Msg("encode quote response")
		return
	}
	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, msg)
	c.writeMu.Unlock()
	if err != nil {
		c.opts.Logger.Warn().Err(err).Str("id", resp.ID).Msg("send quote response")
	}
}

// Disconnect requests a graceful close and abandons in-flight handlers;
// their late responses are dropped by the generation check in emit.
// Idempotent.
func (c *Client) Disconnect() {
	c.teardown(true)
}

func (c *Client) teardown(graceful bool) bool {
	stop, ok := c.state.disconnect()
	if !ok {
		return false
	}
	close(stop)
	if graceful {
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
	}
	c.ws.Close()
	c.opts.Logger.Info().Msg("session disconnected")
	return true
}

// Close disconnects and then waits for abandoned handlers to finish.
func (c *Client) Close() {
	c.Disconnect()
	c.tasks.Wait()
}

func (c *Client) Connected() bool {
	return c.state.Connected()
}

// Outstanding reports how many quote requests are being handled.
func (c *Client) Outstanding() int {
	c.outstanding.mu.Lock()
	defer c.outstanding.mu.Unlock()
	return len(c.outstanding.ids)
}

func (c *Client) track(id string) bool {
	c.outstanding.mu.Lock()
	defer c.outstanding.mu.Unlock()
	if _, dup := c.outstanding.ids[id]; dup {
		return false
	}
	c.outstanding.ids[id] = struct{}{}
	return true
}

func (c *Client) untrack(id string) {
	c.outstanding.mu.Lock()
	delete(c.outstanding.ids, id)
	c.outstanding.mu.Unlock()
}
