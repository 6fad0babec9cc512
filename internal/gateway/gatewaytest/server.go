// Package gatewaytest runs a scriptable in-process quoting gateway for
// session tests and the probe tool.
package gatewaytest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/rs/zerolog"
	"github.com/segmentio/encoding/json"
	"github.com/valyala/fastjson"

	"quoting/internal/common"
	"quoting/internal/common/timestamp"
	"quoting/internal/gateway"
	"quoting/internal/signer"
)

type Options struct {
	Logger zerolog.Logger

	// Reject, when set, answers every auth with auth_error carrying this
	// reason.
	Reject string

	// Mute accepts the socket but never confirms the handshake.
	Mute bool

	// PublicKey, when set, verifies auth signatures against it.
	PublicKey ed25519.PublicKey
}

func OptionReject(reason string) common.Option {
	return func(options interface{}) error {
		return common.Set(options, "Reject", reason)
	}
}

func OptionMute() common.Option {
	return func(options interface{}) error {
		return common.Set(options, "Mute", true)
	}
}

func OptionPublicKey(pub ed25519.PublicKey) common.Option {
	return func(options interface{}) error {
		return common.Set(options, "PublicKey", pub)
	}
}

// Server accepts one authenticated session at a time, pushes quote
// requests to it, and records what comes back.
type Server struct {
	opts Options

	ln  net.Listener
	srv *http.Server

	upgrader websocket.Upgrader

	mu      sync.Mutex
	conn    *websocket.Conn
	auth    *gateway.AuthPayload
	session chan struct{}

	responses chan gateway.QuoteResponse
}

func Start(options ...common.Option) (*Server, error) {
	var opts Options
	opts.Logger = zerolog.Nop()
	for _, o := range options {
		if err := o(&opts); err != nil {
			return nil, err
		}
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		opts:      opts,
		ln:        ln,
		session:   make(chan struct{}),
		responses: make(chan gateway.QuoteResponse, 16),
	}
	s.srv = &http.Server{Handler: http.HandlerFunc(s.serve)}
	go s.srv.Serve(ln)
	return s, nil
}

// URL is the ws endpoint clients dial.
func (s *Server) URL() string {
	return fmt.Sprintf("ws://%s/quote", s.ln.Addr())
}

// Connected is closed once a session has authenticated.
func (s *Server) Connected() <-chan struct{} {
	return s.session
}

// Responses delivers quote_response events as they arrive.
func (s *Server) Responses() <-chan gateway.QuoteResponse {
	return s.responses
}

// LastAuth reports the most recent auth payload received.
func (s *Server) LastAuth() (gateway.AuthPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auth == nil {
		return gateway.AuthPayload{}, false
	}
	return *s.auth, true
}

// PushQuote sends a quote_request over the connected session.
func (s *Server) PushQuote(q gateway.Quote) error {
	return s.push(gateway.EventQuoteRequest, q)
}

// PushEvent sends an arbitrary event, for scripting malformed or unknown
// traffic.
func (s *Server) PushEvent(event string, data interface{}) error {
	return s.push(event, data)
}

func (s *Server) push(event string, data interface{}) error {
	msg, err := json.Marshal(struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data"`
	}{event, data})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("gatewaytest: no session")
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

// DropSession closes the session socket without a close handshake, the
// way a crashed gateway would.
func (s *Server) DropSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Server) Close() {
	s.DropSession()
	s.srv.Close()
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var parser fastjson.Parser
	authed := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		v, err := parser.ParseBytes(raw)
		if err != nil {
			s.opts.Logger.Warn().Err(err).Msg("unparsable client message")
			continue
		}
		event := string(v.GetStringBytes("event"))
		data := v.Get("data")
		switch event {
		case gateway.EventAuth:
			if authed {
				continue
			}
			if s.handleAuth(conn, data) {
				authed = true
			} else {
				return
			}
		case gateway.EventQuoteResponse:
			var resp gateway.QuoteResponse
			resp.ID = string(data.GetStringBytes("id"))
			resp.IntermediateAmount = string(data.GetStringBytes("intermediate_amount"))
			resp.EgressAmount = string(data.GetStringBytes("egress_amount"))
			s.responses <- resp
		default:
			s.opts.Logger.Debug().Str("event", event).Msg("unexpected client event")
		}
	}
}

// handleAuth reports whether the session is established. When it returns
// false the caller drops the socket (except in Mute mode, where the auth
// is swallowed and the socket stays silent).
func (s *Server) handleAuth(conn *websocket.Conn, data *fastjson.Value) bool {
	auth := gateway.AuthPayload{
		ClientVersion: string(data.GetStringBytes("client_version")),
		Timestamp:     data.GetInt64("timestamp"),
		MarketMakerID: string(data.GetStringBytes("market_maker_id")),
		Signature:     string(data.GetStringBytes("signature")),
	}
	s.mu.Lock()
	s.auth = &auth
	s.mu.Unlock()

	if s.opts.Mute {
		return true
	}
	if s.opts.Reject != "" {
		s.reply(conn, gateway.EventAuthError, map[string]string{"reason": s.opts.Reject})
		return false
	}
	if len(s.opts.PublicKey) > 0 {
		sig, err := base64.StdEncoding.DecodeString(auth.Signature)
		if err != nil || auth.ClientVersion != gateway.ClientVersion ||
			!signer.Verify(s.opts.PublicKey, auth.MarketMakerID, timestamp.Milli(auth.Timestamp), sig) {
			s.reply(conn, gateway.EventAuthError, map[string]string{"reason": "bad signature"})
			return false
		}
	}
	s.reply(conn, gateway.EventConnected, struct{}{})
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	select {
	case <-s.session:
	default:
		close(s.session)
	}
	return true
}

func (s *Server) reply(conn *websocket.Conn, event string, data interface{}) {
	msg, err := json.Marshal(struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data"`
	}{event, data})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(websocket.TextMessage, msg)
	conn.SetWriteDeadline(time.Time{})
}
