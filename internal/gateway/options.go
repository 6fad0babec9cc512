package gateway

import (
	"time"

	"github.com/rs/zerolog"

	"quoting/internal/common"
)

const DefaultHandshakeTimeout = 1 * time.Second

type Options struct {
	Logger           zerolog.Logger
	HandshakeTimeout time.Duration
	OnConnect        func()
}

func defaultOptions() Options {
	return Options{
		Logger:           zerolog.Nop(),
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}

// OptionHandshakeTimeout bounds how long Connect waits for the gateway to
// confirm the authenticated handshake.
func OptionHandshakeTimeout(d time.Duration) common.Option {
	return func(options interface{}) error {
		return common.Set(options, "HandshakeTimeout", d)
	}
}

// OptionOnConnect installs a hook invoked exactly once, synchronously,
// after authentication succeeds and before any quote event is handled.
func OptionOnConnect(hook func()) common.Option {
	return func(options interface{}) error {
		return common.Set(options, "OnConnect", hook)
	}
}
