package gateway

import "errors"

var (
	ErrAlreadyConnected = errors.New("gateway: already connected")
	ErrConnectTimeout   = errors.New("gateway: connect timeout")
	ErrAuthRejected     = errors.New("gateway: authentication rejected")
	ErrMalformedQuote   = errors.New("gateway: malformed quote request")
)
