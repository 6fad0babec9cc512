package gateway

import "context"

// ClientVersion is the protocol version presented in auth payloads.
const ClientVersion = "1"

// Wire event names, fixed at construction; there is no dynamic
// registration.
const (
	EventAuth          = "auth"
	EventConnected     = "connected"
	EventAuthError     = "auth_error"
	EventQuoteRequest  = "quote_request"
	EventQuoteResponse = "quote_response"
)

// Quote is one pricing request pushed by the gateway. Amounts are opaque
// decimal strings and pass through the client verbatim.
type Quote struct {
	ID               string `json:"id"`
	SourceAsset      string `json:"source_asset"`
	DestinationAsset string `json:"destination_asset"`
	DepositAmount    string `json:"deposit_amount"`
}

// QuoteResponse answers one Quote, correlated by ID. Sent at most once,
// never retried.
type QuoteResponse struct {
	ID                 string `json:"id"`
	IntermediateAmount string `json:"intermediate_amount"`
	EgressAmount       string `json:"egress_amount"`
}

// AuthPayload is the handshake credential, produced fresh per connection
// attempt. Signature covers marketMakerID || decimal(timestamp).
type AuthPayload struct {
	ClientVersion string `json:"client_version"`
	Timestamp     int64  `json:"timestamp"`
	MarketMakerID string `json:"market_maker_id"`
	Signature     string `json:"signature"`
}

// QuoteHandler prices a Quote. Supplied by the integrator and invoked
// concurrently; errors are contained to the one request.
type QuoteHandler func(ctx context.Context, q Quote) (intermediate, egress string, err error)
