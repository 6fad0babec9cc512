package gateway_test

import (
	"context"
	"encoding/base64"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoting/internal/common"
	"quoting/internal/common/timestamp"
	"quoting/internal/gateway"
	"quoting/internal/gateway/gatewaytest"
	"quoting/internal/signer"
)

type fixture struct {
	key    ed25519.PrivateKey
	srv    *gatewaytest.Server
	client *gateway.Client
	done   chan error
}

// startSession wires a client to a fresh mock gateway that verifies auth
// signatures, and waits for the authenticated handshake.
func startSession(t *testing.T, handler gateway.QuoteHandler, options ...common.Option) *fixture {
	t.Helper()
	key, err := signer.GenerateKey()
	require.NoError(t, err)
	srv, err := gatewaytest.Start(gatewaytest.OptionPublicKey(signer.Public(key)))
	require.NoError(t, err)

	client, err := gateway.NewClient(srv.URL(), "mm1", key, handler, options...)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- client.Connect(context.Background()) }()
	select {
	case <-srv.Connected():
	case err := <-done:
		srv.Close()
		t.Fatalf("session ended early: %v", err)
	case <-time.After(5 * time.Second):
		srv.Close()
		t.Fatal("no session within 5s")
	}
	return &fixture{key: key, srv: srv, client: client, done: done}
}

func (f *fixture) shutdown(t *testing.T) {
	t.Helper()
	f.client.Close()
	f.srv.Close()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after close")
	}
}

func awaitResponse(t *testing.T, srv *gatewaytest.Server) gateway.QuoteResponse {
	t.Helper()
	select {
	case resp := <-srv.Responses():
		return resp
	case <-time.After(5 * time.Second):
		t.Fatal("no quote response")
	}
	return gateway.QuoteResponse{}
}

func assertNoResponse(t *testing.T, srv *gatewaytest.Server, within time.Duration) {
	t.Helper()
	select {
	case resp := <-srv.Responses():
		t.Fatalf("unexpected quote response for %s", resp.ID)
	case <-time.After(within):
	}
}

func passthrough(ctx context.Context, q gateway.Quote) (string, string, error) {
	return q.DepositAmount, q.DepositAmount, nil
}

func TestConnectAuthenticates(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	var connects int32
	f := startSession(t, passthrough, gateway.OptionOnConnect(func() {
		atomic.AddInt32(&connects, 1)
	}))
	defer f.shutdown(t)

	assert.True(t, f.client.Connected())
	assert.EqualValues(t, 1, atomic.LoadInt32(&connects))

	auth, ok := f.srv.LastAuth()
	require.True(t, ok)
	assert.Equal(t, "1", auth.ClientVersion)
	assert.Equal(t, "mm1", auth.MarketMakerID)
	sig, err := base64.StdEncoding.DecodeString(auth.Signature)
	require.NoError(t, err)
	assert.True(t, signer.Verify(signer.Public(f.key), "mm1",
		timestamp.Milli(auth.Timestamp), sig))
}

func TestConnectTimeout(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	key, err := signer.GenerateKey()
	require.NoError(t, err)
	srv, err := gatewaytest.Start(gatewaytest.OptionMute())
	require.NoError(t, err)
	defer srv.Close()

	client, err := gateway.NewClient(srv.URL(), "mm1", key, passthrough,
		gateway.OptionHandshakeTimeout(100*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	err = client.Connect(context.Background())
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, gateway.ErrConnectTimeout)
	assert.False(t, client.Connected())
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestConnectRejected(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	key, err := signer.GenerateKey()
	require.NoError(t, err)
	srv, err := gatewaytest.Start(gatewaytest.OptionReject("unknown market maker"))
	require.NoError(t, err)
	defer srv.Close()

	client, err := gateway.NewClient(srv.URL(), "mm1", key, passthrough)
	require.NoError(t, err)

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, gateway.ErrAuthRejected)
	assert.Contains(t, err.Error(), "unknown market maker")
	assert.False(t, client.Connected())
}

func TestConnectBadSignatureRejected(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	key, err := signer.GenerateKey()
	require.NoError(t, err)
	other, err := signer.GenerateKey()
	require.NoError(t, err)
	srv, err := gatewaytest.Start(gatewaytest.OptionPublicKey(signer.Public(other)))
	require.NoError(t, err)
	defer srv.Close()

	client, err := gateway.NewClient(srv.URL(), "mm1", key, passthrough)
	require.NoError(t, err)

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, gateway.ErrAuthRejected)
}

func TestQuoteRoundTrip(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	f := startSession(t, func(ctx context.Context, q gateway.Quote) (string, string, error) {
		return "100", "99.5", nil
	})
	defer f.shutdown(t)

	require.NoError(t, f.srv.PushQuote(gateway.Quote{
		ID:               "q1",
		SourceAsset:      "BTC",
		DestinationAsset: "USDC",
		DepositAmount:    "0.5",
	}))
	resp := awaitResponse(t, f.srv)
	assert.Equal(t, gateway.QuoteResponse{
		ID:                 "q1",
		IntermediateAmount: "100",
		EgressAmount:       "99.5",
	}, resp)
}

func TestMalformedQuoteKeepsSession(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	f := startSession(t, passthrough)
	defer f.shutdown(t)

	require.NoError(t, f.srv.PushEvent(gateway.EventQuoteRequest, map[string]string{
		"id":                "broken",
		"source_asset":      "BTC",
		"destination_asset": "USDC",
		// no deposit_amount
	}))
	require.NoError(t, f.srv.PushQuote(gateway.Quote{
		ID:               "ok",
		SourceAsset:      "BTC",
		DestinationAsset: "USDC",
		DepositAmount:    "1",
	}))

	resp := awaitResponse(t, f.srv)
	assert.Equal(t, "ok", resp.ID)
	assert.True(t, f.client.Connected())
	assertNoResponse(t, f.srv, 150*time.Millisecond)
}

func TestHandlerErrorContained(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	f := startSession(t, func(ctx context.Context, q gateway.Quote) (string, string, error) {
		if q.ID == "bad" {
			return "", "", context.DeadlineExceeded
		}
		return q.DepositAmount, q.DepositAmount, nil
	})
	defer f.shutdown(t)

	require.NoError(t, f.srv.PushQuote(gateway.Quote{
		ID: "bad", SourceAsset: "BTC", DestinationAsset: "USDC", DepositAmount: "1",
	}))
	require.NoError(t, f.srv.PushQuote(gateway.Quote{
		ID: "good", SourceAsset: "BTC", DestinationAsset: "USDC", DepositAmount: "2",
	}))

	resp := awaitResponse(t, f.srv)
	assert.Equal(t, "good", resp.ID)
	assert.True(t, f.client.Connected())
	assertNoResponse(t, f.srv, 150*time.Millisecond)
}

func TestDisconnectDropsInFlightResponse(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	started := make(chan struct{})
	release := make(chan struct{})
	f := startSession(t, func(ctx context.Context, q gateway.Quote) (string, string, error) {
		close(started)
		<-release
		return "100", "200", nil
	})
	defer f.srv.Close()

	require.NoError(t, f.srv.PushQuote(gateway.Quote{
		ID: "q1", SourceAsset: "BTC", DestinationAsset: "USDC", DepositAmount: "1",
	}))
	<-started
	assert.Equal(t, 1, f.client.Outstanding())

	f.client.Disconnect()
	close(release)

	assertNoResponse(t, f.srv, 300*time.Millisecond)
	f.client.Close()
	assert.Equal(t, 0, f.client.Outstanding())
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after disconnect")
	}
}

func TestConcurrentQuotesCompleteOutOfOrder(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	bDone := make(chan struct{})
	f := startSession(t, func(ctx context.Context, q gateway.Quote) (string, string, error) {
		switch q.ID {
		case "a":
			<-bDone // hold a until b has answered
			return "ia", "ea", nil
		case "b":
			defer close(bDone)
			return "ib", "eb", nil
		}
		return "", "", context.Canceled
	})
	defer f.shutdown(t)

	require.NoError(t, f.srv.PushQuote(gateway.Quote{
		ID: "a", SourceAsset: "BTC", DestinationAsset: "USDC", DepositAmount: "1",
	}))
	require.NoError(t, f.srv.PushQuote(gateway.Quote{
		ID: "b", SourceAsset: "ETH", DestinationAsset: "USDC", DepositAmount: "2",
	}))

	first := awaitResponse(t, f.srv)
	second := awaitResponse(t, f.srv)
	assert.Equal(t, "b", first.ID)
	assert.Equal(t, "a", second.ID)

	byID := map[string]gateway.QuoteResponse{first.ID: first, second.ID: second}
	assert.Equal(t, "ia", byID["a"].IntermediateAmount)
	assert.Equal(t, "ea", byID["a"].EgressAmount)
	assert.Equal(t, "ib", byID["b"].IntermediateAmount)
	assert.Equal(t, "eb", byID["b"].EgressAmount)
}

func TestDuplicateQuoteIDNotMasked(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	f := startSession(t, func(ctx context.Context, q gateway.Quote) (string, string, error) {
		time.Sleep(50 * time.Millisecond)
		return q.DepositAmount, q.DepositAmount, nil
	})
	defer f.shutdown(t)

	// Same id outstanding twice: both are still answered, last write wins
	// at the far end.
	for i := 0; i < 2; i++ {
		require.NoError(t, f.srv.PushQuote(gateway.Quote{
			ID: "dup", SourceAsset: "BTC", DestinationAsset: "USDC", DepositAmount: "1",
		}))
	}
	assert.Equal(t, "dup", awaitResponse(t, f.srv).ID)
	assert.Equal(t, "dup", awaitResponse(t, f.srv).ID)
}

func TestRemoteDropEndsSession(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	f := startSession(t, passthrough)
	defer f.srv.Close()

	f.srv.DropSession()
	select {
	case err := <-f.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after remote drop")
	}
	assert.False(t, f.client.Connected())
}

func TestClientReusableAfterDisconnect(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	f := startSession(t, passthrough)
	defer f.srv.Close()

	f.client.Disconnect()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after disconnect")
	}

	// Fresh credentials, same instance.
	done := make(chan error, 1)
	go func() { done <- f.client.Connect(context.Background()) }()
	require.Eventually(t, f.client.Connected, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.srv.PushQuote(gateway.Quote{
		ID: "again", SourceAsset: "BTC", DestinationAsset: "USDC", DepositAmount: "3",
	}))
	assert.Equal(t, "again", awaitResponse(t, f.srv).ID)

	f.client.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after close")
	}
}

func TestConnectWhileConnected(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	f := startSession(t, passthrough)
	defer f.shutdown(t)

	err := f.client.Connect(context.Background())
	assert.ErrorIs(t, err, gateway.ErrAlreadyConnected)
}
