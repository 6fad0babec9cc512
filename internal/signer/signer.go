// Package signer produces the ed25519 credentials a market maker presents
// when opening a quoting session.
package signer

import (
	"errors"
	"fmt"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"quoting/internal/common/timestamp"
)

var ErrBadKey = errors.New("signer: bad key material")

// Message is the exact byte string covered by the auth signature:
// the market maker id followed by the decimal timestamp, no delimiter.
func Message(marketMakerID string, ts timestamp.Timestamp) []byte {
	return append([]byte(marketMakerID), ts.Decimal()...)
}

func Sign(marketMakerID string, ts timestamp.Timestamp, key ed25519.PrivateKey) ([]byte, error) {
	if marketMakerID == "" {
		return nil, errors.New("signer: empty market maker id")
	}
	if ts < 0 {
		return nil, errors.New("signer: negative timestamp")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key is %d bytes", ErrBadKey, len(key))
	}
	return ed25519.Sign(key, Message(marketMakerID, ts)), nil
}

func Verify(pub ed25519.PublicKey, marketMakerID string, ts timestamp.Timestamp, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, Message(marketMakerID, ts), sig)
}

func Public(key ed25519.PrivateKey) ed25519.PublicKey {
	return key.Public().(ed25519.PublicKey)
}
