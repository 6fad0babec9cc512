package signer

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// Keyfiles hold a hex-encoded 32-byte seed, or with a password the seed
// sealed in a secretbox: "secretbox:" + base64(salt || nonce || box).
const encPrefix = "secretbox:"

const (
	saltSize  = 16
	nonceSize = 24
)

var ErrKeyPassword = fmt.Errorf("%w: key password required or incorrect", ErrBadKey)

func GenerateKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	return priv, err
}

func WriteKeyFile(path string, key ed25519.PrivateKey, password string) error {
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: private key is %d bytes", ErrBadKey, len(key))
	}
	seed := key.Seed()
	if password == "" {
		return os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0o600)
	}
	salt := make([]byte, saltSize)
	var nonce [nonceSize]byte
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	boxKey := kdf(password, salt)
	blob := append(append(salt, nonce[:]...), secretbox.Seal(nil, seed, &nonce, &boxKey)...)
	return os.WriteFile(path, []byte(encPrefix+base64.StdEncoding.EncodeToString(blob)+"\n"), 0o600)
}

func LoadKeyFile(path, password string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, encPrefix) {
		seed, err := hex.DecodeString(s)
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: %s", ErrBadKey, path)
		}
		return ed25519.NewKeyFromSeed(seed), nil
	}
	if password == "" {
		return nil, ErrKeyPassword
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, encPrefix))
	if err != nil || len(blob) < saltSize+nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: %s", ErrBadKey, path)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[saltSize:saltSize+nonceSize])
	boxKey := kdf(password, blob[:saltSize])
	seed, ok := secretbox.Open(nil, blob[saltSize+nonceSize:], &nonce, &boxKey)
	if !ok {
		return nil, ErrKeyPassword
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: %s", ErrBadKey, path)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func kdf(password string, salt []byte) [32]byte {
	var key [32]byte
	copy(key[:], argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32))
	return key
}
