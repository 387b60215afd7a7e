package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MinKeyLength is the minimum HS256 key size in bytes
const MinKeyLength = 32

// Key strategies accepted by NewKeySource
const (
	KeyStrategyRandom = "random"
	KeyStrategyStatic = "static"
)

// base64Prefix marks a static secret given in standard base64
const base64Prefix = "base64:"

var (
	// ErrKeyTooShort is returned when a signing key is shorter than MinKeyLength
	ErrKeyTooShort = errors.New("signing key too short")

	// ErrUnknownKeyStrategy is returned for an unsupported key strategy
	ErrUnknownKeyStrategy = errors.New("unknown signing key strategy")
)

// KeySource supplies the process signing key. It is consulted once, when
// the codec is built.
type KeySource interface {
	SigningKey() ([]byte, error)
}

// RandomKeySource generates a fresh key from crypto/rand. Tokens signed with
// it stop verifying once the process restarts.
type RandomKeySource struct {
	Size int
}

// SigningKey generates a random key of Size bytes (MinKeyLength when unset)
func (s RandomKeySource) SigningKey() ([]byte, error) {
	size := s.Size
	if size == 0 {
		size = MinKeyLength
	}
	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return key, nil
}

// StaticKeySource returns a configured secret, which keeps tokens valid
// across restarts. Secrets prefixed with "base64:" are decoded first.
type StaticKeySource struct {
	Secret string
}

// SigningKey returns the configured secret as key bytes
func (s StaticKeySource) SigningKey() ([]byte, error) {
	key := []byte(s.Secret)
	if encoded, ok := strings.CutPrefix(s.Secret, base64Prefix); ok {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 signing secret: %w", err)
		}
		key = decoded
	}
	if len(key) < MinKeyLength {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrKeyTooShort, len(key), MinKeyLength)
	}
	return key, nil
}

// NewKeySource returns the key source for a configured strategy
func NewKeySource(strategy, secret string) (KeySource, error) {
	switch strings.ToLower(strategy) {
	case "", KeyStrategyRandom:
		return RandomKeySource{Size: MinKeyLength}, nil
	case KeyStrategyStatic:
		if secret == "" {
			return nil, errors.New("static key strategy requires a signing secret")
		}
		return StaticKeySource{Secret: secret}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyStrategy, strategy)
	}
}
