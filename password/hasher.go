// Package password provides the one-way credential hashing capability used
// at registration and login.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptyPassword is returned when hashing an empty plaintext
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordTooLong is returned when hashing a plaintext longer than MaxBytes
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

	// ErrInvalidCost is returned when the configured bcrypt cost is out of range
	ErrInvalidCost = errors.New("invalid bcrypt cost")
)

// MaxBytes is the longest plaintext bcrypt accepts, counted in bytes
const MaxBytes = 72

// Hasher hashes plaintext credentials and verifies them against stored hashes
type Hasher interface {
	// Hash returns an encoded one-way hash of the plaintext
	Hash(plaintext string) (string, error)

	// Verify reports whether plaintext matches the encoded hash.
	// A mismatch is (false, nil); an unreadable hash is an error.
	Verify(plaintext, hash string) (bool, error)
}

// Bcrypt implements Hasher with golang.org/x/crypto/bcrypt
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher. A zero cost selects bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: %d (allowed %d-%d)", ErrInvalidCost, cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Cost returns the configured work factor
func (b *Bcrypt) Cost() int {
	return b.cost
}

// Hash hashes a plaintext password
func (b *Bcrypt) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > MaxBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify compares a plaintext password with a bcrypt hash
func (b *Bcrypt) Verify(plaintext, hash string) (bool, error) {
	if len(plaintext) > MaxBytes {
		// Hash never accepts such a plaintext, so it cannot match
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("failed to verify password: %w", err)
}
