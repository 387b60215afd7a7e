// Package token issues and verifies the stateless bearer tokens handed out
// at login. Tokens are HS256-signed JWTs; validity is recomputed from the
// token itself on every request and nothing is recorded server side.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed is returned when the token is not a structurally valid token
	ErrMalformed = errors.New("invalid token")

	// ErrSignature is returned when the signature does not verify against the signing key
	ErrSignature = errors.New("signature does not match")

	// ErrExpired is returned when the evaluation time is at or after the token expiry
	ErrExpired = errors.New("token has expired")

	// ErrEmptySubject is returned when issuing a token without a subject
	ErrEmptySubject = errors.New("token subject cannot be empty")

	// ErrInvalidTTL is returned when the configured TTL is below MinTTL
	ErrInvalidTTL = errors.New("invalid token TTL")
)

// MinTTL is the smallest accepted token lifetime. Token timestamps carry
// second precision, so anything shorter cannot be represented.
const MinTTL = time.Second

var signingMethod = jwt.SigningMethodHS256

// Config holds codec settings
type Config struct {
	TTL    time.Duration
	Issuer string // Optional; when set it is written and enforced
}

// Claims holds the verified content of a token
type Claims struct {
	ID        string    `json:"jti"`
	Subject   string    `json:"sub"`
	Issuer    string    `json:"iss,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Token is an issued token together with the claims it encodes
type Token struct {
	Value string
	Claims
}

// Option configures a Codec
type Option func(*Codec)

// WithClock overrides the time source used by Decode and ExtractSubject
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// Codec encodes and verifies tokens. The signing key is read once at
// construction and never written again, so a Codec is safe for concurrent use.
type Codec struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewCodec creates a codec with a key obtained from the given source
func NewCodec(cfg Config, source KeySource, opts ...Option) (*Codec, error) {
	if cfg.TTL < MinTTL {
		return nil, fmt.Errorf("%w: %s (minimum %s)", ErrInvalidTTL, cfg.TTL, MinTTL)
	}
	if source == nil {
		return nil, errors.New("key source is required")
	}

	key, err := source.SigningKey()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain signing key: %w", err)
	}
	if len(key) < MinKeyLength {
		return nil, fmt.Errorf("%w: got %d bytes", ErrKeyTooShort, len(key))
	}

	c := &Codec{
		key:    append([]byte(nil), key...),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured token lifetime
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue builds and signs a token for subject, valid from now until now+TTL.
// now is truncated to whole seconds so that ExpiresAt-IssuedAt equals the TTL.
func (c *Codec) Issue(subject string, now time.Time) (*Token, error) {
	if subject == "" {
		return nil, ErrEmptySubject
	}

	issuedAt := jwt.NewNumericDate(now.Truncate(time.Second))
	expiresAt := jwt.NewNumericDate(issuedAt.Add(c.ttl))

	registered := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    c.issuer,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}

	signed, err := jwt.NewWithClaims(signingMethod, registered).SignedString(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Token{
		Value: signed,
		Claims: Claims{
			ID:        registered.ID,
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  issuedAt.Time,
			ExpiresAt: expiresAt.Time,
		},
	}, nil
}

// Decode verifies tokenString against the codec clock and returns its claims
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	return c.DecodeAt(tokenString, c.now())
}

// DecodeAt verifies tokenString as of now. Checks run in a fixed order:
// structure (ErrMalformed), signature (ErrSignature), then claims, where an
// expiry at or before now yields ErrExpired. Claims are never read before
// the signature has been verified. A three-segment token whose header no
// longer decodes but which still carries a full-size MAC is reported as
// ErrSignature; only input that never had the shape of a token is
// ErrMalformed.
func (c *Codec) DecodeAt(tokenString string, now time.Time) (*Claims, error) {
	parser := c.newParser(now)

	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformed
	}
	if err := checkHeader(parser, parts[0]); err != nil {
		// An unreadable header next to a full-size MAC is an altered token
		if errors.Is(err, ErrMalformed) && carriesMAC(parser, parts[2]) {
			return nil, ErrSignature
		}
		return nil, err
	}

	signature, err := parser.DecodeSegment(parts[2])
	if err != nil || len(signature) == 0 {
		return nil, ErrSignature
	}
	if err := signingMethod.Verify(parts[0]+"."+parts[1], signature, c.key); err != nil {
		return nil, ErrSignature
	}

	registered := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(tokenString, registered, c.keyFunc); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if registered.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	claims := &Claims{
		ID:      registered.ID,
		Subject: registered.Subject,
		Issuer:  registered.Issuer,
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

// ExtractSubject returns the subject of a fully verified token
func (c *Codec) ExtractSubject(tokenString string) (string, error) {
	claims, err := c.Decode(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (c *Codec) newParser(now time.Time) *jwt.Parser {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}
	return jwt.NewParser(options...)
}

func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != signingMethod.Alg() {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return c.key, nil
}

// carriesMAC reports whether segment decodes to a MAC of the HS256 size
func carriesMAC(parser *jwt.Parser, segment string) bool {
	mac, err := parser.DecodeSegment(segment)
	return err == nil && len(mac) == signingMethod.Hash.Size()
}

// checkHeader requires a decodable JSON header naming an algorithm.
// Tokens for any algorithm other than HS256 cannot verify under our key.
func checkHeader(parser *jwt.Parser, segment string) error {
	raw, err := parser.DecodeSegment(segment)
	if err != nil {
		return ErrMalformed
	}

	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(raw, &header); err != nil || header.Alg == "" {
		return ErrMalformed
	}
	if header.Alg != signingMethod.Alg() {
		return ErrSignature
	}
	return nil
}
