package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/telcobridge/telcobridge/internal/clock"
	"github.com/telcobridge/telcobridge/internal/keys"
)

var (
	// ErrInvalidSignature is returned when a token fails signature or
	// structural verification
	ErrInvalidSignature = errors.New("token signature verification failed")

	// ErrTokenExpired is returned when a token's expiry has passed
	ErrTokenExpired = errors.New("token has expired")
)

const (
	claimMCC     = "mcc"
	claimSN      = "sn"
	claimAuthRef = "auth_ref"
)

// Codec encodes and decodes broker JWTs. Broker token lifetime is fixed by
// configuration, independent of whatever lifetime the provider granted.
type Codec struct {
	issuer   string
	ttl      time.Duration
	material *keys.Material
	clock    clock.Clock
}

// CodecConfig configures the broker token codec
type CodecConfig struct {
	// Issuer is the iss claim on broker tokens
	Issuer string

	// TTL is the broker token lifetime
	TTL time.Duration

	// Material is the signing key material
	Material *keys.Material

	// Clock is an optional clock for testing (defaults to system clock)
	Clock clock.Clock
}

// NewCodec creates a broker token codec
func NewCodec(cfg CodecConfig) *Codec {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &Codec{
		issuer:   cfg.Issuer,
		ttl:      ttl,
		material: cfg.Material,
		clock:    clk,
	}
}

// TTL returns the configured broker token lifetime
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode mints a signed broker token from the given claims
func (c *Codec) Encode(claims Claims) (*Token, error) {
	// JWTs carry second-resolution timestamps; truncate so the token body
	// and the signed claims agree exactly
	now := c.clock.Now().UTC().Truncate(time.Second)
	expiresAt := now.Add(c.ttl)

	tok := jwt.New()
	for key, value := range map[string]any{
		jwt.IssuerKey:     c.issuer,
		jwt.JwtIDKey:      uuid.NewString(),
		jwt.IssuedAtKey:   now.Unix(),
		jwt.ExpirationKey: expiresAt.Unix(),
		claimMCC:          claims.MCC,
		claimSN:           claims.SN,
		claimAuthRef:      claims.AuthRef,
	} {
		if err := tok.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set claim %s: %w", key, err)
		}
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, c.material.KeyID()); err != nil {
		return nil, fmt.Errorf("failed to set key ID header: %w", err)
	}

	signed, err := jwt.Sign(tok,
		jwt.WithKey(c.material.Algorithm(), c.material.SignKey(), jws.WithProtectedHeaders(headers)))
	if err != nil {
		return nil, fmt.Errorf("failed to sign broker token: %w", err)
	}

	return &Token{
		AccessToken: string(signed),
		GrantType:   GrantTypeClientCredentials,
		TokenType:   "Bearer",
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
	}, nil
}

// Decode verifies a broker token's signature and expiry and returns its
// claims. Returns ErrTokenExpired for valid-but-stale tokens and
// ErrInvalidSignature for anything that fails verification.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	tok, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(c.material.Algorithm(), c.material.VerifyKey()),
		jwt.WithValidate(true),
		jwt.WithClock(c.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	claims := &Claims{
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}

	private := tok.PrivateClaims()
	if v, ok := private[claimMCC].(string); ok {
		claims.MCC = v
	}
	if v, ok := private[claimSN].(string); ok {
		claims.SN = v
	}
	if v, ok := private[claimAuthRef].(string); ok {
		claims.AuthRef = v
	}

	return claims, nil
}
