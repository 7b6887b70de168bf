// Package keys loads broker signing key material and exposes the matching
// JWKS document for asymmetric algorithms.
package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Config selects and locates the signing key
type Config struct {
	// Algorithm is the JWS signing algorithm: HS256/HS384/HS512 (shared
	// secret) or RS256/RS384/RS512 (RSA private key)
	Algorithm string `koanf:"algorithm" usage:"broker token signing algorithm"`

	// Secret is the shared secret for HMAC algorithms
	Secret string `koanf:"secret" usage:"signing secret for HMAC algorithms"`

	// SecretEnv names an environment variable holding the secret; takes
	// precedence over Secret so secrets can stay out of config files
	SecretEnv string `koanf:"secret_env" usage:"environment variable holding the signing secret"`

	// KeyFile is a PEM-encoded RSA private key for RSA algorithms
	KeyFile string `koanf:"key_file" usage:"PEM private key file for RSA algorithms"`
}

// Material holds resolved signing material. Immutable after Load.
type Material struct {
	alg       jwa.SignatureAlgorithm
	keyID     string
	signKey   any
	verifyKey any
	jwks      jwk.Set
}

// Load resolves key material from configuration, failing eagerly on missing
// or malformed keys so startup fails instead of the first token request
func Load(cfg Config) (*Material, error) {
	alg, err := signatureAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	switch alg {
	case jwa.HS256, jwa.HS384, jwa.HS512:
		return loadSymmetric(cfg, alg)
	case jwa.RS256, jwa.RS384, jwa.RS512:
		return loadRSA(cfg, alg)
	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", alg)
	}
}

func signatureAlgorithm(name string) (jwa.SignatureAlgorithm, error) {
	if name == "" {
		return jwa.HS256, nil
	}
	switch name {
	case "HS256":
		return jwa.HS256, nil
	case "HS384":
		return jwa.HS384, nil
	case "HS512":
		return jwa.HS512, nil
	case "RS256":
		return jwa.RS256, nil
	case "RS384":
		return jwa.RS384, nil
	case "RS512":
		return jwa.RS512, nil
	default:
		return "", fmt.Errorf("unsupported signing algorithm: %s (supported: HS256, HS384, HS512, RS256, RS384, RS512)", name)
	}
}

func loadSymmetric(cfg Config, alg jwa.SignatureAlgorithm) (*Material, error) {
	secret := cfg.Secret
	if cfg.SecretEnv != "" {
		secret = os.Getenv(cfg.SecretEnv)
		if secret == "" {
			return nil, fmt.Errorf("signing secret environment variable %s is not set", cfg.SecretEnv)
		}
	}
	if secret == "" {
		return nil, fmt.Errorf("%s requires a signing secret (secret or secret_env)", alg)
	}

	return &Material{
		alg:       alg,
		keyID:     uuid.NewString(),
		signKey:   []byte(secret),
		verifyKey: []byte(secret),
		// Shared secrets are never published
		jwks: jwk.NewSet(),
	}, nil
}

func loadRSA(cfg Config, alg jwa.SignatureAlgorithm) (*Material, error) {
	if cfg.KeyFile == "" {
		return nil, fmt.Errorf("%s requires key_file", alg)
	}

	pemBytes, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", cfg.KeyFile, err)
	}

	priv, err := parseRSAPrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %s: %w", cfg.KeyFile, err)
	}

	keyID := uuid.NewString()

	pub, err := jwk.FromRaw(priv.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to build JWK from public key: %w", err)
	}
	if err := pub.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}
	if err := pub.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}
	if err := pub.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("failed to set key use: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		return nil, fmt.Errorf("failed to add key to JWKS: %w", err)
	}

	return &Material{
		alg:       alg,
		keyID:     keyID,
		signKey:   priv,
		verifyKey: priv.Public(),
		jwks:      set,
	}, nil
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("not a PKCS#1 or PKCS#8 private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("expected an RSA private key, got %T", parsed)
	}
	return key, nil
}

// Algorithm returns the signing algorithm
func (m *Material) Algorithm() jwa.SignatureAlgorithm {
	return m.alg
}

// KeyID returns the kid written into token headers
func (m *Material) KeyID() string {
	return m.keyID
}

// SignKey returns the private signing key
func (m *Material) SignKey() any {
	return m.signKey
}

// VerifyKey returns the public (or shared) verification key
func (m *Material) VerifyKey() any {
	return m.verifyKey
}

// JWKS returns the public key set for the JWKS endpoint. Empty for
// symmetric algorithms.
func (m *Material) JWKS() jwk.Set {
	return m.jwks
}
