package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
)

func TestLoad_Symmetric(t *testing.T) {
	t.Run("inline secret", func(t *testing.T) {
		m, err := Load(Config{Algorithm: "HS256", Secret: "test-secret"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if m.Algorithm() != jwa.HS256 {
			t.Errorf("expected HS256, got %s", m.Algorithm())
		}
		if string(m.SignKey().([]byte)) != "test-secret" {
			t.Error("expected sign key to be the configured secret")
		}
		if m.JWKS().Len() != 0 {
			t.Error("symmetric material must publish an empty JWKS")
		}
	})

	t.Run("secret from environment", func(t *testing.T) {
		t.Setenv("TEST_BROKER_SECRET", "env-secret")

		m, err := Load(Config{Algorithm: "HS256", SecretEnv: "TEST_BROKER_SECRET"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(m.SignKey().([]byte)) != "env-secret" {
			t.Error("expected secret resolved from environment")
		}
	})

	t.Run("missing secret fails", func(t *testing.T) {
		if _, err := Load(Config{Algorithm: "HS256"}); err == nil {
			t.Error("expected error for missing secret")
		}
	})

	t.Run("unset secret env fails", func(t *testing.T) {
		if _, err := Load(Config{Algorithm: "HS256", SecretEnv: "TEST_BROKER_SECRET_UNSET"}); err == nil {
			t.Error("expected error for unset environment variable")
		}
	})

	t.Run("default algorithm is HS256", func(t *testing.T) {
		m, err := Load(Config{Secret: "s"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Algorithm() != jwa.HS256 {
			t.Errorf("expected HS256 default, got %s", m.Algorithm())
		}
	})
}

func TestLoad_RSA(t *testing.T) {
	keyFile := writeTestRSAKey(t)

	m, err := Load(Config{Algorithm: "RS256", KeyFile: keyFile})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Algorithm() != jwa.RS256 {
		t.Errorf("expected RS256, got %s", m.Algorithm())
	}
	if _, ok := m.SignKey().(*rsa.PrivateKey); !ok {
		t.Errorf("expected *rsa.PrivateKey sign key, got %T", m.SignKey())
	}
	if m.JWKS().Len() != 1 {
		t.Fatalf("expected 1 published key, got %d", m.JWKS().Len())
	}

	// The JWKS document must serialize with kid, alg and use
	doc, err := json.Marshal(m.JWKS())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := parsed.Keys[0]
	if key["kid"] != m.KeyID() {
		t.Errorf("expected kid %s, got %v", m.KeyID(), key["kid"])
	}
	if key["alg"] != "RS256" || key["use"] != "sig" {
		t.Errorf("unexpected key metadata: %v", key)
	}
	if _, hasPrivate := key["d"]; hasPrivate {
		t.Error("JWKS must not contain private key material")
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("unknown algorithm", func(t *testing.T) {
		if _, err := Load(Config{Algorithm: "ES999", Secret: "s"}); err == nil {
			t.Error("expected error for unknown algorithm")
		}
	})

	t.Run("RSA without key file", func(t *testing.T) {
		if _, err := Load(Config{Algorithm: "RS256"}); err == nil {
			t.Error("expected error for missing key_file")
		}
	})

	t.Run("missing key file", func(t *testing.T) {
		if _, err := Load(Config{Algorithm: "RS256", KeyFile: "/nonexistent.pem"}); err == nil {
			t.Error("expected error for unreadable key file")
		}
	})

	t.Run("malformed PEM", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.pem")
		if err := os.WriteFile(path, []byte("not a pem"), 0600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := Load(Config{Algorithm: "RS256", KeyFile: path}); err == nil {
			t.Error("expected error for malformed PEM")
		}
	})
}

func writeTestRSAKey(t *testing.T) string {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	path := filepath.Join(t.TempDir(), "broker.pem")
	if err := os.WriteFile(path, pemBytes, 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	return path
}
