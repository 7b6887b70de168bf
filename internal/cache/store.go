// Package cache provides the namespaced, TTL-bounded token cache and the
// fire-and-forget write path that keeps cache population off request latency.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Namespace separates the two logical token caches
type Namespace string

const (
	// NamespaceProviderToken holds tokens minted by the upstream telco
	NamespaceProviderToken Namespace = "telco_token"

	// NamespaceBrokerToken holds broker-signed response tokens
	NamespaceBrokerToken Namespace = "broker_token"
)

// MinTTL is the floor applied to derived TTLs so entries under clock skew
// still expire rather than living forever with a non-positive TTL
const MinTTL = time.Second

// Store is a key/value cache with per-entry TTL. Implementations must be
// safe for concurrent use. Get treats any underlying failure as a miss;
// Set failures are reported but callers on the request path never await Set
// (see Writer).
type Store interface {
	// Get returns the cached value for key within namespace, or false on
	// miss (including store unavailability)
	Get(ctx context.Context, ns Namespace, key string) ([]byte, bool)

	// Set stores value under key within namespace for at most ttl
	Set(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) error
}

// Fingerprint derives the deterministic cache key for a token request.
// Identical requests produce identical fingerprints; the auth code enters
// the key only as a digest so the secret never appears in key material.
// Shape mirrors the routing key layout: <mcc>_<sn>_<digest>.
func Fingerprint(mcc, sn, authCode string) string {
	sum := sha256.Sum256([]byte(authCode))
	return fmt.Sprintf("%s_%s_%s", mcc, sn, hex.EncodeToString(sum[:16]))
}

// TTLFor derives a cache TTL from a token's validity window, floored at
// MinTTL and capped at max to bound memory under clock skew
func TTLFor(issuedAt, expiresAt time.Time, max time.Duration) time.Duration {
	ttl := expiresAt.Sub(issuedAt)
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if max > 0 && ttl > max {
		ttl = max
	}
	return ttl
}

// namespacedKey builds the storage key: <namespace>_<fingerprint>
func namespacedKey(ns Namespace, key string) string {
	return string(ns) + "_" + key
}
