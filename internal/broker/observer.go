package broker

import (
	"context"

	"github.com/telcobridge/telcobridge/internal/cache"
	"github.com/telcobridge/telcobridge/internal/token"
)

// Source records where an issued token ultimately came from
type Source string

const (
	// SourceBrokerCache means a previously minted broker token was reused
	SourceBrokerCache Source = "broker_cache"

	// SourceProviderCache means the provider token was cached but the
	// broker wrapper was minted fresh
	SourceProviderCache Source = "provider_cache"

	// SourceProvider means the provider was called for a new token
	SourceProvider Source = "provider"
)

// IssuanceObserver creates request-scoped probes for token issuance.
// Implementations must be safe for concurrent use.
type IssuanceObserver interface {
	IssuanceStarted(ctx context.Context, mcc, sn string) (context.Context, IssuanceProbe)
}

// IssuanceProbe receives the events of a single issuance
type IssuanceProbe interface {
	CacheHit(ns cache.Namespace)
	CacheMiss(ns cache.Namespace)
	RouteResolved(prefix string)
	ProviderCallSucceeded(tok *token.Token)
	ProviderCallFailed(err error)
	IssuanceSucceeded(source Source, tok *token.Token)
	IssuanceFailed(err error)
	End()
}

// NewNoopObserver returns an observer whose probes do nothing. Used when no
// observability is wired in.
func NewNoopObserver() IssuanceObserver {
	return noopObserver{}
}

type noopObserver struct{}

func (noopObserver) IssuanceStarted(ctx context.Context, _, _ string) (context.Context, IssuanceProbe) {
	return ctx, noopProbe{}
}

type noopProbe struct{}

func (noopProbe) CacheHit(cache.Namespace) {}
func (noopProbe) CacheMiss(cache.Namespace) {}
func (noopProbe) RouteResolved(string) {}
func (noopProbe) ProviderCallSucceeded(*token.Token) {}
func (noopProbe) ProviderCallFailed(error) {}
func (noopProbe) IssuanceSucceeded(Source, *token.Token) {}
func (noopProbe) IssuanceFailed(error) {}
func (noopProbe) End() {}
