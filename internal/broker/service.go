// Package broker orchestrates token issuance: cache-first lookup, directory
// resolution, the provider exchange, and minting of the broker-signed wrapper
// token, with concurrent identical requests collapsed into one provider call.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/telcobridge/telcobridge/internal/cache"
	"github.com/telcobridge/telcobridge/internal/clock"
	"github.com/telcobridge/telcobridge/internal/directory"
	"github.com/telcobridge/telcobridge/internal/telco"
	"github.com/telcobridge/telcobridge/internal/token"
)

// TelcoClient requests a token from a resolved provider
type TelcoClient interface {
	RequestToken(ctx context.Context, desc *directory.Descriptor, mcc, sn, authCode string) (*token.Token, error)
}

// Request is a validated token request
type Request struct {
	MCC      string
	SN       string
	AuthCode string
}

// Result is an issued broker token together with where it came from
type Result struct {
	Token  *token.Token
	Source Source
}

// Service is the issuance orchestrator
type Service struct {
	routes   *directory.Directory
	store    cache.Store
	writer   *cache.Writer
	telco    TelcoClient
	codec    *token.Codec
	clock    clock.Clock
	logger   *slog.Logger
	observer IssuanceObserver

	flight       singleflight.Group
	followerWait time.Duration
	maxCacheTTL  time.Duration
}

// ServiceConfig configures the issuance orchestrator
type ServiceConfig struct {
	Directory *directory.Directory
	Store     cache.Store
	Writer    *cache.Writer
	Telco     TelcoClient
	Codec     *token.Codec

	// FollowerWait bounds how long a deduplicated request waits for the
	// in-flight leader before issuing independently. Must exceed the telco
	// latency ceiling (default: ceiling + 1s).
	FollowerWait time.Duration

	// MaxCacheTTL caps cache entry lifetimes regardless of token expiry
	// (default 1h)
	MaxCacheTTL time.Duration

	Clock    clock.Clock
	Logger   *slog.Logger
	Observer IssuanceObserver
}

// NewService creates the issuance orchestrator
func NewService(cfg ServiceConfig) *Service {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NewNoopObserver()
	}
	followerWait := cfg.FollowerWait
	if followerWait == 0 {
		// Must exceed the telco latency ceiling: a wait at or below it
		// would let a request abandon its own provider call at the last
		// instant and issue a duplicate
		followerWait = telco.DefaultLatencyCeiling + time.Second
	}
	maxCacheTTL := cfg.MaxCacheTTL
	if maxCacheTTL == 0 {
		maxCacheTTL = time.Hour
	}

	return &Service{
		routes:       cfg.Directory,
		store:        cfg.Store,
		writer:       cfg.Writer,
		telco:        cfg.Telco,
		codec:        cfg.Codec,
		clock:        clk,
		logger:       logger.With("component", "broker"),
		observer:     observer,
		followerWait: followerWait,
		maxCacheTTL:  maxCacheTTL,
	}
}

// Issue returns a broker token for the request, serving from cache when a
// previously minted token for the same fingerprint is still valid
func (s *Service) Issue(ctx context.Context, req Request) (*Result, error) {
	start := s.clock.Now()
	ctx, probe := s.observer.IssuanceStarted(ctx, req.MCC, req.SN)
	defer probe.End()

	res, err := s.issue(ctx, probe, req)
	if err != nil {
		issuanceFailuresCounter.WithLabelValues(failureReason(err)).Inc()
		probe.IssuanceFailed(err)
		return nil, err
	}

	issuanceDurationHist.WithLabelValues(string(res.Source)).Observe(s.clock.Now().Sub(start).Seconds())
	probe.IssuanceSucceeded(res.Source, res.Token)
	return res, nil
}

func (s *Service) issue(ctx context.Context, probe IssuanceProbe, req Request) (*Result, error) {
	fingerprint := cache.Fingerprint(req.MCC, req.SN, req.AuthCode)

	if tok := s.cachedToken(ctx, probe, cache.NamespaceBrokerToken, fingerprint); tok != nil {
		return &Result{Token: tok, Source: SourceBrokerCache}, nil
	}

	// Collapse concurrent identical requests into one provider exchange.
	// The leader runs detached from its caller's context so one caller
	// hanging up neither fails the followers nor skips cache population.
	ch := s.flight.DoChan(fingerprint, func() (any, error) {
		return s.mint(context.WithoutCancel(ctx), probe, req, fingerprint)
	})

	wait := time.NewTimer(s.followerWait)
	defer wait.Stop()

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result), nil

	case <-ctx.Done():
		return nil, ctx.Err()

	case <-wait.C:
		// The leader is taking too long; issue independently rather
		// than stay coupled to its fate
		followerTimeoutsCounter.Inc()
		s.logger.WarnContext(ctx, "gave up waiting for in-flight issuance, issuing independently",
			"mcc", req.MCC)
		return s.mint(ctx, probe, req, fingerprint)
	}
}

// mint runs the full issuance pipeline: resolve the route, obtain a provider
// token (cache first), wrap it in a broker token, and queue both cache writes
func (s *Service) mint(ctx context.Context, probe IssuanceProbe, req Request, fingerprint string) (*Result, error) {
	desc, err := s.routes.Resolve(req.MCC, req.SN)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%w: mcc %s", ErrNoRoute, req.MCC)
		}
		return nil, fmt.Errorf("resolving provider route: %w", err)
	}
	probe.RouteResolved(desc.Prefix)

	source := SourceProviderCache
	providerTok := s.cachedToken(ctx, probe, cache.NamespaceProviderToken, fingerprint)
	if providerTok == nil {
		source = SourceProvider

		providerTok, err = s.telco.RequestToken(ctx, desc, req.MCC, req.SN, req.AuthCode)
		if err != nil {
			probe.ProviderCallFailed(err)
			return nil, classifyProviderError(err)
		}
		probe.ProviderCallSucceeded(providerTok)
		providerRequestsCounter.WithLabelValues("success").Inc()

		s.enqueueWrite(cache.NamespaceProviderToken, fingerprint, providerTok)
	}

	brokerTok, err := s.codec.Encode(token.Claims{
		MCC:     req.MCC,
		SN:      req.SN,
		AuthRef: token.AuthRef(req.AuthCode),
	})
	if err != nil {
		return nil, fmt.Errorf("minting broker token: %w", err)
	}

	s.enqueueWrite(cache.NamespaceBrokerToken, fingerprint, brokerTok)

	return &Result{Token: brokerTok, Source: source}, nil
}

// cachedToken returns a still-valid token from the given namespace, or nil.
// Undecodable and expired entries count as misses.
func (s *Service) cachedToken(ctx context.Context, probe IssuanceProbe, ns cache.Namespace, fingerprint string) *token.Token {
	raw, ok := s.store.Get(ctx, ns, fingerprint)
	if !ok {
		s.recordMiss(probe, ns)
		return nil
	}

	var tok token.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		s.logger.WarnContext(ctx, "discarding undecodable cache entry",
			"namespace", ns,
			"error", err)
		s.recordMiss(probe, ns)
		return nil
	}

	if !tok.ExpiresAt.After(s.clock.Now()) {
		s.recordMiss(probe, ns)
		return nil
	}

	cacheLookupsCounter.WithLabelValues(string(ns), "hit").Inc()
	probe.CacheHit(ns)
	return &tok
}

func (s *Service) recordMiss(probe IssuanceProbe, ns cache.Namespace) {
	cacheLookupsCounter.WithLabelValues(string(ns), "miss").Inc()
	probe.CacheMiss(ns)
}

// enqueueWrite serializes a token and hands it to the background writer.
// Serialization failure costs only a future cache hit, never the response.
func (s *Service) enqueueWrite(ns cache.Namespace, fingerprint string, tok *token.Token) {
	raw, err := json.Marshal(tok)
	if err != nil {
		s.logger.Error("failed to serialize token for caching",
			"namespace", ns,
			"error", err)
		return
	}

	ttl := cache.TTLFor(tok.IssuedAt, tok.ExpiresAt, s.maxCacheTTL)
	s.writer.Enqueue(ns, fingerprint, raw, ttl)
}

func classifyProviderError(err error) error {
	switch {
	case errors.Is(err, telco.ErrUnauthorized):
		providerRequestsCounter.WithLabelValues("unauthorized").Inc()
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case errors.Is(err, telco.ErrUnavailable):
		providerRequestsCounter.WithLabelValues("unavailable").Inc()
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	default:
		providerRequestsCounter.WithLabelValues("unavailable").Inc()
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}
