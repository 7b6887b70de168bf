// Package probe provides issuance observers: request-scoped probes that turn
// broker issuance events into structured logs.
package probe

import (
	"context"
	"log/slog"

	"github.com/telcobridge/telcobridge/internal/broker"
	"github.com/telcobridge/telcobridge/internal/cache"
	"github.com/telcobridge/telcobridge/internal/token"
)

// loggingObserver creates request-scoped logging probes
type loggingObserver struct {
	logger *slog.Logger
}

// NewLoggingIssuanceObserver creates an observer that logs issuance events
// using structured logging with slog
func NewLoggingIssuanceObserver(logger *slog.Logger) broker.IssuanceObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingObserver{
		logger: logger,
	}
}

func (o *loggingObserver) IssuanceStarted(ctx context.Context, mcc, sn string) (context.Context, broker.IssuanceProbe) {
	o.logger.LogAttrs(ctx, slog.LevelDebug, "Starting token issuance",
		slog.String("mcc", mcc),
		slog.String("sn", sn),
	)

	// Return a request-scoped probe that captures the context
	return ctx, &loggingProbe{
		ctx:    ctx,
		logger: o.logger,
	}
}

// loggingProbe is a request-scoped probe that logs events for a single
// issuance
type loggingProbe struct {
	ctx    context.Context
	logger *slog.Logger
}

func (p *loggingProbe) CacheHit(ns cache.Namespace) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Cache hit",
		slog.String("namespace", string(ns)),
	)
}

func (p *loggingProbe) CacheMiss(ns cache.Namespace) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Cache miss",
		slog.String("namespace", string(ns)),
	)
}

func (p *loggingProbe) RouteResolved(prefix string) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Resolved provider route",
		slog.String("prefix", prefix),
	)
}

func (p *loggingProbe) ProviderCallSucceeded(tok *token.Token) {
	attrs := []slog.Attr{}
	if tok != nil {
		attrs = append(attrs,
			slog.Time("issued_at", tok.IssuedAt),
			slog.Time("expires_at", tok.ExpiresAt),
		)
	}
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Provider issued token", attrs...)
}

func (p *loggingProbe) ProviderCallFailed(err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelError,
		"Provider call failed",
		slog.String("error", err.Error()),
	)
}

func (p *loggingProbe) IssuanceSucceeded(source broker.Source, tok *token.Token) {
	attrs := []slog.Attr{
		slog.String("source", string(source)),
	}
	if tok != nil {
		attrs = append(attrs,
			slog.Time("issued_at", tok.IssuedAt),
			slog.Time("expires_at", tok.ExpiresAt),
		)
	}
	p.logger.LogAttrs(p.ctx, slog.LevelInfo, "Token issued", attrs...)
}

func (p *loggingProbe) IssuanceFailed(err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelError,
		"Token issuance failed",
		slog.String("error", err.Error()),
	)
}

func (p *loggingProbe) End() {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Token issuance completed")
}
