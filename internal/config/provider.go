package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/telcobridge/telcobridge/internal/broker"
	"github.com/telcobridge/telcobridge/internal/cache"
	"github.com/telcobridge/telcobridge/internal/directory"
	"github.com/telcobridge/telcobridge/internal/keys"
	"github.com/telcobridge/telcobridge/internal/probe"
	"github.com/telcobridge/telcobridge/internal/telco"
	"github.com/telcobridge/telcobridge/internal/token"
)

// Provider constructs all application components from configuration.
// This is the main entry point for building a configured broker instance.
type Provider struct {
	config *Config

	// Lazily constructed components (cached after first call)
	logger    *slog.Logger
	directory *directory.Directory
	store     cache.Store
	memory    *cache.Memory
	writer    *cache.Writer
	material  *keys.Material
	codec     *token.Codec
	telco     *telco.Client
	broker    *broker.Service
}

// NewProvider creates a new provider from configuration
func NewProvider(config *Config) *Provider {
	return &Provider{
		config: config,
	}
}

// Logger returns the configured root logger
func (p *Provider) Logger() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}

	level := slog.LevelInfo
	format := "text"
	if obs := p.config.Observability; obs != nil {
		switch obs.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		if obs.LogFormat != "" {
			format = obs.LogFormat
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	p.logger = slog.New(handler)
	return p.logger
}

// Directory returns the provider prefix table loaded from the configured
// path
func (p *Provider) Directory() (*directory.Directory, error) {
	if p.directory != nil {
		return p.directory, nil
	}

	path := p.config.Directory.Path
	if path == "" {
		path = "./configs/prefixes.yaml"
	}

	dir, err := directory.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider directory: %w", err)
	}

	p.directory = dir
	return dir, nil
}

// Store returns the configured cache store
func (p *Provider) Store() (cache.Store, error) {
	if p.store != nil {
		return p.store, nil
	}

	switch p.config.Cache.Type {
	case "", "memory":
		mem, err := cache.NewMemory(cache.MemoryConfig{
			MaxCostBytes: p.config.Cache.MaxCostBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		p.memory = mem
		p.store = mem

	case "none":
		p.store = cache.NewNull()

	default:
		return nil, fmt.Errorf("unknown cache type %q", p.config.Cache.Type)
	}

	return p.store, nil
}

// Writer returns the background cache writer
func (p *Provider) Writer() (*cache.Writer, error) {
	if p.writer != nil {
		return p.writer, nil
	}

	store, err := p.Store()
	if err != nil {
		return nil, err
	}

	p.writer = cache.NewWriter(store, p.Logger(), cache.WriterConfig{
		QueueSize: p.config.Cache.WriteQueueSize,
		OnDrop:    broker.CountDroppedCacheWrite,
	})
	return p.writer, nil
}

// KeyMaterial returns the broker token signing material
func (p *Provider) KeyMaterial() (*keys.Material, error) {
	if p.material != nil {
		return p.material, nil
	}

	signing := p.config.Broker.Signing
	material, err := keys.Load(keys.Config{
		Algorithm: signing.Algorithm,
		Secret:    signing.Secret,
		SecretEnv: signing.SecretEnv,
		KeyFile:   signing.KeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key material: %w", err)
	}

	p.material = material
	return material, nil
}

// Codec returns the broker token codec
func (p *Provider) Codec() (*token.Codec, error) {
	if p.codec != nil {
		return p.codec, nil
	}

	material, err := p.KeyMaterial()
	if err != nil {
		return nil, err
	}

	ttl, err := parseDuration(p.config.Broker.TokenTTL, "broker.token_ttl")
	if err != nil {
		return nil, err
	}

	p.codec = token.NewCodec(token.CodecConfig{
		Issuer:   p.config.Broker.Issuer,
		TTL:      ttl,
		Material: material,
	})
	return p.codec, nil
}

// TelcoClient returns the outbound provider client
func (p *Provider) TelcoClient() (*telco.Client, error) {
	if p.telco != nil {
		return p.telco, nil
	}

	requestTimeout, err := parseDuration(p.config.Telco.RequestTimeout, "telco.request_timeout")
	if err != nil {
		return nil, err
	}
	latencyCeiling, err := parseDuration(p.config.Telco.LatencyCeiling, "telco.latency_ceiling")
	if err != nil {
		return nil, err
	}

	p.telco = telco.NewClient(telco.ClientConfig{
		RequestTimeout: requestTimeout,
		LatencyCeiling: latencyCeiling,
		Logger:         p.Logger(),
	})
	return p.telco, nil
}

// BrokerService returns the issuance orchestrator
func (p *Provider) BrokerService() (*broker.Service, error) {
	if p.broker != nil {
		return p.broker, nil
	}

	dir, err := p.Directory()
	if err != nil {
		return nil, err
	}
	store, err := p.Store()
	if err != nil {
		return nil, err
	}
	writer, err := p.Writer()
	if err != nil {
		return nil, err
	}
	telcoClient, err := p.TelcoClient()
	if err != nil {
		return nil, err
	}
	codec, err := p.Codec()
	if err != nil {
		return nil, err
	}

	followerWait, err := parseDuration(p.config.Broker.FollowerWait, "broker.follower_wait")
	if err != nil {
		return nil, err
	}
	if followerWait == 0 {
		// A follower should outwait the leader's whole provider budget
		ceiling, err := parseDuration(p.config.Telco.LatencyCeiling, "telco.latency_ceiling")
		if err != nil {
			return nil, err
		}
		if ceiling == 0 {
			ceiling = telco.DefaultLatencyCeiling
		}
		followerWait = ceiling + time.Second
	}
	maxCacheTTL, err := parseDuration(p.config.Cache.MaxTTL, "cache.max_ttl")
	if err != nil {
		return nil, err
	}

	p.broker = broker.NewService(broker.ServiceConfig{
		Directory:    dir,
		Store:        store,
		Writer:       writer,
		Telco:        telcoClient,
		Codec:        codec,
		FollowerWait: followerWait,
		MaxCacheTTL:  maxCacheTTL,
		Logger:       p.Logger(),
		Observer:     probe.NewLoggingIssuanceObserver(p.Logger()),
	})
	return p.broker, nil
}

// HTTPPort returns the configured HTTP port
func (p *Provider) HTTPPort() int {
	if p.config.Server.HTTPPort == 0 {
		return 8080
	}
	return p.config.Server.HTTPPort
}

// ShutdownTimeout returns the graceful shutdown bound
func (p *Provider) ShutdownTimeout() (time.Duration, error) {
	d, err := parseDuration(p.config.Server.ShutdownTimeout, "server.shutdown_timeout")
	if err != nil {
		return 0, err
	}
	if d == 0 {
		d = 10 * time.Second
	}
	return d, nil
}

// Close releases components that hold resources
func (p *Provider) Close() {
	if p.writer != nil {
		p.writer.Close()
	}
	if p.memory != nil {
		p.memory.Close()
	}
}

// parseDuration parses an optional duration string; empty means zero, which
// lets each component apply its own default
func parseDuration(s, key string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
