package sessionkit

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sessionkit/sessionkit/claims"
	"github.com/sessionkit/sessionkit/core"
	"github.com/sessionkit/sessionkit/mirror"
	"github.com/sessionkit/sessionkit/rediscore"
	"github.com/sessionkit/sessionkit/token"
)

type claimRegistration struct {
	claim      *claims.Claim
	validators []claims.Validator
}

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the engine's methods are called.
type Builder struct {
	config Config
	core   core.Client
	redis  redis.UniversalClient

	claimRegs []claimRegistration
	overrides []OverrideFunc

	auditSink AuditSink
	logger    zerolog.Logger
	loggerSet bool
	now       func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{config: defaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCore wires an explicit session core, e.g. [core.HTTPClient] for a
// remote core service.
func (b *Builder) WithCore(client core.Client) *Builder {
	b.core = client
	return b
}

// WithRedis wires a Redis-backed in-process core using the engine's token
// TTLs. Ignored when WithCore is also set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithClaim registers a claim and its default validators. Registered
// claims are fetched into every new session's payload; default validators
// run on every VerifySession call.
func (b *Builder) WithClaim(claim *claims.Claim, defaults ...claims.Validator) *Builder {
	b.claimRegs = append(b.claimRegs, claimRegistration{claim: claim, validators: defaults})
	return b
}

// WithOverride appends a layer to the operation override table. Layers
// apply in registration order, each wrapping the previous one.
func (b *Builder) WithOverride(override OverrideFunc) *Builder {
	b.overrides = append(b.overrides, override)
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.loggerSet = true
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock overrides the engine's time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	if cfg.Token.Now == nil {
		cfg.Token.Now = now
	}

	codec, err := token.NewCodec(cfg.Token)
	if err != nil {
		return nil, err
	}
	mirrorBuilder, err := mirror.New(cfg.JWT, codec)
	if err != nil {
		return nil, err
	}

	coreClient := b.core
	if coreClient == nil {
		if b.redis == nil {
			return nil, errors.New("a session core is required: use WithCore or WithRedis")
		}
		coreClient, err = rediscore.New(rediscore.Config{
			Redis:           b.redis,
			AccessTokenTTL:  cfg.AccessTokenTTL,
			RefreshTokenTTL: cfg.RefreshTokenTTL,
			Now:             now,
		})
		if err != nil {
			return nil, err
		}
	}

	registry := claims.NewRegistry()
	for _, reg := range b.claimRegs {
		if reg.claim == nil {
			return nil, errors.New("nil claim registered")
		}
		if err := registry.Register(reg.claim, reg.validators...); err != nil {
			return nil, err
		}
	}

	logger := b.logger
	if !b.loggerSet {
		logger = zerolog.Nop()
	}

	engine := &Engine{
		config:   cfg,
		core:     coreClient,
		codec:    codec,
		mirror:   mirrorBuilder,
		registry: registry,
		metrics:  NewMetrics(cfg.Metrics),
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		logger:   logger,
		now:      now,
	}
	engine.ops = composeOverrides(Operations{
		CreateSession:               engine.createSession,
		VerifySession:               engine.verifySession,
		RefreshSession:              engine.refreshSession,
		RevokeSession:               engine.revokeSession,
		MergeIntoAccessTokenPayload: engine.mergeIntoAccessTokenPayload,
	}, b.overrides)

	b.built = true
	return engine, nil
}
