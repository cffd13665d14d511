package dashauth

import (
	"errors"
	"time"

	"github.com/pharmalens/dashauth/directory"
	"github.com/pharmalens/dashauth/internal/audit"
	"github.com/pharmalens/dashauth/internal/logging"
	"github.com/pharmalens/dashauth/internal/rate"
	"github.com/pharmalens/dashauth/internal/stores"
	"github.com/pharmalens/dashauth/kv"
	"github.com/pharmalens/dashauth/mail"
	"github.com/pharmalens/dashauth/password"
	"github.com/pharmalens/dashauth/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. A Builder can be built once.
//
// Builder instances are intended to be configured during initialization and then discarded.
type Builder struct {
	config Config
	store  kv.Store
	redis  redis.UniversalClient

	mailer    mail.Sender
	hasher    password.Hasher
	auditSink AuditSink

	logger    zerolog.Logger
	hasLogger bool

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the key-value store. It takes precedence over WithRedis.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithRedis backs the Engine with client, applying Config.Store.KeyPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMailer sets the outbound mail sender. Without one, emails are logged
// and not delivered.
func (b *Builder) WithMailer(sender mail.Sender) *Builder {
	b.mailer = sender
	return b
}

// WithHasher overrides the Argon2id hasher built from Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithLogger sets the parent logger. Components derive tagged children from it.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.hasLogger = true
	return b
}

// WithAuditSink sets the audit destination. Without one, audit events are
// written through the logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("key-value store or redis client required")
		}
		store = kv.NewRedis(b.redis, cfg.Store.KeyPrefix)
	}

	logger := zerolog.Nop()
	if b.hasLogger {
		logger = b.logger
	}

	metrics := NewMetrics(cfg.Metrics)

	// -------- PASSWORD HASHER --------
	hasher := b.hasher
	if hasher == nil {
		ph, err := password.NewArgon2(cfg.Password.hasherConfig())
		if err != nil {
			return nil, err
		}
		hasher = ph
	}
	hasher = timedHasher{inner: hasher, metrics: metrics}

	// -------- MAIL --------
	mailer := b.mailer
	if mailer == nil {
		mailer = mail.LogSender{Logger: logging.Component(logger, "mail")}
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = NewZerologSink(logging.Component(logger, "audit"))
	}

	engine := &Engine{
		config:  cfg,
		store:   store,
		logger:  logging.Component(logger, "engine"),
		metrics: metrics,
		mailer:  mailer,
		composer: mail.Composer{
			From:    cfg.Mail.From,
			AppName: cfg.Mail.AppName,
			BaseURL: cfg.Mail.BaseURL,
		},
		now: time.Now,
	}

	engine.users = directory.New(store, hasher, directory.Config{
		VerificationTTL: cfg.EmailVerification.TokenTTL,
		Logger:          logging.Component(logger, "directory"),
	})
	engine.sessions = session.NewManager(session.NewStore(store), session.ManagerConfig{
		CookieName:       cfg.Session.CookieName,
		ShortLifetime:    cfg.Session.ShortLifetime,
		RememberLifetime: cfg.Session.RememberLifetime,
		SecureCookie:     cfg.Session.SecureCookie,
		Logger:           logging.Component(logger, "session"),
	})
	engine.verifications = stores.NewEmailVerificationStore(store)
	engine.resets = stores.NewPasswordResetStore(store)
	engine.limiter = rate.New(store, rate.Config{
		EnableIPThrottle:      cfg.RateLimit.EnableIPThrottle,
		MaxLoginAttempts:      cfg.RateLimit.MaxLoginAttempts,
		LoginCooldownDuration: cfg.RateLimit.LoginCooldown,
		MaxMailRequests:       cfg.RateLimit.MaxMailRequests,
		MailCooldownDuration:  cfg.RateLimit.MailCooldown,
	})
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	b.built = true

	return engine, nil
}

// timedHasher records hash and verify latency.
type timedHasher struct {
	inner   password.Hasher
	metrics *Metrics
}

func (h timedHasher) Hash(plain string) (string, error) {
	start := time.Now()
	defer func() { h.metrics.Observe(MetricHashLatency, time.Since(start)) }()
	return h.inner.Hash(plain)
}

func (h timedHasher) Verify(plain, stored string) bool {
	start := time.Now()
	defer func() { h.metrics.Observe(MetricHashLatency, time.Since(start)) }()
	return h.inner.Verify(plain, stored)
}
