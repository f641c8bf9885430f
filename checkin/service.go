package checkin

import (
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

const (
	DefaultTokenTTL     = 24 * time.Hour
	DefaultAwardPoints  = 10
	DefaultStoreTimeout = 5 * time.Second
	DefaultRetryBackoff = 100 * time.Millisecond
)

var tracer = otel.Tracer("presence-backend/checkin")

// Config tunes the core. Zero values fall back to the defaults above.
type Config struct {
	TokenTTL     time.Duration
	AwardPoints  int64
	StoreTimeout time.Duration
	RetryBackoff time.Duration

	Now    func() time.Time
	Rand   io.Reader
	NewID  func() string
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.AwardPoints <= 0 {
		c.AwardPoints = DefaultAwardPoints
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Service wires the issuer, validator, redemption coordinator and reputation
// ledger over one store and one signer.
type Service struct {
	*Issuer
	*Validator
	*Coordinator
	Ledger *Ledger

	cfg Config
}

func New(store Store, signer *Signer, cfg Config) *Service {
	cfg = cfg.withDefaults()
	calls := caller{timeout: cfg.StoreTimeout, backoff: cfg.RetryBackoff}

	ledger := &Ledger{store: store, calls: calls, log: cfg.Logger}
	validator := &Validator{store: store, signer: signer, calls: calls, now: cfg.Now}

	return &Service{
		Issuer: &Issuer{
			store:  store,
			signer: signer,
			calls:  calls,
			ttl:    cfg.TokenTTL,
			now:    cfg.Now,
			rand:   cfg.Rand,
			log:    cfg.Logger,
		},
		Validator: validator,
		Coordinator: &Coordinator{
			validator: validator,
			ledger:    ledger,
			store:     store,
			calls:     calls,
			ttl:       cfg.TokenTTL,
			points:    cfg.AwardPoints,
			now:       cfg.Now,
			newID:     cfg.NewID,
			log:       cfg.Logger,
		},
		Ledger: ledger,
		cfg:    cfg,
	}
}

// TokenTTL is the configured validity window of issued tokens.
func (s *Service) TokenTTL() time.Duration {
	return s.cfg.TokenTTL
}

// AwardPoints is the fixed per-attendance reputation award.
func (s *Service) AwardPoints() int64 {
	return s.cfg.AwardPoints
}
