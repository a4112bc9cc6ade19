package banklink

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type bank struct {
	name   string
	domain string
}

var institutions = map[string]bank{
	"ins_1":  {"Bank of America", "bankofamerica.com"},
	"ins_2":  {"Chase", "chase.com"},
	"ins_3":  {"Wells Fargo", "wellsfargo.com"},
	"ins_4":  {"Citibank", "citibank.com"},
	"ins_5":  {"Capital One", "capitalone.com"},
	"ins_6":  {"TD Bank", "tdbank.com"},
	"ins_7":  {"PNC Bank", "pnc.com"},
	"ins_8":  {"U.S. Bank", "usbank.com"},
	"ins_9":  {"SunTrust", "suntrust.com"},
	"ins_10": {"Navy Federal Credit Union", "navyfederal.org"},
}

var unknownBank = bank{"Unknown Bank", "bank.com"}

type SimulatorConfig struct {
	Latency     time.Duration
	LinkTTL     time.Duration
	LogoBaseURL string
}

// Simulator returns synthetic sandbox data after a fixed latency. Waits
// honour context cancellation.
type Simulator struct {
	cfg SimulatorConfig
	log *zap.Logger
	now func() time.Time
	mu  sync.Mutex
	ids *ulid.MonotonicEntropy
}

func NewSimulator(cfg SimulatorConfig, log *zap.Logger) *Simulator {
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{
		cfg: cfg,
		log: log,
		now: time.Now,
		ids: ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Simulator) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(s.now()), s.ids).String())
}

func (s *Simulator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Simulator) CreateLinkToken(ctx context.Context, userID uint) (*LinkToken, error) {
	s.log.Info("creating link token", zap.Uint("user_id", userID))
	if err := s.wait(ctx, s.cfg.Latency); err != nil {
		return nil, err
	}

	return &LinkToken{
		Token:      fmt.Sprintf("link-sandbox-%d-%s", userID, s.newID()),
		Expiration: s.now().Add(s.cfg.LinkTTL),
		RequestID:  "req-" + s.newID(),
	}, nil
}

func (s *Simulator) ExchangePublicToken(ctx context.Context, publicToken string) (*Exchange, error) {
	if !strings.HasPrefix(publicToken, "public-") {
		return nil, ErrInvalidPublicToken
	}
	s.log.Info("exchanging public token")
	if err := s.wait(ctx, s.cfg.Latency); err != nil {
		return nil, err
	}

	return &Exchange{
		AccessToken: "access-sandbox-" + s.newID(),
		ItemID:      "item-sandbox-" + s.newID(),
		RequestID:   "req-" + s.newID(),
	}, nil
}

func (s *Simulator) GetInstitutionByID(ctx context.Context, institutionID string) (*Institution, error) {
	if institutionID == "" {
		return nil, ErrMissingInstitution
	}
	s.log.Info("looking up institution", zap.String("institution_id", institutionID))
	if err := s.wait(ctx, s.cfg.Latency/2); err != nil {
		return nil, err
	}

	b, ok := institutions[institutionID]
	if !ok {
		b = unknownBank
	}
	return &Institution{
		InstitutionID: institutionID,
		Name:          b.name,
		Logo:          s.cfg.LogoBaseURL + b.domain,
		URL:           "https://www." + b.domain,
		CountryCodes:  []string{"US"},
		Products:      []string{"auth", "balance", "identity", "transactions"},
	}, nil
}
