package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/ccip"
	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/PerkOS-xyz/UniPerk/internal/ethsig"
	"github.com/PerkOS-xyz/UniPerk/internal/observability"
	"github.com/PerkOS-xyz/UniPerk/internal/policy"
	"github.com/rs/zerolog"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

type ServiceConfig struct {
	ParentDomain string
	Logger       zerolog.Logger
	Metrics      *observability.Metrics
	Now          func() time.Time
}

type GatewayService struct {
	repo    domain.NameRepository
	signer  *ccip.Signer
	parent  string
	log     zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

type NameListResult struct {
	Names  []domain.NameSummary
	Limit  int
	Offset int
}

func NewGatewayService(repo domain.NameRepository, signer *ccip.Signer, cfg ServiceConfig) *GatewayService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &GatewayService{
		repo:    repo,
		signer:  signer,
		parent:  strings.ToLower(strings.Trim(strings.TrimSpace(cfg.ParentDomain), ".")),
		log:     observability.Component(cfg.Logger, "gateway"),
		metrics: cfg.Metrics,
		now:     now,
	}
}

func (s *GatewayService) ParentDomain() string {
	return s.parent
}

func (s *GatewayService) SignerAddress() string {
	return s.signer.Address().Hex()
}

// InParentDomain reports whether name is a strict subdomain of the parent.
func (s *GatewayService) InParentDomain(name string) bool {
	return strings.HasSuffix(name, "."+s.parent)
}

func (s *GatewayService) GetName(ctx context.Context, name string) (domain.NameRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.NameRecord{}, fmt.Errorf("%w: name is required", domain.ErrMalformedRequest)
	}
	rec, err := s.repo.GetName(ctx, name)
	if err != nil {
		return domain.NameRecord{}, s.storeErr("get name", err)
	}
	return rec, nil
}

// SubdomainByAddress returns the name owned by address, or "" when the
// address owns none.
func (s *GatewayService) SubdomainByAddress(ctx context.Context, address string) (string, error) {
	if !ethsig.IsAddress(address) {
		return "", fmt.Errorf("%w: missing or invalid address", domain.ErrMalformedRequest)
	}
	name, err := s.repo.GetNameByOwner(ctx, address)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", s.storeErr("get name by owner", err)
	}
	return name, nil
}

func (s *GatewayService) ListSubdomains(ctx context.Context, limit, offset int) (NameListResult, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	names, err := s.repo.ListNames(ctx, limit, offset)
	if err != nil {
		return NameListResult{}, s.storeErr("list names", err)
	}
	if names == nil {
		names = []domain.NameSummary{}
	}
	return NameListResult{Names: names, Limit: limit, Offset: offset}, nil
}

// PolicyFor returns the trading policy currently derived from name's texts.
func (s *GatewayService) PolicyFor(ctx context.Context, name string) (policy.Policy, error) {
	rec, err := s.GetName(ctx, name)
	if err != nil {
		return policy.Policy{}, err
	}
	return policy.Parse(rec.Texts), nil
}

// CheckTrade snapshots name's policy and validates req against it. An
// unregistered name is a denial, not an error.
func (s *GatewayService) CheckTrade(ctx context.Context, name string, req policy.TradeRequest) (policy.Decision, error) {
	p, err := s.PolicyFor(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		d := policy.Validate(policy.Defaults(), req, s.now())
		d.Valid = false
		d.Reasons = append([]string{fmt.Sprintf("no record for %s", name)}, d.Reasons...)
		return d, nil
	}
	if err != nil {
		return policy.Decision{}, err
	}
	return policy.Validate(p, req, s.now()), nil
}

func (s *GatewayService) storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.log.Error().Err(err).Str("op", op).Msg("store failure")
	return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, op)
}
