package application

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/PerkOS-xyz/UniPerk/internal/ethsig"
	"github.com/PerkOS-xyz/UniPerk/internal/policy"
)

var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

type RegisterInput struct {
	Label     string `json:"label"`
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

type RegisterResult struct {
	Name    string `json:"name"`
	Created bool   `json:"created"`
}

// ClaimMessage is the exact text a wallet signs to claim label.
func (s *GatewayService) ClaimMessage(label string) string {
	return fmt.Sprintf("Claim %s.%s", label, s.parent)
}

// Register claims label for in.Address. Re-registering by the owner is a
// successful no-op; any other address gets ErrNameTaken.
func (s *GatewayService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	res, err := s.register(ctx, in)
	switch {
	case err == nil && res.Created:
		s.metrics.ObserveRegistration("created")
		s.log.Info().Str("name", res.Name).Str("owner", in.Address).Msg("name registered")
	case err == nil:
		s.metrics.ObserveRegistration("existing")
	default:
		s.metrics.ObserveRegistration(outcomeOf(err))
		s.log.Debug().Err(err).Str("label", in.Label).Msg("registration rejected")
	}
	return res, err
}

func (s *GatewayService) register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if !labelPattern.MatchString(in.Label) {
		return RegisterResult{}, domain.ErrInvalidLabel
	}
	if !ethsig.IsAddress(in.Address) {
		return RegisterResult{}, fmt.Errorf("%w: address must be 0x followed by 40 hex characters", domain.ErrMalformedRequest)
	}
	if !ethsig.IsSignature(in.Signature) {
		return RegisterResult{}, fmt.Errorf("%w: signature must be 0x followed by 130 hex characters", domain.ErrMalformedRequest)
	}
	if in.Message != s.ClaimMessage(in.Label) {
		return RegisterResult{}, fmt.Errorf("%w: expected %q", domain.ErrMessageMismatch, s.ClaimMessage(in.Label))
	}
	if err := ethsig.VerifyMessage(in.Address, in.Message, in.Signature); err != nil {
		return RegisterResult{}, err
	}

	name := in.Label + "." + s.parent
	existing, err := s.repo.GetName(ctx, name)
	switch {
	case err == nil:
		return sameOwner(existing, in.Address, false)
	case !errors.Is(err, domain.ErrNotFound):
		return RegisterResult{}, s.storeErr("get name", err)
	}

	err = s.repo.CreateName(ctx, domain.NameRecord{
		Name:      name,
		Owner:     in.Address,
		Texts:     policy.DefaultTexts(),
		Addresses: map[string]string{domain.DefaultCoinType: in.Address},
	})
	if err != nil {
		return RegisterResult{}, s.storeErr("create name", err)
	}

	// A concurrent claim may have inserted first; the stored owner decides.
	stored, err := s.repo.GetName(ctx, name)
	if err != nil {
		return RegisterResult{}, s.storeErr("get name", err)
	}
	return sameOwner(stored, in.Address, true)
}

func sameOwner(rec domain.NameRecord, address string, created bool) (RegisterResult, error) {
	if !strings.EqualFold(rec.Owner, address) {
		return RegisterResult{}, domain.ErrNameTaken
	}
	return RegisterResult{Name: rec.Name, Created: created}, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, domain.ErrNameTaken):
		return "taken"
	case errors.Is(err, domain.ErrNotOwnerOrNotFound):
		return "forbidden"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_error"
	default:
		return "invalid"
	}
}
