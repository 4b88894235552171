package application

import (
	"context"
	"fmt"
	"strconv"

	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/PerkOS-xyz/UniPerk/internal/ethsig"
)

// PermissionsPatch carries the policy fields to change. Nil fields are left
// as stored.
type PermissionsPatch struct {
	Allowed  *bool   `json:"allowed,omitempty"`
	MaxTrade *string `json:"maxTrade,omitempty"`
	Tokens   *string `json:"tokens,omitempty"`
	Slippage *string `json:"slippage,omitempty"`
	Expires  *string `json:"expires,omitempty"`
}

func (p PermissionsPatch) Texts() map[string]string {
	texts := make(map[string]string, 5)
	if p.Allowed != nil {
		texts[domain.TextAgentAllowed] = strconv.FormatBool(*p.Allowed)
	}
	if p.MaxTrade != nil {
		texts[domain.TextAgentMaxTrade] = *p.MaxTrade
	}
	if p.Tokens != nil {
		texts[domain.TextAgentTokens] = *p.Tokens
	}
	if p.Slippage != nil {
		texts[domain.TextAgentSlippage] = *p.Slippage
	}
	if p.Expires != nil {
		texts[domain.TextAgentExpires] = *p.Expires
	}
	return texts
}

type UpdatePermissionsInput struct {
	Name        string           `json:"name"`
	Address     string           `json:"address"`
	Signature   string           `json:"signature"`
	Message     string           `json:"message"`
	Permissions PermissionsPatch `json:"permissions"`
}

// UpdateMessage is the exact text a wallet signs to change name's policy.
func (s *GatewayService) UpdateMessage(name string) string {
	return fmt.Sprintf("Update permissions for %s", name)
}

// UpdatePermissions merges the patch into name's texts when in.Address owns
// it. A wrong owner and a missing record are indistinguishable to callers.
func (s *GatewayService) UpdatePermissions(ctx context.Context, in UpdatePermissionsInput) error {
	err := s.updatePermissions(ctx, in)
	if err != nil {
		s.metrics.ObservePermissionUpdate(outcomeOf(err))
		s.log.Debug().Err(err).Str("name", in.Name).Msg("permission update rejected")
		return err
	}
	s.metrics.ObservePermissionUpdate("updated")
	s.log.Info().Str("name", in.Name).Str("owner", in.Address).Msg("permissions updated")
	return nil
}

func (s *GatewayService) updatePermissions(ctx context.Context, in UpdatePermissionsInput) error {
	if !s.InParentDomain(in.Name) {
		return fmt.Errorf("%w: name must end with .%s", domain.ErrMalformedRequest, s.parent)
	}
	if !ethsig.IsAddress(in.Address) {
		return fmt.Errorf("%w: address must be 0x followed by 40 hex characters", domain.ErrMalformedRequest)
	}
	if in.Message != s.UpdateMessage(in.Name) {
		return fmt.Errorf("%w: expected %q", domain.ErrMessageMismatch, s.UpdateMessage(in.Name))
	}
	if err := ethsig.VerifyMessage(in.Address, in.Message, in.Signature); err != nil {
		return err
	}

	texts := in.Permissions.Texts()
	if len(texts) == 0 {
		return domain.ErrNoFieldsToUpdate
	}

	ok, err := s.repo.MergeTexts(ctx, in.Name, in.Address, texts)
	if err != nil {
		return s.storeErr("merge texts", err)
	}
	if !ok {
		return domain.ErrNotOwnerOrNotFound
	}
	return nil
}
