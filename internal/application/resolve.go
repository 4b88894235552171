package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PerkOS-xyz/UniPerk/internal/ccip"
	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/PerkOS-xyz/UniPerk/internal/ethsig"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type resolveStage string

const (
	stageDecoding  resolveStage = "decoding"
	stageResolving resolveStage = "resolving"
	stageSigning   resolveStage = "signing"
)

// ResolveResult is a signed CCIP-Read answer. Payload is the hex encoding of
// the ABI tuple (bytes result, uint64 expires, bytes sig).
type ResolveResult struct {
	Name       string
	Function   string
	Value      string
	Payload    string
	ValidUntil uint64
}

// Resolve answers one CCIP-Read request. sender is the resolver contract
// address and data the hex calldata of resolve(bytes,bytes). Nothing is
// written; a failure at any stage yields no payload.
func (s *GatewayService) Resolve(ctx context.Context, sender, data string) (ResolveResult, error) {
	stage := stageDecoding
	function := ""
	res, err := s.resolve(ctx, sender, data, &stage, &function)

	outcome := "ok"
	if err != nil {
		outcome = string(stage) + "_error"
		ev := s.log.Debug()
		if errors.Is(err, domain.ErrStoreUnavailable) {
			ev = s.log.Warn()
		}
		ev.Err(err).Str("stage", string(stage)).Str("sender", sender).Msg("lookup failed")
	} else {
		s.log.Debug().Str("name", res.Name).Str("function", res.Function).Uint64("valid_until", res.ValidUntil).Msg("lookup answered")
	}
	s.metrics.ObserveLookup(function, outcome)
	return res, err
}

func (s *GatewayService) resolve(ctx context.Context, sender, data string, stage *resolveStage, function *string) (ResolveResult, error) {
	if !ethsig.IsAddress(sender) {
		return ResolveResult{}, fmt.Errorf("%w: sender must be a 0x-prefixed 20-byte address", domain.ErrMalformedRequest)
	}
	request, err := hexutil.Decode(strings.TrimSpace(data))
	if err != nil {
		return ResolveResult{}, fmt.Errorf("%w: data must be 0x-prefixed hex", domain.ErrMalformedRequest)
	}

	call, err := ccip.DecodeResolveCall(request)
	if err != nil {
		return ResolveResult{}, err
	}
	name, err := ccip.DecodeName(call.DNSName)
	if err != nil {
		return ResolveResult{}, err
	}
	query, err := ccip.DecodeQuery(call.CallData)
	if err != nil {
		return ResolveResult{}, err
	}
	*function = query.Function
	if !s.InParentDomain(name) {
		return ResolveResult{}, fmt.Errorf("%w: %q is not a subdomain of %s", domain.ErrNotOwnedDomain, name, s.parent)
	}

	*stage = stageResolving
	value, err := s.lookupValue(ctx, name, query)
	if err != nil {
		return ResolveResult{}, err
	}

	*stage = stageSigning
	payload, signed, err := s.signer.Sign(common.HexToAddress(sender), request, query, value)
	if err != nil {
		return ResolveResult{}, err
	}

	return ResolveResult{
		Name:       name,
		Function:   query.Signature(),
		Value:      value,
		Payload:    hexutil.Encode(payload),
		ValidUntil: signed.ValidUntil,
	}, nil
}

// lookupValue maps a query onto the stored record. An absent record answers
// with the zero address, an empty string or empty bytes.
func (s *GatewayService) lookupValue(ctx context.Context, name string, q ccip.Query) (string, error) {
	rec, err := s.repo.GetName(ctx, name)
	found := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", s.storeErr("get name", err)
	}

	switch q.Function {
	case ccip.FuncAddr:
		coinType := domain.DefaultCoinType
		if q.CoinType != nil {
			coinType = q.CoinType.String()
		}
		if found {
			if addr := rec.Addresses[coinType]; addr != "" {
				return addr, nil
			}
			if rec.Owner != "" {
				return rec.Owner, nil
			}
		}
		return common.Address{}.Hex(), nil
	case ccip.FuncText:
		if !found {
			return "", nil
		}
		return rec.Text(q.Key), nil
	case ccip.FuncContenthash:
		if !found || len(rec.Contenthash) == 0 {
			return "0x", nil
		}
		return hexutil.Encode(rec.Contenthash), nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedQuery, q.Function)
	}
}
