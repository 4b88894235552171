// Package policy derives an agent trading policy from a name's text records
// and decides whether a proposed trade fits inside it.
package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	DefaultMaxTrade    int64 = 1000
	DefaultSlippageBps       = 50
)

var DefaultTokens = []string{"ETH", "USDC", "WETH"}

type Policy struct {
	Allowed     bool     `json:"allowed"`
	MaxTrade    int64    `json:"maxTrade"`
	Tokens      []string `json:"tokens"`
	SlippageBps int      `json:"slippageBps"`
	ExpiresAt   *int64   `json:"expiresAt,omitempty"`
}

// TradeRequest is a proposed swap. Amount is expressed in the policy's unit.
type TradeRequest struct {
	FromToken string          `json:"fromToken"`
	ToToken   string          `json:"toToken"`
	Amount    decimal.Decimal `json:"amount"`
}

type Decision struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons"`
	Policy  Policy   `json:"policy"`
}

func Defaults() Policy {
	return Policy{
		MaxTrade:    DefaultMaxTrade,
		Tokens:      append([]string(nil), DefaultTokens...),
		SlippageBps: DefaultSlippageBps,
	}
}

// DefaultTexts are the policy records written when a name is registered.
func DefaultTexts() map[string]string {
	return map[string]string{
		domain.TextAgentAllowed:  "false",
		domain.TextAgentMaxTrade: strconv.FormatInt(DefaultMaxTrade, 10),
		domain.TextAgentTokens:   strings.Join(DefaultTokens, ","),
		domain.TextAgentSlippage: strconv.Itoa(DefaultSlippageBps),
	}
}

// Parse reads the agent.uniperk.* records. Missing keys take their default.
// Present but unreadable maxTrade and expires values fail closed: a zero
// ceiling and an expiry in the past.
func Parse(texts map[string]string) Policy {
	p := Defaults()

	p.Allowed = strings.EqualFold(strings.TrimSpace(texts[domain.TextAgentAllowed]), "true")

	if raw := strings.TrimSpace(texts[domain.TextAgentMaxTrade]); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			v = 0
		}
		p.MaxTrade = v
	}

	if raw := strings.TrimSpace(texts[domain.TextAgentTokens]); raw != "" {
		p.Tokens = parseTokens(raw)
	}

	if raw := strings.TrimSpace(texts[domain.TextAgentSlippage]); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			p.SlippageBps = v
		}
	}

	if raw := strings.TrimSpace(texts[domain.TextAgentExpires]); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		switch {
		case err != nil:
			var past int64
			p.ExpiresAt = &past
		case v > 0:
			p.ExpiresAt = &v
		}
	}

	return p
}

func parseTokens(raw string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// AllowsToken reports whether symbol is on the allow-list. Matching is exact
// after upper-casing.
func (p Policy) AllowsToken(symbol string) bool {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return false
	}
	for _, t := range p.Tokens {
		if t == sym {
			return true
		}
	}
	return false
}

// Validate evaluates every rule and reports each violation, in rule order.
// It never fails; an empty reason list means the trade is allowed.
func Validate(p Policy, req TradeRequest, now time.Time) Decision {
	reasons := make([]string, 0, 4)

	if !p.Allowed {
		reasons = append(reasons, "agent trading not allowed")
	}

	if p.ExpiresAt != nil && *p.ExpiresAt <= now.Unix() {
		reasons = append(reasons, fmt.Sprintf("permissions expired at %d", *p.ExpiresAt))
	}

	from := strings.ToUpper(strings.TrimSpace(req.FromToken))
	to := strings.ToUpper(strings.TrimSpace(req.ToToken))
	if !p.AllowsToken(from) {
		reasons = append(reasons, fmt.Sprintf("token %s not in allowed list", displaySymbol(from)))
	}
	if to != from && !p.AllowsToken(to) {
		reasons = append(reasons, fmt.Sprintf("token %s not in allowed list", displaySymbol(to)))
	}

	switch {
	case req.Amount.IsNegative():
		reasons = append(reasons, "amount must not be negative")
	case req.Amount.GreaterThan(decimal.NewFromInt(p.MaxTrade)):
		reasons = append(reasons, fmt.Sprintf("amount %s exceeds maxTrade %d", req.Amount.String(), p.MaxTrade))
	}

	return Decision{Valid: len(reasons) == 0, Reasons: reasons, Policy: p}
}

func displaySymbol(sym string) string {
	if sym == "" {
		return `""`
	}
	return sym
}
