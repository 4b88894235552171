package domain

import "time"

const (
	TextAgentAllowed  = "agent.uniperk.allowed"
	TextAgentMaxTrade = "agent.uniperk.maxTrade"
	TextAgentTokens   = "agent.uniperk.tokens"
	TextAgentSlippage = "agent.uniperk.slippage"
	TextAgentExpires  = "agent.uniperk.expires"
)

// DefaultCoinType is the SLIP-44 coin type of Ethereum mainnet, used when an
// addr query carries no coin type.
const DefaultCoinType = "60"

// AgentTextKeys lists the text records that make up an agent trading policy.
var AgentTextKeys = []string{
	TextAgentAllowed,
	TextAgentMaxTrade,
	TextAgentTokens,
	TextAgentSlippage,
	TextAgentExpires,
}

type NameRecord struct {
	ID          uint
	Name        string
	Owner       string
	Texts       map[string]string
	Addresses   map[string]string
	Contenthash []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Text returns the text record for key, or "" when unset.
func (r NameRecord) Text(key string) string {
	if r.Texts == nil {
		return ""
	}
	return r.Texts[key]
}

type NameSummary struct {
	Name  string
	Owner string
}
