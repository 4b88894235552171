package rpcjson

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/PerkOS-xyz/UniPerk/internal/adapters/db/memory"
	"github.com/PerkOS-xyz/UniPerk/internal/application"
	"github.com/PerkOS-xyz/UniPerk/internal/ccip"
	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/PerkOS-xyz/UniPerk/internal/policy"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

const owner = "0x1111111111111111111111111111111111111111"

type rpcClient struct {
	enc *json.Encoder
	dec *json.Decoder
	id  int
}

func (c *rpcClient) call(t *testing.T, method string, params any) (json.RawMessage, *rpcError) {
	t.Helper()
	c.id++
	if err := c.enc.Encode(map[string]any{"jsonrpc": "2.0", "method": method, "params": params, "id": c.id}); err != nil {
		t.Fatalf("send %s: %v", method, err)
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := c.dec.Decode(&resp); err != nil {
		t.Fatalf("receive %s: %v", method, err)
	}
	return resp.Result, resp.Error
}

func startServer(t *testing.T) (*rpcClient, *application.GatewayService) {
	t.Helper()
	dir, err := os.MkdirTemp("", "uprpc")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	key, _ := crypto.GenerateKey()
	repo := memory.NewNameRepository()
	_ = repo.CreateName(context.Background(), domain.NameRecord{
		Name:  "alice.uniperk.eth",
		Owner: owner,
		Texts: policy.DefaultTexts(),
	})
	svc := application.NewGatewayService(repo, ccip.NewSignerFromKey(key, 0), application.ServiceConfig{
		ParentDomain: "uniperk.eth",
		Logger:       zerolog.Nop(),
	})

	path := filepath.Join(dir, "rpc.sock")
	srv, err := Start(path, svc, zerolog.Nop())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("socket mode %v", info.Mode().Perm())
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &rpcClient{enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, svc
}

func TestNameMethods(t *testing.T) {
	c, svc := startServer(t)

	raw, rpcErr := c.call(t, "signer.address", nil)
	if rpcErr != nil {
		t.Fatalf("signer.address: %+v", rpcErr)
	}
	var signer struct{ Address, Parent string }
	_ = json.Unmarshal(raw, &signer)
	if signer.Address != svc.SignerAddress() || signer.Parent != "uniperk.eth" {
		t.Fatalf("signer %+v", signer)
	}

	raw, rpcErr = c.call(t, "names.get", map[string]any{"name": "alice.uniperk.eth"})
	if rpcErr != nil {
		t.Fatalf("names.get: %+v", rpcErr)
	}
	var view NameView
	_ = json.Unmarshal(raw, &view)
	if view.Owner != owner || view.Texts[domain.TextAgentTokens] != "ETH,USDC,WETH" || view.Contenthash != "0x" {
		t.Fatalf("view %+v", view)
	}

	_, rpcErr = c.call(t, "names.get", map[string]any{"name": "ghost.uniperk.eth"})
	if rpcErr == nil || rpcErr.Code != 40400 {
		t.Fatalf("missing name error %+v", rpcErr)
	}

	raw, _ = c.call(t, "names.list", map[string]any{"limit": 0})
	var list NameList
	_ = json.Unmarshal(raw, &list)
	if list.Limit != 100 || len(list.Names) != 1 {
		t.Fatalf("list %+v", list)
	}

	raw, _ = c.call(t, "names.by_owner", map[string]any{"address": owner})
	var byOwner struct{ Subdomain *string }
	_ = json.Unmarshal(raw, &byOwner)
	if byOwner.Subdomain == nil || *byOwner.Subdomain != "alice.uniperk.eth" {
		t.Fatalf("by owner %+v", byOwner)
	}
}

func TestPolicyMethods(t *testing.T) {
	c, _ := startServer(t)

	raw, rpcErr := c.call(t, "policy.get", map[string]any{"name": "alice.uniperk.eth"})
	if rpcErr != nil {
		t.Fatalf("policy.get: %+v", rpcErr)
	}
	var p policy.Policy
	_ = json.Unmarshal(raw, &p)
	if p.Allowed || p.MaxTrade != 1000 {
		t.Fatalf("policy %+v", p)
	}

	raw, rpcErr = c.call(t, "policy.check", map[string]any{
		"name": "alice.uniperk.eth", "fromToken": "ETH", "toToken": "USDC", "amount": "5",
	})
	if rpcErr != nil {
		t.Fatalf("policy.check: %+v", rpcErr)
	}
	var d policy.Decision
	_ = json.Unmarshal(raw, &d)
	if d.Valid || len(d.Reasons) != 1 {
		t.Fatalf("decision %+v", d)
	}

	_, rpcErr = c.call(t, "policy.check", map[string]any{"fromToken": "ETH"})
	if rpcErr == nil || rpcErr.Code != -32602 {
		t.Fatalf("missing name should be invalid params, got %+v", rpcErr)
	}

	_, rpcErr = c.call(t, "names.delete", nil)
	if rpcErr == nil || rpcErr.Code != -32601 {
		t.Fatalf("unknown method %+v", rpcErr)
	}
}
