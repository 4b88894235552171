package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/adapters/db/sqlite"
	"github.com/PerkOS-xyz/UniPerk/internal/application"
	"github.com/PerkOS-xyz/UniPerk/internal/ccip"
	"github.com/PerkOS-xyz/UniPerk/internal/ethsig"
	"github.com/PerkOS-xyz/UniPerk/internal/observability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

const resolverAddress = "0x00000000000000000000000000000000000000c1"

type testServer struct {
	handler http.Handler
	signer  *ccip.Signer
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "gateway_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := sqlite.RunMigrations(ctx, db, zerolog.Nop()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := ccip.NewSignerFromKey(key, time.Minute)
	svc := application.NewGatewayService(sqlite.NewNameRepository(db), signer, application.ServiceConfig{
		ParentDomain: "uniperk.eth",
		Logger:       zerolog.Nop(),
	})
	return testServer{handler: NewRouter(svc, zerolog.Nop(), observability.NewMetrics()), signer: signer}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func wallet(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func signed(t *testing.T, key *ecdsa.PrivateKey, msg string) string {
	t.Helper()
	sig, err := ethsig.SignMessage(key, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestRegisterLookupAndUpdate(t *testing.T) {
	srv := newTestServer(t)
	key, addr := wallet(t)

	claim := map[string]any{
		"label":     "alice",
		"address":   addr,
		"signature": signed(t, key, "Claim alice.uniperk.eth"),
		"message":   "Claim alice.uniperk.eth",
	}
	rec := srv.do(t, http.MethodPost, "/register", claim)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status %d: %s", rec.Code, rec.Body.String())
	}
	if body := decode(t, rec); body["success"] != true || body["name"] != "alice.uniperk.eth" {
		t.Fatalf("register body %+v", body)
	}

	rec = srv.do(t, http.MethodPost, "/register", claim)
	if rec.Code != http.StatusOK {
		t.Fatalf("re-register status %d", rec.Code)
	}

	node := ccip.Namehash("alice.uniperk.eth")
	q := ccip.TextQuery(node, "agent.uniperk.allowed")
	request, err := ccip.EncodeResolveCall("alice.uniperk.eth", q)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for _, suffix := range []string{"", ".json"} {
		rec = srv.do(t, http.MethodGet, "/lookup/"+resolverAddress+"/"+hexutil.Encode(request)+suffix, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("lookup%s status %d: %s", suffix, rec.Code, rec.Body.String())
		}
		payload, err := hexutil.Decode(decode(t, rec)["data"].(string))
		if err != nil {
			t.Fatalf("payload hex: %v", err)
		}
		resp, err := ccip.VerifyResponse(srv.signer.Address(), common.HexToAddress(resolverAddress), request, payload, time.Now())
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		value, _ := ccip.DecodeResult(q, resp.Result)
		if value != "false" {
			t.Fatalf("allowed = %q", value)
		}
	}

	update := map[string]any{
		"name":        "alice.uniperk.eth",
		"address":     addr,
		"signature":   signed(t, key, "Update permissions for alice.uniperk.eth"),
		"message":     "Update permissions for alice.uniperk.eth",
		"permissions": map[string]any{"allowed": true, "tokens": "ETH,DAI"},
	}
	rec = srv.do(t, http.MethodPatch, "/permissions", update)
	if rec.Code != http.StatusOK {
		t.Fatalf("permissions status %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, "/names/alice.uniperk.eth", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("names status %d", rec.Code)
	}
	body := decode(t, rec)
	pol := body["policy"].(map[string]any)
	if pol["allowed"] != true {
		t.Fatalf("policy %+v", pol)
	}
	if tokens := pol["tokens"].([]any); len(tokens) != 2 || tokens[1] != "DAI" {
		t.Fatalf("tokens %+v", tokens)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv := newTestServer(t)
	key, addr := wallet(t)
	otherKey, otherAddr := wallet(t)

	srv.do(t, http.MethodPost, "/register", map[string]any{
		"label": "alice", "address": addr,
		"signature": signed(t, key, "Claim alice.uniperk.eth"), "message": "Claim alice.uniperk.eth",
	})

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"taken", http.MethodPost, "/register", map[string]any{
			"label": "alice", "address": otherAddr,
			"signature": signed(t, otherKey, "Claim alice.uniperk.eth"), "message": "Claim alice.uniperk.eth",
		}, http.StatusConflict},
		{"bad signature", http.MethodPost, "/register", map[string]any{
			"label": "bob", "address": addr,
			"signature": signed(t, otherKey, "Claim bob.uniperk.eth"), "message": "Claim bob.uniperk.eth",
		}, http.StatusUnauthorized},
		{"bad label", http.MethodPost, "/register", map[string]any{"label": "Bob!", "address": addr}, http.StatusBadRequest},
		{"stranger update", http.MethodPut, "/permissions", map[string]any{
			"name": "alice.uniperk.eth", "address": otherAddr,
			"signature":   signed(t, otherKey, "Update permissions for alice.uniperk.eth"),
			"message":     "Update permissions for alice.uniperk.eth",
			"permissions": map[string]any{"allowed": true},
		}, http.StatusForbidden},
		{"empty update", http.MethodPatch, "/permissions", map[string]any{
			"name": "alice.uniperk.eth", "address": addr,
			"signature":   signed(t, key, "Update permissions for alice.uniperk.eth"),
			"message":     "Update permissions for alice.uniperk.eth",
			"permissions": map[string]any{},
		}, http.StatusBadRequest},
		{"bad lookup hex", http.MethodGet, "/lookup/" + resolverAddress + "/0xzz", nil, http.StatusBadRequest},
		{"bad lookup sender", http.MethodGet, "/lookup/alice/0x9061b923", nil, http.StatusBadRequest},
		{"missing name", http.MethodGet, "/names/ghost.uniperk.eth", nil, http.StatusNotFound},
		{"bad subdomain query", http.MethodGet, "/subdomain?address=nope", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := srv.do(t, tc.method, tc.path, tc.body)
		if rec.Code != tc.status {
			t.Fatalf("%s: status %d, want %d (%s)", tc.name, rec.Code, tc.status, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["success"] != false {
		t.Fatalf("invalid json: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubdomainEndpoints(t *testing.T) {
	srv := newTestServer(t)
	key, addr := wallet(t)

	rec := srv.do(t, http.MethodGet, "/subdomain?address="+addr, nil)
	if body := decode(t, rec); rec.Code != http.StatusOK || body["subdomain"] != nil {
		t.Fatalf("unregistered: %d %+v", rec.Code, body)
	}

	srv.do(t, http.MethodPost, "/register", map[string]any{
		"label": "carol", "address": addr,
		"signature": signed(t, key, "Claim carol.uniperk.eth"), "message": "Claim carol.uniperk.eth",
	})

	rec = srv.do(t, http.MethodGet, "/subdomain?address="+strings.ToLower(addr), nil)
	if body := decode(t, rec); body["subdomain"] != "carol.uniperk.eth" {
		t.Fatalf("registered: %+v", body)
	}

	rec = srv.do(t, http.MethodGet, "/subdomains?limit=9999&offset=-1", nil)
	body := decode(t, rec)
	if body["limit"] != float64(500) || body["offset"] != float64(0) {
		t.Fatalf("clamping: %+v", body)
	}
	names := body["names"].([]any)
	if len(names) != 1 || names[0].(map[string]any)["name"] != "carol.uniperk.eth" {
		t.Fatalf("names %+v", names)
	}

	rec = srv.do(t, http.MethodGet, "/subdomains?limit=abc", nil)
	if decode(t, rec)["limit"] != float64(100) {
		t.Fatalf("default limit: %s", rec.Body.String())
	}
}

func TestCORSAndFallbacks(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodOptions, "/register", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	rec = srv.do(t, http.MethodGet, "/nowhere", nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Not found") {
		t.Fatalf("fallback: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing request id")
	}

	rec = srv.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["ok"] != true {
		t.Fatalf("healthz: %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "uniperk_gateway_http_request_duration_seconds") {
		t.Fatalf("metrics: %d", rec.Code)
	}
}
