package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/application"
	"github.com/PerkOS-xyz/UniPerk/internal/ccip"
	"github.com/PerkOS-xyz/UniPerk/internal/ethsig"
	"github.com/PerkOS-xyz/UniPerk/internal/policy"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

type nameSummary struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

type nameList struct {
	Names  []nameSummary `json:"names"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type nameDetails struct {
	Name        string            `json:"name"`
	Owner       string            `json:"owner"`
	Texts       map[string]string `json:"texts"`
	Addresses   map[string]string `json:"addresses"`
	Contenthash string            `json:"contenthash"`
	Policy      policy.Policy     `json:"policy"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type writeResult struct {
	Success bool   `json:"success"`
	Name    string `json:"name,omitempty"`
}

type lookupResult struct {
	Name       string `json:"name"`
	Function   string `json:"function"`
	Value      string `json:"value"`
	Signer     string `json:"signer"`
	ValidUntil uint64 `json:"validUntil"`
	Payload    string `json:"payload"`
}

func doNamesList(ctx context.Context, cfg cliConfig, limit, offset int, out *nameList) error {
	if cfg.Transport == transportUDS {
		return newRPCClient(cfg.Socket).call(ctx, "names.list", map[string]any{"limit": limit, "offset": offset}, out)
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return newAPIClient(cfg.Server).request(ctx, http.MethodGet, "/subdomains?"+q.Encode(), nil, out)
}

func doNamesShow(ctx context.Context, cfg cliConfig, name string, out *nameDetails) error {
	if cfg.Transport == transportUDS {
		return newRPCClient(cfg.Socket).call(ctx, "names.get", map[string]any{"name": name}, out)
	}
	return newAPIClient(cfg.Server).request(ctx, http.MethodGet, "/names/"+url.PathEscape(name), nil, out)
}

func doNamesOwner(ctx context.Context, cfg cliConfig, address string) (string, error) {
	var out struct {
		Subdomain *string `json:"subdomain"`
	}
	var err error
	if cfg.Transport == transportUDS {
		err = newRPCClient(cfg.Socket).call(ctx, "names.by_owner", map[string]any{"address": address}, &out)
	} else {
		err = newAPIClient(cfg.Server).request(ctx, http.MethodGet, "/subdomain?address="+url.QueryEscape(address), nil, &out)
	}
	if err != nil || out.Subdomain == nil {
		return "", err
	}
	return *out.Subdomain, nil
}

func doPolicyShow(ctx context.Context, cfg cliConfig, name string) (policy.Policy, error) {
	if cfg.Transport == transportUDS {
		var out policy.Policy
		err := newRPCClient(cfg.Socket).call(ctx, "policy.get", map[string]any{"name": name}, &out)
		return out, err
	}
	var details nameDetails
	if err := doNamesShow(ctx, cfg, name, &details); err != nil {
		return policy.Policy{}, err
	}
	return details.Policy, nil
}

// doPolicyCheck asks the gateway over the socket, or evaluates locally
// against the policy the HTTP API reports.
func doPolicyCheck(ctx context.Context, cfg cliConfig, name string, req policy.TradeRequest) (policy.Decision, error) {
	if cfg.Transport == transportUDS {
		var out policy.Decision
		params := map[string]any{"name": name, "fromToken": req.FromToken, "toToken": req.ToToken, "amount": req.Amount.String()}
		err := newRPCClient(cfg.Socket).call(ctx, "policy.check", params, &out)
		return out, err
	}

	var details nameDetails
	err := doNamesShow(ctx, cfg, name, &details)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		d := policy.Validate(policy.Defaults(), req, time.Now())
		d.Valid = false
		d.Reasons = append([]string{fmt.Sprintf("no record for %s", name)}, d.Reasons...)
		return d, nil
	}
	if err != nil {
		return policy.Decision{}, err
	}
	return policy.Validate(details.Policy, req, time.Now()), nil
}

func doClaim(ctx context.Context, server string, key *ecdsa.PrivateKey, label, parent string) (writeResult, error) {
	msg := fmt.Sprintf("Claim %s.%s", label, parent)
	sig, err := ethsig.SignMessage(key, msg)
	if err != nil {
		return writeResult{}, err
	}
	in := application.RegisterInput{
		Label:     label,
		Address:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Signature: sig,
		Message:   msg,
	}
	var out writeResult
	err = newAPIClient(server).request(ctx, http.MethodPost, "/register", in, &out)
	return out, err
}

func doUpdatePermissions(ctx context.Context, server string, key *ecdsa.PrivateKey, name string, patch application.PermissionsPatch) (writeResult, error) {
	msg := "Update permissions for " + name
	sig, err := ethsig.SignMessage(key, msg)
	if err != nil {
		return writeResult{}, err
	}
	in := application.UpdatePermissionsInput{
		Name:        name,
		Address:     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Signature:   sig,
		Message:     msg,
		Permissions: patch,
	}
	var out writeResult
	err = newAPIClient(server).request(ctx, http.MethodPatch, "/permissions", in, &out)
	return out, err
}

// doLookup performs a CCIP-Read round trip for name the way a resolver
// contract would and recovers the signer of the answer. With expected set,
// the answer must also be signed by that address and unexpired.
func doLookup(ctx context.Context, server string, sender common.Address, name string, q ccip.Query, expected *common.Address) (lookupResult, error) {
	request, err := ccip.EncodeResolveCall(name, q)
	if err != nil {
		return lookupResult{}, err
	}

	var out struct {
		Data string `json:"data"`
	}
	path := "/lookup/" + sender.Hex() + "/" + hexutil.Encode(request) + ".json"
	if err := newAPIClient(server).request(ctx, http.MethodGet, path, nil, &out); err != nil {
		return lookupResult{}, err
	}

	payload, err := hexutil.Decode(out.Data)
	if err != nil {
		return lookupResult{}, fmt.Errorf("gateway returned non-hex data: %w", err)
	}
	var resp ccip.SignedResponse
	if expected != nil {
		resp, err = ccip.VerifyResponse(*expected, sender, request, payload, time.Now())
	} else {
		resp, err = ccip.DecodeResponse(payload)
	}
	if err != nil {
		return lookupResult{}, err
	}
	signer, err := ccip.RecoverSigner(sender, request, resp)
	if err != nil {
		return lookupResult{}, err
	}
	value, err := ccip.DecodeResult(q, resp.Result)
	if err != nil {
		return lookupResult{}, err
	}
	return lookupResult{
		Name:       name,
		Function:   q.Signature(),
		Value:      value,
		Signer:     signer.Hex(),
		ValidUntil: resp.ValidUntil,
		Payload:    out.Data,
	}, nil
}

func parsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, errors.New("private key is required")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
