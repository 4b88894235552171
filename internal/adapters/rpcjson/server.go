package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/application"
	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/PerkOS-xyz/UniPerk/internal/observability"
	"github.com/PerkOS-xyz/UniPerk/internal/policy"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
)

const callTimeout = 10 * time.Second

type Server struct {
	service  *application.GatewayService
	listener net.Listener
	path     string
	log      zerolog.Logger
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type NameView struct {
	Name        string            `json:"name"`
	Owner       string            `json:"owner"`
	Texts       map[string]string `json:"texts"`
	Addresses   map[string]string `json:"addresses"`
	Contenthash string            `json:"contenthash"`
	Policy      policy.Policy     `json:"policy"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type NameSummary struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

type NameList struct {
	Names  []NameSummary `json:"names"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type CheckParams struct {
	Name string `json:"name"`
	policy.TradeRequest
}

// Start listens on a unix socket at path, replacing any stale socket file.
// The socket is owner-only.
func Start(path string, service *application.GatewayService, log zerolog.Logger) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := &Server{service: service, listener: ln, path: path, log: observability.Component(log, "rpc")}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		resp := s.dispatch(ctx, req)
		cancel()
		if resp.Error != nil {
			s.log.Debug().Str("method", req.Method).Int("code", resp.Error.Code).Str("error", resp.Error.Message).Msg("rpc call failed")
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}

	switch req.Method {
	case "signer.address":
		return ok(req.ID, map[string]any{"address": s.service.SignerAddress(), "parent": s.service.ParentDomain()})
	case "names.get":
		var p struct {
			Name string `json:"name"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		rec, err := s.service.GetName(ctx, p.Name)
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, NameView{
			Name:        rec.Name,
			Owner:       rec.Owner,
			Texts:       rec.Texts,
			Addresses:   rec.Addresses,
			Contenthash: hexutil.Encode(rec.Contenthash),
			Policy:      policy.Parse(rec.Texts),
			CreatedAt:   rec.CreatedAt,
			UpdatedAt:   rec.UpdatedAt,
		})
	case "names.list":
		var p struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		res, err := s.service.ListSubdomains(ctx, p.Limit, p.Offset)
		if err != nil {
			return appError(req.ID, err)
		}
		out := NameList{Names: make([]NameSummary, 0, len(res.Names)), Limit: res.Limit, Offset: res.Offset}
		for _, n := range res.Names {
			out.Names = append(out.Names, NameSummary{Name: n.Name, Owner: n.Owner})
		}
		return ok(req.ID, out)
	case "names.by_owner":
		var p struct {
			Address string `json:"address"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		name, err := s.service.SubdomainByAddress(ctx, p.Address)
		if err != nil {
			return appError(req.ID, err)
		}
		var subdomain *string
		if name != "" {
			subdomain = &name
		}
		return ok(req.ID, map[string]any{"subdomain": subdomain})
	case "policy.get":
		var p struct {
			Name string `json:"name"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		pol, err := s.service.PolicyFor(ctx, p.Name)
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, pol)
	case "policy.check":
		var p CheckParams
		if !decodeParams(req.Params, &p) || strings.TrimSpace(p.Name) == "" {
			return invalidParams(req.ID)
		}
		decision, err := s.service.CheckTrade(ctx, p.Name, p.TradeRequest)
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, decision)
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
	}
}

func decodeParams(raw json.RawMessage, dst any) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	return json.Unmarshal(raw, dst) == nil
}

func ok(id any, result any) response {
	return response{JSONRPC: "2.0", Result: result, ID: id}
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

func appError(id any, err error) response {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return response{JSONRPC: "2.0", Error: &rpcError{Code: 40400, Message: err.Error()}, ID: id}
	case errors.Is(err, domain.ErrStoreUnavailable):
		return response{JSONRPC: "2.0", Error: &rpcError{Code: 50000, Message: "internal error"}, ID: id}
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: 40000, Message: err.Error()}, ID: id}
	}
}
