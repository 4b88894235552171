package ccip

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/miekg/dns"
)

const (
	FuncAddr        = "addr"
	FuncText        = "text"
	FuncContenthash = "contenthash"
)

var (
	ErrMalformedName    = fmt.Errorf("%w: malformed dns-encoded name", domain.ErrMalformedRequest)
	ErrMalformedCall    = fmt.Errorf("%w: malformed resolve call", domain.ErrMalformedRequest)
	ErrUnsupportedQuery = domain.ErrUnsupportedQuery
)

// ResolveCall is the unwrapped resolve(bytes name, bytes data) envelope.
type ResolveCall struct {
	DNSName  []byte
	CallData []byte
}

// Query is one decoded resolver call. CoinType is nil for addr(bytes32).
type Query struct {
	Function string
	Node     [32]byte
	CoinType *big.Int
	Key      string
}

func AddrQuery(node [32]byte) Query {
	return Query{Function: FuncAddr, Node: node}
}

func AddrCoinQuery(node [32]byte, coinType *big.Int) Query {
	return Query{Function: FuncAddr, Node: node, CoinType: coinType}
}

func TextQuery(node [32]byte, key string) Query {
	return Query{Function: FuncText, Node: node, Key: key}
}

func ContenthashQuery(node [32]byte) Query {
	return Query{Function: FuncContenthash, Node: node}
}

// Signature returns the canonical solidity signature of the resolver
// function the query targets.
func (q Query) Signature() string {
	m, err := q.method()
	if err != nil {
		return q.Function
	}
	return m.Sig
}

func (q Query) method() (abi.Method, error) {
	var key string
	switch q.Function {
	case FuncAddr:
		key = methodAddr
		if q.CoinType != nil {
			key = methodAddrCoinType
		}
	case FuncText:
		key = methodText
	case FuncContenthash:
		key = methodContenthash
	default:
		return abi.Method{}, fmt.Errorf("%w: %s", ErrUnsupportedQuery, q.Function)
	}
	return resolverABI.Methods[key], nil
}

// DecodeName reads a DNS wire-format name: a sequence of length-prefixed
// labels ended by a zero-length label. The labels are joined with dots and
// returned without a trailing dot. Bytes after the terminator are ignored
// and a buffer that ends without a terminator yields the labels read so far.
func DecodeName(b []byte) (string, error) {
	labels := make([]string, 0, 4)
	off := 0
	for off < len(b) {
		n := int(b[off])
		if n == 0 {
			break
		}
		if off+1+n > len(b) {
			return "", fmt.Errorf("%w: label at offset %d declares %d bytes, %d left", ErrMalformedName, off, n, len(b)-off-1)
		}
		labels = append(labels, string(b[off+1:off+1+n]))
		off += 1 + n
	}
	return strings.Join(labels, "."), nil
}

// EncodeName packs a dotted name into DNS wire format.
func EncodeName(name string) ([]byte, error) {
	buf := make([]byte, 256)
	n, err := dns.PackDomainName(dns.Fqdn(name), buf, 0, nil, false)
	if err != nil {
		return nil, fmt.Errorf("pack %q: %w", name, err)
	}
	return buf[:n], nil
}

// Namehash computes the EIP-137 node of a dotted name.
func Namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		copy(node[:], crypto.Keccak256(node[:], labelHash))
	}
	return node
}

func DecodeResolveCall(data []byte) (ResolveCall, error) {
	if len(data) < 4 {
		return ResolveCall{}, fmt.Errorf("%w: %d bytes", ErrMalformedCall, len(data))
	}
	method, err := offchainResolverABI.MethodById(data[:4])
	if err != nil || method.Name != methodResolve {
		return ResolveCall{}, fmt.Errorf("%w: unknown selector %s", ErrMalformedCall, hexutil.Encode(data[:4]))
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return ResolveCall{}, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	name, ok1 := args[0].([]byte)
	inner, ok2 := args[1].([]byte)
	if !ok1 || !ok2 {
		return ResolveCall{}, ErrMalformedCall
	}
	return ResolveCall{DNSName: name, CallData: inner}, nil
}

// EncodeResolveCall builds the calldata a CCIP-Read client sends for name.
func EncodeResolveCall(name string, q Query) ([]byte, error) {
	dnsName, err := EncodeName(name)
	if err != nil {
		return nil, err
	}
	inner, err := q.Pack()
	if err != nil {
		return nil, err
	}
	return offchainResolverABI.Pack(methodResolve, dnsName, inner)
}

// Pack encodes the query as resolver calldata, selector included.
func (q Query) Pack() ([]byte, error) {
	m, err := q.method()
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case methodAddrCoinType:
		return resolverABI.Pack(m.Name, q.Node, q.CoinType)
	case methodText:
		return resolverABI.Pack(m.Name, q.Node, q.Key)
	default:
		return resolverABI.Pack(m.Name, q.Node)
	}
}

func DecodeQuery(callData []byte) (Query, error) {
	if len(callData) < 4 {
		return Query{}, fmt.Errorf("%w: calldata too short", ErrUnsupportedQuery)
	}
	method, err := resolverABI.MethodById(callData[:4])
	if err != nil {
		return Query{}, fmt.Errorf("%w: selector %s", ErrUnsupportedQuery, hexutil.Encode(callData[:4]))
	}
	args, err := method.Inputs.Unpack(callData[4:])
	if err != nil {
		return Query{}, fmt.Errorf("%w: %s arguments: %v", domain.ErrMalformedRequest, method.Sig, err)
	}
	node, ok := args[0].([32]byte)
	if !ok {
		return Query{}, fmt.Errorf("%w: node is not bytes32", domain.ErrMalformedRequest)
	}

	q := Query{Function: method.RawName, Node: node}
	switch method.Name {
	case methodAddrCoinType:
		coinType, ok := args[1].(*big.Int)
		if !ok {
			return Query{}, fmt.Errorf("%w: coinType is not uint256", domain.ErrMalformedRequest)
		}
		q.CoinType = coinType
	case methodText:
		key, ok := args[1].(string)
		if !ok {
			return Query{}, fmt.Errorf("%w: key is not a string", domain.ErrMalformedRequest)
		}
		q.Key = key
	}
	return q, nil
}

// EncodeResult ABI-encodes value as the declared output of the query's
// resolver function. Address outputs take a hex address; bytes outputs take
// a 0x-prefixed hex string, with an EVM address accepted for addr with a
// coin type.
func EncodeResult(q Query, value string) ([]byte, error) {
	m, err := q.method()
	if err != nil {
		return nil, err
	}
	switch m.Outputs[0].Type.T {
	case abi.AddressTy:
		if !common.IsHexAddress(value) {
			return nil, fmt.Errorf("encode %s: %q is not an address", m.Sig, value)
		}
		return m.Outputs.Pack(common.HexToAddress(value))
	case abi.StringTy:
		return m.Outputs.Pack(value)
	case abi.BytesTy:
		raw, err := bytesValue(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", m.Sig, err)
		}
		return m.Outputs.Pack(raw)
	default:
		return nil, fmt.Errorf("encode %s: unexpected output type %s", m.Sig, m.Outputs[0].Type)
	}
}

// DecodeResult reverses EncodeResult, rendering addresses in checksum form
// and bytes as 0x-prefixed hex.
func DecodeResult(q Query, result []byte) (string, error) {
	m, err := q.method()
	if err != nil {
		return "", err
	}
	out, err := m.Outputs.Unpack(result)
	if err != nil {
		return "", fmt.Errorf("decode %s result: %w", m.Sig, err)
	}
	switch v := out[0].(type) {
	case common.Address:
		return v.Hex(), nil
	case string:
		return v, nil
	case []byte:
		if len(v) == common.AddressLength && q.Function == FuncAddr {
			return common.BytesToAddress(v).Hex(), nil
		}
		return hexutil.Encode(v), nil
	default:
		return "", fmt.Errorf("decode %s result: unexpected %T", m.Sig, v)
	}
}

func bytesValue(value string) ([]byte, error) {
	if value == "" || value == "0x" {
		return []byte{}, nil
	}
	if common.IsHexAddress(value) {
		return common.HexToAddress(value).Bytes(), nil
	}
	raw, err := hexutil.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("%q is not hex: %w", value, err)
	}
	return raw, nil
}
