package ccip

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultTTL bounds how long a signed response stays valid on-chain.
const DefaultTTL = 1000 * time.Second

var ErrBadSignature = errors.New("ccip: response signature does not verify")

// SignedResponse is the decoded (bytes result, uint64 expires, bytes sig)
// triple returned to CCIP-Read clients.
type SignedResponse struct {
	Result     []byte
	ValidUntil uint64
	Signature  []byte
}

type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	ttl     time.Duration
	now     func() time.Time
}

// NewSigner parses a hex secp256k1 private key, with or without 0x prefix.
func NewSigner(privateKeyHex string, ttl time.Duration) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("ccip: parse private key: %w", err)
	}
	return NewSignerFromKey(key, ttl), nil
}

func NewSignerFromKey(key *ecdsa.PrivateKey, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock returns a copy of the signer that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign encodes value as the query's function result, signs it for sender and
// the exact request calldata, and returns the ABI-encoded response payload.
//
// The result bytes hashed into the digest are the ones placed in the
// payload; a verifier recomputes the digest from what the client forwards.
func (s *Signer) Sign(sender common.Address, request []byte, q Query, value string) ([]byte, SignedResponse, error) {
	result, err := EncodeResult(q, value)
	if err != nil {
		return nil, SignedResponse{}, err
	}

	validUntil := uint64(s.now().Add(s.ttl).Unix())
	digest := Digest(sender, validUntil, request, result)

	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, SignedResponse{}, fmt.Errorf("ccip: sign digest: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	resp := SignedResponse{Result: result, ValidUntil: validUntil, Signature: sig}
	payload, err := EncodeResponse(resp)
	if err != nil {
		return nil, SignedResponse{}, err
	}
	return payload, resp, nil
}

// Digest is keccak256(0x1900 ‖ sender ‖ uint64(validUntil) ‖
// keccak256(request) ‖ keccak256(result)), packed without padding.
func Digest(sender common.Address, validUntil uint64, request, result []byte) common.Hash {
	buf := make([]byte, 0, 2+common.AddressLength+8+2*common.HashLength)
	buf = append(buf, 0x19, 0x00)
	buf = append(buf, sender.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, validUntil)
	buf = append(buf, crypto.Keccak256(request)...)
	buf = append(buf, crypto.Keccak256(result)...)
	return crypto.Keccak256Hash(buf)
}

func EncodeResponse(resp SignedResponse) ([]byte, error) {
	return offchainResolverABI.Methods[methodResolve].Outputs.Pack(resp.Result, resp.ValidUntil, resp.Signature)
}

func DecodeResponse(payload []byte) (SignedResponse, error) {
	out, err := offchainResolverABI.Methods[methodResolve].Outputs.Unpack(payload)
	if err != nil {
		return SignedResponse{}, fmt.Errorf("ccip: decode response: %w", err)
	}
	result, ok1 := out[0].([]byte)
	validUntil, ok2 := out[1].(uint64)
	sig, ok3 := out[2].([]byte)
	if !ok1 || !ok2 || !ok3 {
		return SignedResponse{}, errors.New("ccip: decode response: unexpected field types")
	}
	return SignedResponse{Result: result, ValidUntil: validUntil, Signature: sig}, nil
}

// RecoverSigner returns the address that signed resp for sender and request.
func RecoverSigner(sender common.Address, request []byte, resp SignedResponse) (common.Address, error) {
	if len(resp.Signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature is %d bytes", ErrBadSignature, len(resp.Signature))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, resp.Signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := Digest(sender, resp.ValidUntil, request, resp.Result)
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyResponse decodes payload and checks it was signed by expected and
// has not expired at now.
func VerifyResponse(expected, sender common.Address, request, payload []byte, now time.Time) (SignedResponse, error) {
	resp, err := DecodeResponse(payload)
	if err != nil {
		return SignedResponse{}, err
	}
	signer, err := RecoverSigner(sender, request, resp)
	if err != nil {
		return SignedResponse{}, err
	}
	if signer != expected {
		return SignedResponse{}, fmt.Errorf("%w: signed by %s, want %s", ErrBadSignature, signer.Hex(), expected.Hex())
	}
	if uint64(now.Unix()) > resp.ValidUntil {
		return SignedResponse{}, fmt.Errorf("ccip: response expired at %d", resp.ValidUntil)
	}
	return resp, nil
}
