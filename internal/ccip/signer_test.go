package ccip

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func TestSignProducesVerifiableResponse(t *testing.T) {
	signer, err := NewSigner(testKey, 0)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	signer = signer.WithClock(fixedClock(1_700_000_000))
	if signer.TTL() != DefaultTTL {
		t.Fatalf("ttl = %s", signer.TTL())
	}

	sender := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	q := TextQuery(Namehash("alice.uniperk.eth"), "agent.uniperk.allowed")
	request, err := EncodeResolveCall("alice.uniperk.eth", q)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}

	payload, resp, err := signer.Sign(sender, request, q, "true")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if resp.ValidUntil != 1_700_000_000+1000 {
		t.Fatalf("validUntil = %d", resp.ValidUntil)
	}
	if len(resp.Signature) != 65 || resp.Signature[64] < 27 {
		t.Fatalf("unexpected signature %x", resp.Signature)
	}

	got, err := VerifyResponse(signer.Address(), sender, request, payload, time.Unix(1_700_000_500, 0))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	value, err := DecodeResult(q, got.Result)
	if err != nil || value != "true" {
		t.Fatalf("result %q err %v", value, err)
	}
}

func TestVerifyRejectsTamperingAndExpiry(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := NewSignerFromKey(key, time.Minute).WithClock(fixedClock(1_000))

	sender := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	q := AddrQuery(Namehash("bob.uniperk.eth"))
	request, _ := EncodeResolveCall("bob.uniperk.eth", q)
	payload, _, err := signer.Sign(sender, request, q, signer.Address().Hex())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	otherSender := common.HexToAddress("0x00000000000000000000000000000000000000c2")
	if _, err := VerifyResponse(signer.Address(), otherSender, request, payload, time.Unix(1_000, 0)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("different sender should not verify, got %v", err)
	}

	tampered := append([]byte(nil), request...)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := VerifyResponse(signer.Address(), sender, tampered, payload, time.Unix(1_000, 0)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered request should not verify, got %v", err)
	}

	if _, err := VerifyResponse(signer.Address(), sender, request, payload, time.Unix(1_061, 0)); err == nil {
		t.Fatalf("expired response should not verify")
	}
}

func TestDigestLayout(t *testing.T) {
	sender := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	request := []byte{1, 2, 3}
	result := []byte{4, 5}

	buf := []byte{0x19, 0x00}
	buf = append(buf, sender.Bytes()...)
	buf = append(buf, 0, 0, 0, 0, 0, 0, 0x01, 0x00)
	buf = append(buf, crypto.Keccak256(request)...)
	buf = append(buf, crypto.Keccak256(result)...)

	if got, want := Digest(sender, 256, request, result), crypto.Keccak256Hash(buf); got != want {
		t.Fatalf("digest = %s, want %s", got.Hex(), want.Hex())
	}
}

func TestNewSignerRejectsGarbage(t *testing.T) {
	if _, err := NewSigner("0xnothex", time.Second); err == nil {
		t.Fatalf("expected parse error")
	}
}
