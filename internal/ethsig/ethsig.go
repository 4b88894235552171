// Package ethsig signs and verifies EIP-191 personal_sign messages, the
// ownership proof wallets attach to registration and permission updates.
package ethsig

import (
	"crypto/ecdsa"
	"fmt"
	"regexp"

	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressPattern   = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	signaturePattern = regexp.MustCompile(`^0x[a-fA-F0-9]{130}$`)
)

func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

func IsSignature(s string) bool {
	return signaturePattern.MatchString(s)
}

// SignMessage produces a 0x-prefixed 65-byte signature with v in {27, 28}.
func SignMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the account that signed message. Both the legacy
// {27, 28} and the raw {0, 1} recovery ids are accepted.
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature is %d bytes", domain.ErrInvalidSignature, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyMessage checks that signature over message recovers to address.
func VerifyMessage(address, message, signature string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: bad address %q", domain.ErrInvalidSignature, address)
	}
	signer, err := RecoverAddress(message, signature)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(address) {
		return domain.ErrInvalidSignature
	}
	return nil
}
