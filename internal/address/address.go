// Package address normalizes and validates account addresses per network.
package address

import (
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	"chain-tax-lab/internal/domain"
)

// Errors returned by address validation.
var (
	// ErrInvalidAddress is returned when an address does not parse for its network.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNotWallet is returned for an address that cannot sign transactions,
	// such as a Solana program derived address.
	ErrNotWallet = errors.New("address is not a wallet")
)

// Normalize returns the canonical form of addr on network.
// EVM addresses become lowercase 0x-hex; Solana addresses stay base58 after validation.
// The native-asset pseudo-address and empty input pass through unchanged.
func Normalize(network, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.EqualFold(addr, domain.NativeToken) {
		return strings.ToLower(addr), nil
	}

	if network == domain.NetworkSolana {
		if _, err := decodeSolana(addr); err != nil {
			return "", err
		}
		return addr, nil
	}

	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q on %s", ErrInvalidAddress, addr, network)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// NormalizeWallet is Normalize for the subject of a report. On Solana it also
// rejects off-curve program derived addresses, which own no transactions.
func NormalizeWallet(network, addr string) (string, error) {
	out, err := Normalize(network, addr)
	if err != nil || out == "" || network != domain.NetworkSolana {
		return out, err
	}
	kind, err := ClassifySolana(out)
	if err != nil {
		return "", err
	}
	if kind != SolanaWallet {
		return "", fmt.Errorf("%w: %s is a program derived address", ErrNotWallet, out)
	}
	return out, nil
}

// FromTopic extracts a 20-byte address from a 32-byte indexed log topic.
func FromTopic(topic string) string {
	return strings.ToLower(common.BytesToAddress(common.FromHex(topic)).Hex())
}

// SolanaKind classifies a Solana address.
type SolanaKind string

const (
	SolanaWallet SolanaKind = "wallet" // on the ed25519 curve, has a private key
	SolanaPDA    SolanaKind = "pda"    // off-curve program derived address
)

// ClassifySolana reports whether addr is a key-backed wallet or a program derived address.
func ClassifySolana(addr string) (SolanaKind, error) {
	raw, err := decodeSolana(addr)
	if err != nil {
		return "", err
	}
	if isOnCurve(raw) {
		return SolanaWallet, nil
	}
	return SolanaPDA, nil
}

func decodeSolana(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, addr, len(raw))
	}
	return raw, nil
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
