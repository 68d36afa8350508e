package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a participant account. Addresses are stored in EIP-55
// checksum form so identity comparison is a plain string compare.
type Address = string

// Vault accounts hold funds owned by the engine itself. They are not hex
// addresses on purpose: no caller signature can ever authenticate as one.
const (
	// VaultEscrow holds every deposited clause amount until execution or refund.
	VaultEscrow Address = "vault:escrow"

	// VaultStake holds proposer, disputer, and voter stakes until claimed.
	VaultStake Address = "vault:stake"
)

// NormalizeAddress validates a hex account address and returns its EIP-55
// checksum form. Vault identifiers pass through unchanged.
func NormalizeAddress(s string) (Address, error) {
	if strings.HasPrefix(s, "vault:") {
		return s, nil
	}
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("domain: address %q: %w", s, ErrInvalidInput)
	}
	return common.HexToAddress(s).Hex(), nil
}

// SameAddress reports whether two addresses refer to the same account,
// tolerating mixed-case hex input.
func SameAddress(a, b Address) bool {
	if a == b {
		return true
	}
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return false
}
