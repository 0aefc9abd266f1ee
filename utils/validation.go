package utils

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tipjar/types"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidateRecipient checks that s is a 0x-prefixed 20-byte hex address and
// not the zero address.
//
// The EIP-55 checksum is not verified here. A case-corrupted but well-formed
// address passes and any mismatch is left for the wallet or the network to
// reject. Callers that want the stricter check use ValidateChecksum.
func ValidateRecipient(s string) (common.Address, error) {
	if !addressPattern.MatchString(s) {
		return common.Address{}, types.NewError(types.ErrValidation, types.ReasonMalformedAddress,
			"recipient address is not a valid 20-byte hex address", nil)
	}

	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, types.NewError(types.ErrValidation, types.ReasonZeroAddress,
			"recipient cannot be the zero address", nil)
	}

	return addr, nil
}

// ValidateChecksum verifies the EIP-55 checksum of a mixed-case address.
// All-lowercase and all-uppercase addresses carry no checksum and pass.
func ValidateChecksum(s string) error {
	if _, err := ValidateRecipient(s); err != nil {
		return err
	}

	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}

	mixed, err := common.NewMixedcaseAddressFromString(s)
	if err != nil {
		return types.NewError(types.ErrValidation, types.ReasonMalformedAddress, "recipient address is malformed", err)
	}
	if !mixed.ValidChecksum() {
		return types.NewError(types.ErrValidation, types.ReasonBadChecksum,
			"recipient address has an invalid checksum", nil)
	}

	return nil
}

// NormalizeAddress returns the checksummed form of a valid address, or "".
func NormalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return ""
	}
	return common.HexToAddress(address).Hex()
}

// ShortAddress renders an address as 0x1234…abcd for display.
func ShortAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}
