package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/tipjar/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ParseTipConfig parses and validates a TipConfig from JSON
func ParseTipConfig(data []byte) (*types.TipConfig, error) {
	var config types.TipConfig

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, &types.TipError{
			Code:    types.ErrConfiguration,
			Message: "failed to parse tip config",
			Err:     err,
		}
	}

	if err := ValidateTipConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ValidateTipConfig checks the struct tags of a TipConfig. Recipient and
// attribution code are not checked here: a config without them is valid but
// has sending disabled.
func ValidateTipConfig(config *types.TipConfig) error {
	if err := validate.Struct(config); err != nil {
		return &types.TipError{
			Code:    types.ErrConfiguration,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	if config.TokenAddress != "" && config.TokenDecimals == 0 {
		return &types.TipError{
			Code:    types.ErrConfiguration,
			Message: "tokenDecimals is required with tokenAddress",
		}
	}

	return nil
}

// NormalizeJSON formats JSON with consistent indentation
func NormalizeJSON(data interface{}) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}
