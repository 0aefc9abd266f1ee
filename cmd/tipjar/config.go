package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/vitwit/tipjar/types"
	"github.com/vitwit/tipjar/utils"
)

const (
	envPrefix = "TIPJAR"

	defaultRecipient       = "0x5eC6AF0798b25C563B102d3469971f1a8d598121"
	defaultAttributionCode = "bc_4tcf5clw"
)

// fileConfig is the tip configuration plus the wallet endpoints the CLI
// discovers a provider from.
type fileConfig struct {
	types.TipConfig `mapstructure:",squash"`

	// HostRPCURL is the embedding host's wallet bridge. Tried first.
	HostRPCURL string `mapstructure:"host_rpc_url"`
	// WalletRPCURL is a generic EIP-1193 JSON-RPC endpoint.
	WalletRPCURL string            `mapstructure:"wallet_rpc_url"`
	RPCHeaders   map[string]string `mapstructure:"rpc_headers"`

	// ChainRPCURL is a chain node used for balance reads. Optional.
	ChainRPCURL string `mapstructure:"chain_rpc_url"`
}

// loadConfig reads defaults, then the optional config file, then TIPJAR_*
// environment variables.
func loadConfig(path string) (*fileConfig, error) {
	v := viper.New()

	// every key needs a default for AutomaticEnv to reach Unmarshal
	v.SetDefault("network", string(types.NetworkBase))
	v.SetDefault("token_address", "")
	v.SetDefault("token_decimals", 0)
	v.SetDefault("recipient", defaultRecipient)
	v.SetDefault("attribution_code", defaultAttributionCode)
	v.SetDefault("strict_checksum", false)
	v.SetDefault("host_rpc_url", "")
	v.SetDefault("wallet_rpc_url", "")
	v.SetDefault("chain_rpc_url", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var cfg fileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := utils.ValidateTipConfig(&cfg.TipConfig); err != nil {
		return nil, err
	}

	return &cfg, nil
}
