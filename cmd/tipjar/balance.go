package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/vitwit/tipjar/clients"
	"github.com/vitwit/tipjar/utils"
)

func newBalanceCmd(base *baseConfiguration) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the token balance of an account on the configured network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(cmd.Context(), cmd.OutOrStdout(), base, account)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account to look up")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runBalance(ctx context.Context, out io.Writer, base *baseConfiguration, account string) error {
	cfg := base.config
	if cfg.ChainRPCURL == "" {
		return errors.New("chain_rpc_url is not configured")
	}
	if !common.IsHexAddress(account) {
		return fmt.Errorf("invalid account %q", account)
	}

	token, err := cfg.Token()
	if err != nil {
		return err
	}

	node, err := clients.DialTokenClient(ctx, cfg.ChainRPCURL)
	if err != nil {
		return err
	}
	defer node.Close()

	chainID, err := node.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if want := cfg.Network.ChainID(); chainID.Cmp(want) != 0 {
		return fmt.Errorf("chain RPC serves chain %s, %s is %s", chainID, cfg.Network, want)
	}

	bal, err := node.BalanceOf(ctx, common.HexToAddress(token.Address), common.HexToAddress(account))
	if err != nil {
		return err
	}

	base.logger.Debug("balance read", map[string]any{"account": account, "units": bal.String()})
	fmt.Fprintf(out, "%s %s\n", utils.FormatUnits(bal, token.Decimals), token.Symbol)
	return nil
}
