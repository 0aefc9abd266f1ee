package main

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/vitwit/tipjar"
	"github.com/vitwit/tipjar/clients"
	"github.com/vitwit/tipjar/utils"
)

func newEncodeCmd(base *baseConfiguration) *cobra.Command {
	var amount, recipient, from string

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the wallet_sendCalls request for a tip without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd.OutOrStdout(), base, amount, recipient, from)
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "tip amount in USDC")
	cmd.Flags().StringVar(&recipient, "recipient", "", "override the configured recipient")
	cmd.Flags().StringVar(&from, "from", "", "sender account to put in the bundle (default zero address)")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runEncode(out io.Writer, base *baseConfiguration, amount, recipient, from string) error {
	cfg := base.config.TipConfig
	if recipient != "" {
		cfg.Recipient = recipient
	}

	var sender common.Address
	if from != "" {
		if !common.IsHexAddress(from) {
			return fmt.Errorf("invalid --from address %q", from)
		}
		sender = common.HexToAddress(from)
	}

	bundle, err := tipjar.New(cfg, nil, tipjar.WithLogger(base.logger)).Preview(amount, sender)
	if err != nil {
		return err
	}

	pretty, err := utils.NormalizeJSON(bundle)
	if err != nil {
		return err
	}

	to, units, err := clients.DecodeTransfer(bundle.Calls[0].Data)
	if err != nil {
		return err
	}
	token, err := cfg.Token()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "network:     %s (%s)\n", cfg.Network, cfg.Network.ChainIDHex())
	fmt.Fprintf(out, "transfer:    %s to %s\n", utils.FormatUnitsDisplay(units, token.Decimals), to.Hex())
	fmt.Fprintf(out, "call data:   %s\n", bundle.Calls[0].Data)
	fmt.Fprintf(out, "data suffix: %s\n", bundle.Capabilities.DataSuffix)
	fmt.Fprintf(out, "bundle:\n%s\n", pretty)
	return nil
}
