package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vitwit/tipjar"
	"github.com/vitwit/tipjar/clients"
	"github.com/vitwit/tipjar/gateway"
	"github.com/vitwit/tipjar/types"
	"github.com/vitwit/tipjar/utils"
)

func newSendCmd(base *baseConfiguration) *cobra.Command {
	var (
		amount   string
		noDelays bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a tip through the configured wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), cmd.OutOrStdout(), base, amount, noDelays)
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "tip amount in USDC, e.g. 5 or 2.5")
	cmd.Flags().BoolVar(&noDelays, "no-delays", false, "move through the states without display pauses")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runSend(ctx context.Context, out io.Writer, base *baseConfiguration, amount string, noDelays bool) error {
	cfg := base.config

	gw := gateway.New([]gateway.Strategy{
		gateway.RPCStrategy("host", cfg.HostRPCURL, cfg.RPCHeaders),
		gateway.RPCStrategy("wallet-rpc", cfg.WalletRPCURL, cfg.RPCHeaders),
	}, gateway.WithLogger(base.logger), gateway.WithMetrics(base.recorder))
	defer func() {
		if err := gw.Close(); err != nil {
			base.logger.Warn("failed to close wallet connection", map[string]any{"error": err.Error()})
		}
	}()

	opts := []tipjar.Option{
		tipjar.WithLogger(base.logger),
		tipjar.WithMetrics(base.recorder),
		tipjar.WithStateListener(func(s types.PaymentSession) {
			fmt.Fprintf(out, "[%s] %s\n", s.State, s.State.Label())
		}),
	}
	if noDelays {
		opts = append(opts, tipjar.WithDelays(types.NoDelays()))
	}
	if cfg.ChainRPCURL != "" {
		node, err := clients.DialTokenClient(ctx, cfg.ChainRPCURL)
		if err != nil {
			return err
		}
		defer node.Close()
		opts = append(opts, tipjar.WithBalanceCheck(node))
	}

	o := tipjar.New(cfg.TipConfig, gw, opts...)
	if !o.CanSend() {
		return fmt.Errorf("sending is disabled: %s", cfg.SendingDisabledReason())
	}

	network := cfg.Network.String()
	if cfg.Network.IsTestnet() {
		network += " (testnet)"
	}
	fmt.Fprintf(out, "Tipping %s USDC to %s on %s\n", amount, utils.ShortAddress(utils.NormalizeAddress(cfg.Recipient)), network)

	receipt, err := o.InitiateSend(ctx, amount)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, receipt.Notice)
	if receipt.BundleID != "" {
		fmt.Fprintf(out, "bundle: %s\n", receipt.BundleID)
	}
	return nil
}
