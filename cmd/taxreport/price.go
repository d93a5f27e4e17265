package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chain-tax-lab/internal/address"
	"chain-tax-lab/internal/domain"
)

func priceCmd() *cobra.Command {
	var token, at string

	cmd := &cobra.Command{
		Use:     "price",
		Short:   "Resolve the historical USD price of a token",
		Example: `  taxreport price --token 0x1f9840a85d5af5bf1d1762f925bdaddc4201f984 --at 2024-06-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			ts, err := parseTimestamp(at)
			if err != nil {
				return err
			}
			if token, err = address.Normalize(cfg.Network, token); err != nil {
				return err
			}

			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			reg := newTokenRegistry(newChainClient(cfg))
			resolver, err := newResolver(cfg, b.Quotes, reg)
			if err != nil {
				return err
			}

			price, source, err := resolver.Resolve(ctx, token, ts, cfg.Network)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = $%s (%s)\n", reg.Symbol(cfg.Network, token), price.String(), source)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", domain.NativeToken, "token address or "+domain.NativeToken)
	cmd.Flags().StringVar(&at, "at", "", "time (YYYY-MM-DD, RFC 3339 or unix ms)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}
