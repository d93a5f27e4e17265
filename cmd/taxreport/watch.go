package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chain-tax-lab/internal/address"
	"chain-tax-lab/internal/chain"
	"chain-tax-lab/internal/classifier"
	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/ingestion"
	"chain-tax-lab/internal/pricing"
	"chain-tax-lab/internal/tokens"
)

func watchCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Classify new transactions of an address as they are mined",
		Long: `Subscribe to Transfer logs naming the address over the configured websocket
endpoint and print each new transaction's tax events with USD values.
Requires rpc.url and rpc.ws_url.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			user, err := address.NormalizeWallet(cfg.Network, addr)
			if err != nil {
				return err
			}
			client := newChainClient(cfg)
			if client == nil || cfg.RPC.WSURL == "" {
				return errors.New("watch requires rpc.url and rpc.ws_url")
			}

			ws, err := chain.NewWSClient(ctx, cfg.RPC.WSURL, nil)
			if err != nil {
				return fmt.Errorf("connect websocket: %w", err)
			}
			defer func() {
				if err := ws.Close(); err != nil {
					log.Warn().Err(err).Msg("close websocket")
				}
			}()

			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			reg := newTokenRegistry(client)
			resolver, err := newResolver(cfg, b.Quotes, reg)
			if err != nil {
				return err
			}
			cls := classifier.New(classifier.Options{Tokens: reg, Logger: &log.Logger})
			enricher := pricing.NewEnricher(resolver, &log.Logger)

			watcher := ingestion.NewWatcher(ingestion.WatcherOptions{
				WS:      ws,
				Client:  client,
				Network: cfg.Network,
				Address: user,
				Logger:  &log.Logger,
			})
			txs, err := watcher.Watch(ctx)
			if err != nil {
				return err
			}

			log.Info().Str("address", user).Str("network", cfg.Network).Msg("watching for transactions")
			for tx := range txs {
				events := cls.Classify(ctx, tx, user)
				if _, err := enricher.EnrichAll(ctx, events, cfg.Workers); err != nil {
					return err
				}
				for _, ev := range events {
					printEvent(cmd.OutOrStdout(), ev)
				}
			}
			log.Info().Msg("watch stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "address", "", "wallet address (required)")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

// printEvent writes one event as a single line.
func printEvent(w io.Writer, ev *domain.ClassifiedEvent) {
	fmt.Fprintf(w, "%s  %-9s  %s", time.UnixMilli(ev.Timestamp).UTC().Format(time.RFC3339), ev.Category(), ev.TxHash)
	if ev.TokenOut != nil {
		fmt.Fprintf(w, "  out %s %s", tokens.ToUnits(ev.TokenOut.Amount, ev.TokenOut.Decimals), ev.TokenOut.Symbol)
		if ev.TokenOut.ValueUSD.Valid {
			fmt.Fprintf(w, " ($%s)", ev.TokenOut.ValueUSD.Decimal.StringFixed(2))
		}
	}
	if ev.TokenIn != nil {
		fmt.Fprintf(w, "  in %s %s", tokens.ToUnits(ev.TokenIn.Amount, ev.TokenIn.Decimals), ev.TokenIn.Symbol)
		if ev.TokenIn.ValueUSD.Valid {
			fmt.Fprintf(w, " ($%s)", ev.TokenIn.ValueUSD.Decimal.StringFixed(2))
		}
	}
	if ev.GasFeeUSD.Valid {
		fmt.Fprintf(w, "  gas $%s", ev.GasFeeUSD.Decimal.StringFixed(2))
	}
	fmt.Fprintln(w)
}
