// Command taxreport builds crypto tax reports for a wallet address.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chain-tax-lab/internal/config"
	"chain-tax-lab/internal/logging"
	"chain-tax-lab/internal/observability"
)

var (
	cfgFile string
	cfg     *config.Config
	version = "dev"

	rootCmd = &cobra.Command{
		Use:   "taxreport",
		Short: "Crypto tax reports from on-chain history",
		Long: `taxreport fetches the transactions of a wallet, classifies them into tax
categories, prices every leg in USD, tracks FIFO cost basis and summarizes
income, capital gains, gas deductions and the estimated tax due.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./taxlab.yaml)")
	flags.String("network", "", "network (ethereum, polygon, arbitrum, optimism, base, bsc, avalanche)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human-readable console logs")
	flags.String("storage", "", "storage backend (memory, postgres)")
	flags.Int("workers", 0, "classification and pricing workers")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	bindFlag("network", "network")
	bindFlag("log.level", "log-level")
	bindFlag("log.pretty", "log-pretty")
	bindFlag("storage.backend", "storage")
	bindFlag("workers", "workers")
	bindFlag("metrics.addr", "metrics-addr")

	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(priceCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(quotesCmd())
	rootCmd.AddCommand(versionCmd())
}

// bindFlag binds a persistent flag to a config key. Unset flags leave the key to env, file or default.
func bindFlag(key, flag string) {
	_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("received interrupt signal, shutting down")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.LoadWith(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}
	logging.SetGlobal(logger)

	if cfg.Metrics.Addr != "" {
		startMetricsServer(cmd.Context(), cfg.Metrics.Addr)
	}
	return nil
}

// startMetricsServer serves /metrics until ctx is done.
func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taxreport %s\n", version)
		},
	}
}
