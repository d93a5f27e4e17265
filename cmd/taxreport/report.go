package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"chain-tax-lab/internal/classifier"
	"chain-tax-lab/internal/ingestion"
	"chain-tax-lab/internal/report"
	"chain-tax-lab/internal/reporting"
	"chain-tax-lab/internal/taxengine"
)

type reportFlags struct {
	address    string
	year       int
	from       string
	to         string
	fromBlock  int64
	toBlock    int64
	file       string
	unrealized string
	outDir     string
	noProgress bool
}

func reportCmd() *cobra.Command {
	var f reportFlags

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a tax report for an address",
		Long: `Fetch the address's transactions from a JSON file and/or the configured RPC
endpoint, classify and price them, and write REPORT.md, events.csv and lots.csv.

The fetched history should start before the period so that cost basis of
earlier acquisitions is known.`,
		Example: `  taxreport report --address 0xabc... --year 2024
  taxreport report --address 0xabc... --file history.json --from 2024-01-01 --to 2024-06-30`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.address, "address", "", "wallet address (required)")
	cmd.Flags().IntVar(&f.year, "year", 0, "tax year, shorthand for --from/--to")
	cmd.Flags().StringVar(&f.from, "from", "", "period start date (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&f.to, "to", "", "period end date (YYYY-MM-DD, inclusive)")
	cmd.Flags().Int64Var(&f.fromBlock, "from-block", 0, "first block to fetch over RPC")
	cmd.Flags().Int64Var(&f.toBlock, "to-block", 0, "last block to fetch over RPC (0 = latest)")
	cmd.Flags().StringVar(&f.file, "file", "", "JSON transaction history file")
	cmd.Flags().StringVar(&f.unrealized, "unrealized", string(taxengine.UnrealizedPeriodEnd), "unrealized gains: none, now, period_end")
	cmd.Flags().StringVar(&f.outDir, "out", "reports", "output directory")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func runReport(cmd *cobra.Command, f reportFlags) error {
	ctx := cmd.Context()

	start, end, err := resolvePeriod(f.year, f.from, f.to)
	if err != nil {
		return err
	}
	mode, err := taxengine.ParseUnrealizedMode(f.unrealized)
	if err != nil {
		return err
	}
	rates, err := cfg.Rates()
	if err != nil {
		return err
	}

	client := newChainClient(cfg)
	var sources []ingestion.TransactionSource
	if f.file != "" {
		sources = append(sources, ingestion.NewFileSource(f.file))
	}
	if client != nil {
		sources = append(sources, ingestion.NewRPCSource(ingestion.RPCSourceOptions{
			Client:     client,
			Network:    cfg.Network,
			BlockChunk: cfg.RPC.BlockChunk,
			Workers:    cfg.Workers,
			Logger:     &log.Logger,
		}))
	}
	if len(sources) == 0 {
		return errors.New("no transaction source: pass --file or configure rpc.url")
	}

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

	progress := newProgress(cmd.ErrOrStderr(), f.noProgress)
	runner, err := report.NewRunner(report.Options{
		Collector:   ingestion.NewManager(ingestion.ManagerOptions{Sources: sources, Logger: &log.Logger}),
		Classifier:  classifier.New(classifier.Options{Tokens: reg, Logger: &log.Logger}),
		Prices:      resolver,
		NewLotStore: b.NewLotStore,
		Jobs:        b.Jobs,
		Events:      b.Events,
		Facts:       b.Facts,
		Rates:       rates,
		Workers:     cfg.Workers,
		Progress:    progress.update,
		Logger:      &log.Logger,
	})
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, report.Request{
		Address:     f.address,
		Network:     cfg.Network,
		PeriodStart: start,
		PeriodEnd:   end,
		FromBlock:   f.fromBlock,
		ToBlock:     f.toBlock,
		Unrealized:  mode,
	})
	progress.finish()
	if err != nil {
		return err
	}

	rep, err := reporting.Generate(reporting.Input{
		JobID:   res.Job.JobID,
		Summary: res.Summary,
		Events:  res.Events,
		Lots:    res.Lots,
		Errors:  res.Errors,
	}, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := writeReport(f.outDir, rep); err != nil {
		return err
	}

	s := res.Summary
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Report %s written to %s\n", res.Job.JobID, f.outDir)
	fmt.Fprintf(out, "  events:             %d (%d unpriced)\n", len(res.Events), res.Unpriced)
	fmt.Fprintf(out, "  ordinary income:    $%s\n", s.OrdinaryIncomeUSD.StringFixed(2))
	fmt.Fprintf(out, "  realized gains:     $%s\n", s.CapitalGainRealizedUSD.StringFixed(2))
	fmt.Fprintf(out, "  gas deductions:     $%s\n", s.TotalGasFeeUSD.StringFixed(2))
	fmt.Fprintf(out, "  estimated tax due:  $%s\n", s.EstimatedTaxDue.StringFixed(2))
	return nil
}

// writeReport writes the markdown report and both CSV exports into dir.
func writeReport(dir string, rep *reporting.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "REPORT.md"), []byte(reporting.RenderMarkdown(rep)), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := writeCSV(filepath.Join(dir, "events.csv"), func(w io.Writer) error {
		return reporting.RenderEventsCSV(w, rep.Events)
	}); err != nil {
		return err
	}
	return writeCSV(filepath.Join(dir, "lots.csv"), func(w io.Writer) error {
		return reporting.RenderLotsCSV(w, rep.Lots)
	})
}

func writeCSV(path string, render func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := render(file); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// progress renders classification progress. The total is unknown until fetching ends,
// so the bar is created on the first update.
type progress struct {
	mu       sync.Mutex
	w        io.Writer
	disabled bool
	bar      *progressbar.ProgressBar
}

func newProgress(w io.Writer, disabled bool) *progress {
	return &progress{w: w, disabled: disabled}
}

func (p *progress) update(done, total int) {
	if p.disabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Classifying transactions"),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(p.w)
	}
}
