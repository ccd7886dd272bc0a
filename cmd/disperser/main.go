package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/okx/disperser/chain"
	"github.com/okx/disperser/config"
	"github.com/okx/disperser/disperse"
	"github.com/okx/disperser/recipients"
	"github.com/okx/disperser/records"
	"github.com/okx/disperser/stats"
)

const (
	exitOK            = 0
	exitFatal         = 1
	exitBatchFailures = 2
	exitInterrupted   = 130

	rpcRetryDelay = time.Second
)

var errBatchesFailed = errors.New("one or more batches failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stderr).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errBatchesFailed):
		return exitBatchFailures
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitFatal
	}
}

type app struct {
	v   *viper.Viper
	cfg *config.Config
	log log.Logger
	out io.Writer
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	a := &app{v: config.NewViper(), out: logOut}

	root := &cobra.Command{
		Use:   "disperser",
		Short: "Send a fixed native amount to every address in a list",
		Long: `Send a fixed native amount to every address in the recipient file through
the disperseEther(address[],uint256[]) contract, one transaction per batch.

Settings come from flags, the environment (RPC_URL, PRIVATE_KEY, ...) and an
optional .env file, in that order of precedence.

Example:
  disperser run --amount-per-address 0.00000065 --recipients-file add.txt`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.run,
	}
	config.AddFlags(root)
	cobra.CheckErr(a.v.BindPFlags(root.PersistentFlags()))

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Disperse to every recipient, batch by batch",
			Args:  cobra.NoArgs,
			RunE:  a.run,
		},
		&cobra.Command{
			Use:   "check",
			Short: "Load recipients, check the balance and estimate the first batch without sending",
			Args:  cobra.NoArgs,
			RunE:  a.check,
		},
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	envFile := a.v.GetString(config.FlagEnvFile)
	if err := config.LoadEnvFile(envFile, cmd.Flags().Changed(config.FlagEnvFile)); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = newLogger(a.out, cfg.LogLevel)
	return nil
}

func newLogger(w io.Writer, level string) log.Logger {
	lvl, err := config.ParseLogLevel(level)
	if err != nil {
		lvl = log.LevelInfo
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(w, lvl, false))
	log.SetDefault(logger)
	return logger
}

func (a *app) connect(ctx context.Context) (*chain.EthClient, disperse.ChainClient, error) {
	eth, err := chain.Dial(ctx, a.cfg.ChainConfig(), a.log.New("module", "chain"))
	if err != nil {
		return nil, nil, err
	}
	return eth, chain.NewRetryableClient(eth, a.cfg.RPCRetries, rpcRetryDelay, a.log), nil
}

func (a *app) source() disperse.RecipientSource {
	return recipients.NewLoader(a.cfg.RecipientsFile, a.cfg.StrictAddresses, a.log.New("module", "recipients"))
}

func (a *app) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	runID := uuid.NewString()
	logger := a.log.New("run", runID)

	eth, client, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer eth.Close()

	keeper, err := records.Open(a.cfg.SuccessLog, a.cfg.ErrorLog, runID, logger.New("module", "records"))
	if err != nil {
		return err
	}
	tracker := stats.NewTracker(keeper, a.cfg.AmountPerAddress, logger.New("module", "stats"))
	orch, err := disperse.NewOrchestrator(a.cfg.DisperseConfig(), client, tracker, logger, disperse.WithRunID(runID))
	if err != nil {
		keeper.Close()
		return err
	}

	report, runErr := orch.Run(ctx, a.source())
	if err := keeper.Close(); err != nil {
		logger.Warn("Failed to close record files", "err", err)
	}
	if w := keeper.Warnings(); w > 0 {
		logger.Warn("Some records were not persisted", "count", w)
	}
	if report != nil && report.Batches > 0 {
		tracker.LogFinal()
		if a.cfg.SummaryFile != "" {
			a.writeSummary(logger, report, tracker.Snapshot())
		}
	}

	if runErr != nil {
		return runErr
	}
	if report.HasFailures() {
		return fmt.Errorf("%w: %v", errBatchesFailed, report.FailedBatches)
	}
	return nil
}

func (a *app) writeSummary(logger log.Logger, report *disperse.Report, snap stats.Snapshot) {
	summary := records.NewSummary(report)
	summary.RecipientsPaid = snap.RecipientsPaid
	summary.GasUsed = snap.GasUsed
	summary.EtherSent = disperse.FormatEther(snap.ValueSent)
	if err := records.WriteSummary(a.cfg.SummaryFile, summary); err != nil {
		logger.Warn("Failed to write run summary", "err", err)
		return
	}
	logger.Info("Wrote run summary", "path", a.cfg.SummaryFile)
}

func (a *app) check(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	eth, client, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer eth.Close()

	// check never submits, so nothing is recorded
	orch, err := disperse.NewOrchestrator(a.cfg.DisperseConfig(), client, nil, a.log)
	if err != nil {
		return err
	}
	state, err := orch.Preflight(ctx, a.source())
	if err != nil {
		return err
	}
	batcher := state.Batcher
	batcher.Each(func(b disperse.Batch) bool {
		plan := disperse.NewTransferPlan(b, a.cfg.AmountPerAddress)
		a.log.Info("Planned batch", "batch", b.Number(), "recipients", b.Len(),
			"total", disperse.FormatEther(plan.TotalValue.ToBig())+" ETH")
		return true
	})

	first := disperse.NewTransferPlan(batcher.Batch(0), a.cfg.AmountPerAddress)
	gas, err := disperse.NewGasEstimator(client).Estimate(ctx, first.Call())
	if err != nil {
		return err
	}
	a.log.Info("Check passed", "recipients", len(state.Recipients), "batches", state.Batches,
		"required", disperse.FormatEther(state.TotalRequired.ToBig())+" ETH",
		"balance", disperse.FormatEther(state.Balance)+" ETH", "firstBatchGas", gas)
	return nil
}
