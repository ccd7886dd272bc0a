package disperse

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

const (
	DefaultBatchSize       = 900
	DefaultSuccessInterval = 50 * time.Second
	DefaultFailureBackoff  = 60 * time.Second
)

// Config controls batching and pacing of a run.
type Config struct {
	BatchSize        int
	AmountPerAddress *uint256.Int
	// SuccessInterval is the pause after a confirmed batch.
	SuccessInterval time.Duration
	// FailureBackoff is the pause after a failed batch attempt.
	FailureBackoff time.Duration
	// MaxBatchAttempts bounds attempts per batch. 1 means a failed batch is
	// recorded and skipped after the backoff.
	MaxBatchAttempts int
}

// DefaultConfig returns the pacing defaults. AmountPerAddress must still be set.
func DefaultConfig() Config {
	return Config{
		BatchSize:        DefaultBatchSize,
		SuccessInterval:  DefaultSuccessInterval,
		FailureBackoff:   DefaultFailureBackoff,
		MaxBatchAttempts: 1,
	}
}

func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return configErrorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.AmountPerAddress == nil || c.AmountPerAddress.IsZero() {
		return configErrorf("amount per address must be greater than 0")
	}
	if c.SuccessInterval < 0 || c.FailureBackoff < 0 {
		return configErrorf("pacing intervals must not be negative")
	}
	if c.FailureBackoff < c.SuccessInterval {
		return configErrorf("failure backoff %v is shorter than success interval %v", c.FailureBackoff, c.SuccessInterval)
	}
	if c.MaxBatchAttempts < 1 {
		return configErrorf("max batch attempts must be at least 1, got %d", c.MaxBatchAttempts)
	}
	return nil
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the wall-clock pause between batches.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithRunID tags the run report.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives a run: preflight, then every batch in order.
type Orchestrator struct {
	cfg       Config
	client    ChainClient
	submitter *Submitter
	records   RecordKeeper
	sleep     Sleeper
	now       func() time.Time
	runID     string
	log       log.Logger
}

func NewOrchestrator(cfg Config, client ChainClient, records RecordKeeper, logger log.Logger, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:       cfg,
		client:    client,
		submitter: NewSubmitter(client, cfg.AmountPerAddress, logger),
		records:   records,
		sleep:     Sleep,
		now:       time.Now,
		log:       logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Preflight loads recipients and checks the wallet can fund the whole run.
// Nothing is submitted.
func (o *Orchestrator) Preflight(ctx context.Context, source RecipientSource) (*RunState, error) {
	recipients, err := source.Recipients()
	if err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	o.log.Info("Loaded recipients", "count", len(recipients))

	required, err := TotalRequired(o.cfg.AmountPerAddress, len(recipients))
	if err != nil {
		return nil, err
	}
	balance, err := o.client.BalanceAt(ctx, o.client.From())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance of %s: %w", o.client.From(), err)
	}
	if balance.Cmp(required.ToBig()) < 0 {
		return nil, &InsufficientFundsError{Balance: balance, Required: required.ToBig()}
	}
	o.log.Info("Balance check passed", "account", o.client.From(),
		"balance", FormatEther(balance)+" ETH", "required", FormatEther(required.ToBig())+" ETH")

	batcher, err := NewBatcher(recipients, o.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	return &RunState{
		Recipients:    recipients,
		TotalRequired: required,
		Balance:       balance,
		Batcher:       batcher,
		Batches:       batcher.Len(),
	}, nil
}

// Run executes a full run. Only preflight failures and context cancellation
// return an error; failed batches are recorded and reported in the Report.
func (o *Orchestrator) Run(ctx context.Context, source RecipientSource) (*Report, error) {
	report := &Report{RunID: o.runID, StartedAt: o.now()}
	defer func() { report.FinishedAt = o.now() }()

	state, err := o.Preflight(ctx, source)
	if err != nil {
		return report, err
	}
	batcher := state.Batcher
	report.Recipients = len(state.Recipients)
	report.Batches = batcher.Len()
	o.log.Info("Starting run", "batches", report.Batches, "batchSize", o.cfg.BatchSize)

	for i := 0; i < batcher.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		state.CurrentIndex = i
		batch := batcher.Batch(i)
		last := i == batcher.Len()-1

		confirmed, err := o.runBatch(ctx, batch, last)
		if confirmed {
			report.SucceededBatches = append(report.SucceededBatches, batch.Number())
		} else {
			report.FailedBatches = append(report.FailedBatches, batch.Number())
		}
		if err != nil {
			return report, err
		}
	}

	o.log.Info("All batches processed", "batches", report.Batches,
		"succeeded", len(report.SucceededBatches), "failed", len(report.FailedBatches))
	return report, nil
}

// runBatch submits batch until it is confirmed or attempts run out, pausing
// after every attempt except when the final batch is done.
func (o *Orchestrator) runBatch(ctx context.Context, batch Batch, last bool) (bool, error) {
	for attempt := 1; ; attempt++ {
		outcome := o.submitter.Submit(ctx, batch, attempt)
		o.records.Record(outcome)

		_, confirmed := outcome.(*Success)
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}

		if confirmed {
			if last {
				return true, nil
			}
			o.log.Info("Waiting before next batch", "interval", o.cfg.SuccessInterval)
			return true, o.sleep(ctx, o.cfg.SuccessInterval)
		}

		retry := attempt < o.cfg.MaxBatchAttempts
		if !retry && last {
			return false, nil
		}
		if retry {
			o.log.Warn("Retrying batch after backoff", "batch", batch.Number(), "attempt", attempt, "backoff", o.cfg.FailureBackoff)
		} else {
			o.log.Warn("Skipping failed batch after backoff", "batch", batch.Number(), "backoff", o.cfg.FailureBackoff)
		}
		if err := o.sleep(ctx, o.cfg.FailureBackoff); err != nil {
			return false, err
		}
		if !retry {
			return false, nil
		}
	}
}
