// Package disperse splits a recipient list into batches and pushes a fixed
// native amount to each recipient through a disperser contract, one
// transaction per batch.
package disperse

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// ChainClient is everything the disperser needs from the chain. The client
// owns the wallet's nonce and signing; nothing else may send from that wallet
// during a run.
type ChainClient interface {
	// From returns the address that funds and signs every batch.
	From() common.Address
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateDisperseGas(ctx context.Context, call DisperseCall) (uint64, error)
	SendDisperse(ctx context.Context, call DisperseCall, quote GasQuote) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// RecipientSource provides a validated, deduplicated and ordered recipient list.
type RecipientSource interface {
	Recipients() ([]common.Address, error)
}

// RecipientList is a RecipientSource backed by an in-memory slice.
type RecipientList []common.Address

func (l RecipientList) Recipients() ([]common.Address, error) {
	return l, nil
}

// RecordKeeper persists batch outcomes. Record must not block on I/O and must
// not fail the run.
type RecordKeeper interface {
	Record(outcome BatchOutcome)
}

// Batch is a contiguous slice of the run's recipients.
type Batch struct {
	Index      int
	Recipients []common.Address
}

// Number is the 1-based batch position used in logs and records.
func (b Batch) Number() int {
	return b.Index + 1
}

func (b Batch) Len() int {
	return len(b.Recipients)
}

// DisperseCall holds the arguments of disperseEther(address[],uint256[]) and
// the value attached to it.
type DisperseCall struct {
	Recipients []common.Address
	Values     []*big.Int
	Value      *big.Int
}

// GasQuote is the price and limit captured for one submission attempt.
type GasQuote struct {
	GasPrice *big.Int
	GasLimit uint64
}

// Fee is the worst-case fee of the quote.
func (q GasQuote) Fee() *big.Int {
	return new(big.Int).Mul(q.GasPrice, new(big.Int).SetUint64(q.GasLimit))
}

// Stage is a step of a batch attempt.
type Stage string

const (
	StagePlanning             Stage = "planning"
	StageEstimating           Stage = "estimating"
	StageSubmitting           Stage = "submitting"
	StageAwaitingConfirmation Stage = "awaiting_confirmation"
	StageConfirmed            Stage = "confirmed"
)

// BatchOutcome is either a *Success or a *Failure.
type BatchOutcome interface {
	batchOutcome()
}

// Success is a batch whose transaction was mined with a successful status.
type Success struct {
	Batch       Batch
	Attempt     int
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Failure is a batch attempt that stopped at Stage.
type Failure struct {
	Batch   Batch
	Attempt int
	Stage   Stage
	Err     error
	// TxHash is set when the failure happened after submission.
	TxHash common.Hash
}

func (*Success) batchOutcome() {}
func (*Failure) batchOutcome() {}

// Message is the error text persisted with the failure record.
func (f *Failure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// RunState is the process-scoped state of one run.
type RunState struct {
	Recipients    []common.Address
	TotalRequired *uint256.Int
	Balance       *big.Int
	Batcher       *Batcher
	Batches       int
	CurrentIndex  int
}

// Report summarises a finished run. Batch lists hold 1-based batch numbers.
type Report struct {
	RunID            string
	Recipients       int
	Batches          int
	SucceededBatches []int
	FailedBatches    []int
	StartedAt        time.Time
	FinishedAt       time.Time
}

// HasFailures reports whether any batch ended without a confirmed transaction.
func (r *Report) HasFailures() bool {
	return len(r.FailedBatches) > 0
}
