package disperse

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

// Submitter runs one batch attempt through planning, estimation, submission
// and confirmation.
type Submitter struct {
	client    ChainClient
	estimator *GasEstimator
	amount    *uint256.Int
	log       log.Logger
}

func NewSubmitter(client ChainClient, amount *uint256.Int, logger log.Logger) *Submitter {
	return &Submitter{
		client:    client,
		estimator: NewGasEstimator(client),
		amount:    amount,
		log:       logger,
	}
}

// Submit processes batch and always returns exactly one outcome. Errors and
// panics from the chain client are turned into a *Failure.
func (s *Submitter) Submit(ctx context.Context, batch Batch, attempt int) (outcome BatchOutcome) {
	l := s.log.New("batch", batch.Number(), "attempt", attempt)
	stage := StagePlanning
	var tx *types.Transaction

	fail := func(err error) BatchOutcome {
		f := &Failure{Batch: batch, Attempt: attempt, Stage: stage, Err: err}
		if tx != nil {
			f.TxHash = tx.Hash()
		}
		l.Error("Batch failed", "stage", stage, "err", err)
		return f
	}
	defer func() {
		if r := recover(); r != nil {
			outcome = fail(fmt.Errorf("%w: %w", stageError(stage), panicToError(r)))
		}
	}()

	plan := NewTransferPlan(batch, s.amount)
	call := plan.Call()
	l.Info("Processing batch", "recipients", batch.Len(), "total", FormatEther(call.Value)+" ETH")

	stage = StageEstimating
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: gas price: %w", ErrEstimation, err))
	}
	gasLimit, err := s.estimator.Estimate(ctx, call)
	if err != nil {
		return fail(err)
	}
	quote := GasQuote{GasPrice: gasPrice, GasLimit: gasLimit}
	l.Info("Estimated gas", "gasPrice", FormatGwei(gasPrice)+" gwei", "gasLimit", gasLimit, "fee", FormatEther(quote.Fee())+" ETH")

	stage = StageSubmitting
	tx, err = s.client.SendDisperse(ctx, call, quote)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrSubmission, err))
	}
	if tx == nil {
		return fail(fmt.Errorf("%w: client returned no transaction", ErrSubmission))
	}
	l.Info("Transaction sent", "tx", tx.Hash())

	stage = StageAwaitingConfirmation
	receipt, err := s.client.WaitMined(ctx, tx)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrConfirmation, err))
	}
	if receipt == nil {
		return fail(fmt.Errorf("%w: no receipt for %s", ErrConfirmation, tx.Hash()))
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return fail(fmt.Errorf("%w: transaction %s reverted in block %v", ErrConfirmation, tx.Hash(), receipt.BlockNumber))
	}

	stage = StageConfirmed
	success := &Success{
		Batch:   batch,
		Attempt: attempt,
		TxHash:  tx.Hash(),
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		success.BlockNumber = receipt.BlockNumber.Uint64()
	}
	l.Info("Transaction confirmed", "tx", success.TxHash, "block", success.BlockNumber, "gasUsed", success.GasUsed)
	return success
}

func stageError(stage Stage) error {
	switch stage {
	case StageEstimating:
		return ErrEstimation
	case StageSubmitting:
		return ErrSubmission
	case StageAwaitingConfirmation:
		return ErrConfirmation
	default:
		return errors.New("batch planning failed")
	}
}
