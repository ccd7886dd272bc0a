package disperse

import (
	"errors"
	"fmt"
	"math/big"
)

// Run-level errors abort a run before any batch is submitted.
var (
	ErrConfig            = errors.New("invalid configuration")
	ErrNoRecipients      = errors.New("no recipients")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Batch-level errors never leave the submitter; they are carried by a Failure.
var (
	ErrEstimation   = errors.New("gas estimation failed")
	ErrSubmission   = errors.New("transaction submission failed")
	ErrConfirmation = errors.New("transaction confirmation failed")
)

// InsufficientFundsError reports the wallet balance against the amount the
// whole run needs.
type InsufficientFundsError struct {
	Balance  *big.Int
	Required *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s ETH, required %s ETH",
		FormatEther(e.Balance), FormatEther(e.Required))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// panicToError coerces a recovered value into an error.
func panicToError(recovered interface{}) error {
	switch v := recovered.(type) {
	case error:
		return v
	case string:
		return errors.New(v)
	default:
		return fmt.Errorf("recovered from panic: %v", v)
	}
}
