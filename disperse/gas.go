package disperse

import (
	"context"
	"fmt"
	"math"
)

// The working gas limit is the raw estimate scaled by 12/10, rounded up.
const (
	gasMarginNumerator   = 12
	gasMarginDenominator = 10
)

// GasEstimator turns the chain's raw estimate into a gas limit with margin.
type GasEstimator struct {
	client ChainClient
}

func NewGasEstimator(client ChainClient) *GasEstimator {
	return &GasEstimator{client: client}
}

// Estimate returns the margin-adjusted gas limit for call. Any error is an
// ErrEstimation and is not retried here.
func (g *GasEstimator) Estimate(ctx context.Context, call DisperseCall) (uint64, error) {
	raw, err := g.client.EstimateDisperseGas(ctx, call)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEstimation, err)
	}
	return ApplyGasMargin(raw), nil
}

// ApplyGasMargin returns ceil(raw*12/10), saturating at MaxUint64.
func ApplyGasMargin(raw uint64) uint64 {
	if raw > math.MaxUint64/gasMarginNumerator {
		return math.MaxUint64
	}
	scaled := raw * gasMarginNumerator
	limit := scaled / gasMarginDenominator
	if scaled%gasMarginDenominator != 0 {
		limit++
	}
	return limit
}
