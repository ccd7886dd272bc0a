package chain

import (
	"context"
	"math/big"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/disperser/disperse"
)

// RetryableClient retries the read-only calls of a wrapped client and
// returns the last error. Estimation, submission and receipt waits pass
// straight through: their failure is a batch failure.
type RetryableClient struct {
	wrapped disperse.ChainClient

	attempts retry.Option
	delay    retry.Option
	log      log.Logger
}

var _ disperse.ChainClient = (*RetryableClient)(nil)

func NewRetryableClient(wrapped disperse.ChainClient, attempts uint, delay time.Duration, logger log.Logger) *RetryableClient {
	if attempts == 0 {
		attempts = 1
	}
	return &RetryableClient{
		wrapped:  wrapped,
		attempts: retry.Attempts(attempts),
		delay:    retry.Delay(delay),
		log:      logger,
	}
}

func (r *RetryableClient) options(ctx context.Context, method string) []retry.Option {
	return []retry.Option{
		r.attempts,
		r.delay,
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.log.Warn("Retrying RPC call", "method", method, "attempt", n+1, "err", err)
		}),
	}
}

func (r *RetryableClient) From() common.Address {
	return r.wrapped.From()
}

func (r *RetryableClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return retry.DoWithData(func() (*big.Int, error) {
		return r.wrapped.BalanceAt(ctx, account)
	}, r.options(ctx, "eth_getBalance")...)
}

func (r *RetryableClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return retry.DoWithData(func() (*big.Int, error) {
		return r.wrapped.SuggestGasPrice(ctx)
	}, r.options(ctx, "eth_gasPrice")...)
}

func (r *RetryableClient) EstimateDisperseGas(ctx context.Context, call disperse.DisperseCall) (uint64, error) {
	return r.wrapped.EstimateDisperseGas(ctx, call)
}

func (r *RetryableClient) SendDisperse(ctx context.Context, call disperse.DisperseCall, quote disperse.GasQuote) (*types.Transaction, error) {
	return r.wrapped.SendDisperse(ctx, call, quote)
}

func (r *RetryableClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return r.wrapped.WaitMined(ctx, tx)
}
