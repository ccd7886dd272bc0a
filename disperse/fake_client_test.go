package disperse

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeClient is an in-memory ChainClient. Per-call failures are keyed by the
// 0-based call number of the method.
type fakeClient struct {
	mu sync.Mutex

	from     common.Address
	balance  *big.Int
	gasPrice *big.Int
	rawGas   uint64

	estimateErrs map[int]error
	sendErrs     map[int]error
	waitErrs     map[int]error
	reverted     map[int]bool
	panicOnSend  bool
	onWait       func()

	balanceCalls  int
	estimateCalls int
	sendCalls     int
	waitCalls     int
	sent          []DisperseCall
	quotes        []GasQuote
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		from:         common.HexToAddress("0x8f8E2d6cF621f30e9a11309D6A56A876281Fd534"),
		balance:      new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil),
		gasPrice:     big.NewInt(1_000_000_000),
		rawGas:       100_000,
		estimateErrs: map[int]error{},
		sendErrs:     map[int]error{},
		waitErrs:     map[int]error{},
		reverted:     map[int]bool{},
	}
}

func (f *fakeClient) From() common.Address { return f.from }

func (f *fakeClient) BalanceAt(_ context.Context, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeClient) EstimateDisperseGas(_ context.Context, _ DisperseCall) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.estimateCalls
	f.estimateCalls++
	if err := f.estimateErrs[n]; err != nil {
		return 0, err
	}
	return f.rawGas, nil
}

func (f *fakeClient) SendDisperse(_ context.Context, call DisperseCall, quote GasQuote) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnSend {
		panic("send exploded")
	}
	n := f.sendCalls
	f.sendCalls++
	if err := f.sendErrs[n]; err != nil {
		return nil, err
	}
	f.sent = append(f.sent, call)
	f.quotes = append(f.quotes, quote)
	to := common.HexToAddress("0xD152f549545093347A162Dce210e7293f1452150")
	return types.NewTx(&types.LegacyTx{
		Nonce:    uint64(n),
		To:       &to,
		Value:    call.Value,
		Gas:      quote.GasLimit,
		GasPrice: quote.GasPrice,
	}), nil
}

func (f *fakeClient) WaitMined(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.waitCalls
	f.waitCalls++
	if f.onWait != nil {
		f.onWait()
	}
	if err := f.waitErrs[n]; err != nil {
		return nil, err
	}
	status := types.ReceiptStatusSuccessful
	if f.reverted[n] {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(1000 + n)),
		GasUsed:     tx.Gas() - 1,
	}, nil
}

// memoryRecords collects outcomes synchronously.
type memoryRecords struct {
	outcomes []BatchOutcome
}

func (m *memoryRecords) Record(o BatchOutcome) { m.outcomes = append(m.outcomes, o) }

func (m *memoryRecords) successes() []*Success {
	var out []*Success
	for _, o := range m.outcomes {
		if s, ok := o.(*Success); ok {
			out = append(out, s)
		}
	}
	return out
}

func (m *memoryRecords) failures() []*Failure {
	var out []*Failure
	for _, o := range m.outcomes {
		if f, ok := o.(*Failure); ok {
			out = append(out, f)
		}
	}
	return out
}

// recordingSleeper captures requested pauses without sleeping.
type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func makeRecipients(n int) []common.Address {
	out := make([]common.Address, n)
	for i := range out {
		out[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}
	return out
}

var errRPC = errors.New("rpc unavailable")
