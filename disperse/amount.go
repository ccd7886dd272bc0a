package disperse

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// EtherDecimals is the exponent between ether and wei.
	EtherDecimals = 18
	gweiDecimals  = 9
)

// TransferPlan is the value movement of one batch. All amounts are in wei.
type TransferPlan struct {
	Recipients         []common.Address
	AmountPerRecipient *uint256.Int
	TotalValue         *uint256.Int
}

// NewTransferPlan computes the plan for batch. The caller guarantees that
// amount*len(batch) fits in 256 bits, which TotalRequired checks for the
// whole run.
func NewTransferPlan(batch Batch, amount *uint256.Int) TransferPlan {
	total := new(uint256.Int).Mul(amount, uint256.NewInt(uint64(batch.Len())))
	return TransferPlan{
		Recipients:         batch.Recipients,
		AmountPerRecipient: amount.Clone(),
		TotalValue:         total,
	}
}

// Values returns one amount per recipient as required by the contract call.
func (p TransferPlan) Values() []*big.Int {
	values := make([]*big.Int, len(p.Recipients))
	for i := range values {
		values[i] = p.AmountPerRecipient.ToBig()
	}
	return values
}

// Call builds the contract call for the plan.
func (p TransferPlan) Call() DisperseCall {
	return DisperseCall{
		Recipients: p.Recipients,
		Values:     p.Values(),
		Value:      p.TotalValue.ToBig(),
	}
}

// TotalRequired is amount*count, or a config error if it overflows 256 bits.
func TotalRequired(amount *uint256.Int, count int) (*uint256.Int, error) {
	if count < 0 {
		return nil, configErrorf("negative recipient count %d", count)
	}
	total, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(uint64(count)))
	if overflow {
		return nil, configErrorf("amount %s ETH x %d recipients overflows uint256", FormatEther(amount.ToBig()), count)
	}
	return total, nil
}

// ParseAmount converts a decimal ether string such as "0.00000065" into wei.
// The conversion is exact: more than 18 fractional digits is rejected rather
// than rounded.
func ParseAmount(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, configErrorf("invalid amount %q: %v", s, err)
	}
	wei := d.Shift(EtherDecimals)
	if !wei.IsInteger() {
		return nil, configErrorf("amount %q has more than %d decimal places", s, EtherDecimals)
	}
	if wei.Sign() <= 0 {
		return nil, configErrorf("amount %q must be greater than 0", s)
	}
	amount, overflow := uint256.FromBig(wei.BigInt())
	if overflow {
		return nil, configErrorf("amount %q overflows uint256", s)
	}
	return amount, nil
}

// FormatEther renders wei as a decimal ether string.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}

// FormatGwei renders wei as a decimal gwei string.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -gweiDecimals).String()
}
