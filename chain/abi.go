package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const disperseMethod = "disperseEther"

// disperseABI is the subset of the Disperse contract used here.
const disperseABI = `[
	{"inputs":[{"name":"recipients","type":"address[]"},{"name":"values","type":"uint256[]"}],"name":"disperseEther","outputs":[],"stateMutability":"payable","type":"function"}
]`

// DisperseABI parses the disperseEther ABI.
func DisperseABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(disperseABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse Disperse ABI: %w", err)
	}
	return parsed, nil
}

// PackDisperse encodes disperseEther(recipients, values).
func PackDisperse(parsed abi.ABI, recipients []common.Address, values []*big.Int) ([]byte, error) {
	if len(recipients) != len(values) {
		return nil, fmt.Errorf("recipients and values differ in length: %d != %d", len(recipients), len(values))
	}
	data, err := parsed.Pack(disperseMethod, recipients, values)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", disperseMethod, err)
	}
	return data, nil
}
