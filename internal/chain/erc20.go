package chain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// erc20ABIJSON covers the three ERC-20 functions the workflow touches.
const erc20ABIJSON = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var (
	erc20ABIOnce sync.Once
	erc20ABI     abi.ABI
	erc20ABIErr  error
)

func loadERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

func packBalanceOf(owner string) ([]byte, error) {
	parsed, err := loadERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("chain: parsing erc20 abi: %w", err)
	}
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("chain: invalid owner address %q", owner)
	}
	return parsed.Pack("balanceOf", common.HexToAddress(owner))
}

func packAllowance(owner, spender string) ([]byte, error) {
	parsed, err := loadERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("chain: parsing erc20 abi: %w", err)
	}
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("chain: invalid owner address %q", owner)
	}
	if !common.IsHexAddress(spender) {
		return nil, fmt.Errorf("chain: invalid spender address %q", spender)
	}
	return parsed.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
}

// ERC20ApproveData encodes calldata approving spender to move amount of the
// caller's tokens.
func ERC20ApproveData(spender string, amount *big.Int) ([]byte, error) {
	parsed, err := loadERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("chain: parsing erc20 abi: %w", err)
	}
	if !common.IsHexAddress(spender) {
		return nil, fmt.Errorf("chain: invalid spender address %q", spender)
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("chain: approve amount must be non-negative")
	}
	return parsed.Pack("approve", common.HexToAddress(spender), amount)
}

func unpackBigInt(method string, out []byte) (*big.Int, error) {
	parsed, err := loadERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("chain: parsing erc20 abi: %w", err)
	}
	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpacking %s result: %w", method, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("chain: %s returned %d values, want 1", method, len(vals))
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s returned %T, want *big.Int", method, vals[0])
	}
	return n, nil
}
