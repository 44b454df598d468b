package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const rateProviderABIJSON = `[
	{"constant":true,"inputs":[{"name":"quote","type":"address"}],"name":"getRateInQuoteSafe","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const solverABIJSON = `[
	{"constant":true,"inputs":[{"name":"assetOut","type":"address"},{"name":"amountOfShares","type":"uint256"},{"name":"discount","type":"uint16"}],"name":"previewAssetsOut","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"assetOut","type":"address"},{"name":"amountOfShares","type":"uint128"},{"name":"discount","type":"uint16"},{"name":"secondsToDeadline","type":"uint24"}],"name":"requestOnChainWithdraw","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[{"components":[{"name":"nonce","type":"uint96"},{"name":"user","type":"address"},{"name":"assetOut","type":"address"},{"name":"amountOfShares","type":"uint128"},{"name":"amountOfAssets","type":"uint128"},{"name":"creationTime","type":"uint40"},{"name":"secondsToMaturity","type":"uint24"},{"name":"secondsToDeadline","type":"uint24"}],"name":"request","type":"tuple"}],"name":"cancelOnChainWithdraw","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

var (
	erc20ABI        = mustParseABI(erc20ABIJSON)
	rateProviderABI = mustParseABI(rateProviderABIJSON)
	solverABI       = mustParseABI(solverABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// OnChainWithdraw is the solver's request struct, rebuilt verbatim from
// a ledger entry when cancelling. Field order matches the tuple layout.
type OnChainWithdraw struct {
	Nonce             *big.Int
	User              common.Address
	AssetOut          common.Address
	AmountOfShares    *big.Int
	AmountOfAssets    *big.Int
	CreationTime      *big.Int
	SecondsToMaturity *big.Int
	SecondsToDeadline *big.Int
}

// ApproveCalldata encodes approve(spender, amount) for the share token.
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// RequestWithdrawCalldata encodes requestOnChainWithdraw against the solver.
func RequestWithdrawCalldata(assetOut common.Address, amountOfShares *big.Int, discount uint16, secondsToDeadline uint32) ([]byte, error) {
	return solverABI.Pack("requestOnChainWithdraw",
		assetOut, amountOfShares, discount, new(big.Int).SetUint64(uint64(secondsToDeadline)))
}

// CancelWithdrawCalldata encodes cancelOnChainWithdraw with the exact
// struct the solver stored at request time.
func CancelWithdrawCalldata(req OnChainWithdraw) ([]byte, error) {
	return solverABI.Pack("cancelOnChainWithdraw", req)
}
