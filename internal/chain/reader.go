package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Reader exposes the typed read-only contract calls the engine needs.
// It is stateless; every call is one RPC round trip through the pool's
// endpoint fallback, no retries of its own.
type Reader struct {
	pool *Pool
}

func NewReader(pool *Pool) *Reader {
	return &Reader{pool: pool}
}

func (r *Reader) call(ctx context.Context, network string, to common.Address, data []byte) ([]byte, error) {
	var output []byte
	err := r.pool.Call(ctx, network, func(ctx context.Context, client *ethclient.Client) error {
		msg := ethereum.CallMsg{To: &to, Data: data}
		out, err := client.CallContract(ctx, msg, nil)
		if err != nil {
			return fmt.Errorf("eth_call failed: %w", err)
		}
		output = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

// BalanceOf returns the raw share balance of owner on the given token.
func (r *Reader) BalanceOf(ctx context.Context, network string, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	output, err := r.call(ctx, network, token, data)
	if err != nil {
		return nil, err
	}
	results, err := erc20ABI.Unpack("balanceOf", output)
	if err != nil {
		return nil, fmt.Errorf("failed to decode balanceOf result: %w", err)
	}
	return results[0].(*big.Int), nil
}

// Decimals returns the token's own decimals. Never assume a value here:
// share tokens and stable assets commonly differ (18 vs 6) and a wrong
// assumption shifts every displayed balance by orders of magnitude.
func (r *Reader) Decimals(ctx context.Context, network string, token common.Address) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	output, err := r.call(ctx, network, token, data)
	if err != nil {
		return 0, err
	}
	results, err := erc20ABI.Unpack("decimals", output)
	if err != nil {
		return 0, fmt.Errorf("failed to decode decimals result: %w", err)
	}
	return results[0].(uint8), nil
}

// RateInQuoteSafe reads the share price from the rate provider, quoted
// in the given reference asset.
func (r *Reader) RateInQuoteSafe(ctx context.Context, network string, provider, quote common.Address) (*big.Int, error) {
	data, err := rateProviderABI.Pack("getRateInQuoteSafe", quote)
	if err != nil {
		return nil, err
	}
	output, err := r.call(ctx, network, provider, data)
	if err != nil {
		return nil, err
	}
	results, err := rateProviderABI.Unpack("getRateInQuoteSafe", output)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getRateInQuoteSafe result: %w", err)
	}
	return results[0].(*big.Int), nil
}

// PreviewAssetsOut asks the solver what the given share amount would
// redeem for at the given discount.
func (r *Reader) PreviewAssetsOut(ctx context.Context, network string, solver, asset common.Address, shares *big.Int, discount uint16) (*big.Int, error) {
	data, err := solverABI.Pack("previewAssetsOut", asset, shares, discount)
	if err != nil {
		return nil, err
	}
	output, err := r.call(ctx, network, solver, data)
	if err != nil {
		return nil, err
	}
	results, err := solverABI.Unpack("previewAssetsOut", output)
	if err != nil {
		return nil, fmt.Errorf("failed to decode previewAssetsOut result: %w", err)
	}
	return results[0].(*big.Int), nil
}
