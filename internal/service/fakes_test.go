package service

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lucidlylabs/vaultgate/internal/config"
)

// fakeReader serves canned balances per network and decimals per token.
type fakeReader struct {
	mu sync.Mutex

	balances    map[string]*big.Int // network -> share balance
	balanceErrs map[string]error    // network -> forced error
	zeroTokens  map[string]bool     // token address -> always zero
	decimals    map[string]uint8    // token address (checksummed hex) -> decimals
	rate        *big.Int
	rateErr     error
	preview     *big.Int
	previewErr  error

	balanceCalls int
	previewCalls int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		balances:    make(map[string]*big.Int),
		balanceErrs: make(map[string]error),
		zeroTokens:  make(map[string]bool),
		decimals:    make(map[string]uint8),
	}
}

func (r *fakeReader) BalanceOf(_ context.Context, network string, token, _ common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balanceCalls++
	if err, ok := r.balanceErrs[network]; ok {
		return nil, err
	}
	if r.zeroTokens[addrKey(token)] {
		return big.NewInt(0), nil
	}
	if bal, ok := r.balances[network]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (r *fakeReader) Decimals(_ context.Context, _ string, token common.Address) (uint8, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.decimals[addrKey(token)]; ok {
		return d, nil
	}
	return 18, nil
}

func (r *fakeReader) RateInQuoteSafe(_ context.Context, _ string, _, _ common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rateErr != nil {
		return nil, r.rateErr
	}
	return new(big.Int).Set(r.rate), nil
}

func (r *fakeReader) PreviewAssetsOut(_ context.Context, _ string, _, _ common.Address, _ *big.Int, _ uint16) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.previewCalls++
	if r.previewErr != nil {
		return nil, r.previewErr
	}
	if r.preview == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(r.preview), nil
}

func addrKey(a common.Address) string {
	return a.Hex()
}

const (
	testVaultAddr    = "0x1111111111111111111111111111111111111111"
	testSolverAddr   = "0x2222222222222222222222222222222222222222"
	testProviderAddr = "0x3333333333333333333333333333333333333333"
	testUSDCAddr     = "0x4444444444444444444444444444444444444444"
	testWalletAddr   = "0x5555555555555555555555555555555555555555"
)

// twoNetworkStrategy mirrors the common deployment: shares on base and
// ethereum, redemption only on ethereum.
func twoNetworkStrategy() *config.StrategyConfig {
	return &config.StrategyConfig{
		ID:                   "usd-prime",
		SolverAddress:        testSolverAddr,
		RateProviderAddress:  testProviderAddr,
		ReferenceAsset:       testUSDCAddr,
		ShareDecimals:        6,
		WithdrawableNetworks: []string{"ethereum"},
		Networks: map[string]config.NetworkConfig{
			"base": {
				ChainID:           8453,
				RPCEndpoints:      []string{"http://localhost:0"},
				VaultShareAddress: testVaultAddr,
			},
			"ethereum": {
				ChainID:           1,
				RPCEndpoints:      []string{"http://localhost:0"},
				VaultShareAddress: testVaultAddr,
			},
		},
	}
}

func fastAggregationConfig() config.AggregationConfig {
	return config.AggregationConfig{
		NetworkIntervalMs:  1,
		StrategyIntervalMs: 1,
		RateLimitBackoffMs: 1,
		SnapshotTTLSeconds: 60,
		RateTTLSeconds:     60,
	}
}
