package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(reader *fakeReader, cache repository.Cache) *Aggregator {
	rates := NewRateService(reader, cache, fastAggregationConfig())
	return NewAggregator(reader, rates, cache, fastAggregationConfig())
}

func TestAggregateSumsAcrossNetworks(t *testing.T) {
	reader := newFakeReader()
	// 100 shares on base, 40 on ethereum, 6 decimals.
	reader.balances["base"] = big.NewInt(100_000_000)
	reader.balances["ethereum"] = big.NewInt(40_000_000)
	reader.decimals[common.HexToAddress(testVaultAddr).Hex()] = 6
	reader.decimals[common.HexToAddress(testUSDCAddr).Hex()] = 6
	reader.rate = big.NewInt(1_000_000)

	agg := newTestAggregator(reader, nil)
	result, err := agg.Aggregate(context.Background(), twoNetworkStrategy(), common.HexToAddress(testWalletAddr))
	require.NoError(t, err)

	assert.True(t, result.Total.Equal(decimal.NewFromInt(140)), "total = %s", result.Total)
	assert.True(t, result.Withdrawable.Equal(decimal.NewFromInt(40)), "withdrawable = %s", result.Withdrawable)
	assert.True(t, result.Withdrawable.LessThanOrEqual(result.Total))
	assert.False(t, result.DegradedRate)
	assert.True(t, result.USDValue.Equal(decimal.NewFromInt(140)))
}

func TestAggregateSkipsFailedNetwork(t *testing.T) {
	reader := newFakeReader()
	reader.balances["ethereum"] = big.NewInt(40_000_000)
	reader.balanceErrs["base"] = errors.New("connection refused")
	reader.decimals[common.HexToAddress(testVaultAddr).Hex()] = 6
	reader.rate = big.NewInt(1_000_000)

	agg := newTestAggregator(reader, nil)
	result, err := agg.Aggregate(context.Background(), twoNetworkStrategy(), common.HexToAddress(testWalletAddr))
	require.NoError(t, err, "one dead network must not fail the pass")

	assert.True(t, result.Total.Equal(decimal.NewFromInt(40)))
	assert.True(t, result.Withdrawable.Equal(decimal.NewFromInt(40)))
	assert.Len(t, result.Networks, 1)
}

func TestAggregateFailsWhenEveryNetworkFails(t *testing.T) {
	reader := newFakeReader()
	reader.balanceErrs["base"] = errors.New("connection refused")
	reader.balanceErrs["ethereum"] = errors.New("connection refused")

	agg := newTestAggregator(reader, nil)
	_, err := agg.Aggregate(context.Background(), twoNetworkStrategy(), common.HexToAddress(testWalletAddr))
	require.Error(t, err, "total silence is a failure, not a zero balance")
	assert.True(t, apperrors.Is(err, apperrors.ErrEndpointUnavailable))
}

func TestAggregateContinuesAfterRateLimit(t *testing.T) {
	reader := newFakeReader()
	reader.balanceErrs["base"] = apperrors.New(apperrors.ErrRateLimited, "429 too many requests", nil)
	reader.balances["ethereum"] = big.NewInt(40_000_000)
	reader.decimals[common.HexToAddress(testVaultAddr).Hex()] = 6
	reader.rate = big.NewInt(1_000_000)

	agg := newTestAggregator(reader, nil)
	result, err := agg.Aggregate(context.Background(), twoNetworkStrategy(), common.HexToAddress(testWalletAddr))
	require.NoError(t, err)
	assert.True(t, result.Total.Equal(decimal.NewFromInt(40)))
}

func TestAggregateUsesFallbackRateWhenQuoteFails(t *testing.T) {
	reader := newFakeReader()
	reader.balances["base"] = big.NewInt(100_000_000)
	reader.balances["ethereum"] = big.NewInt(40_000_000)
	reader.decimals[common.HexToAddress(testVaultAddr).Hex()] = 6
	reader.rateErr = errors.New("execution reverted")

	agg := newTestAggregator(reader, nil)
	result, err := agg.Aggregate(context.Background(), twoNetworkStrategy(), common.HexToAddress(testWalletAddr))
	require.NoError(t, err, "a dead rate provider must not block the balance view")

	assert.True(t, result.DegradedRate, "the fallback must be labeled, never silent")
	assert.True(t, result.Rate.Equal(decimal.NewFromInt(1)))
	assert.True(t, result.USDValue.Equal(result.Total), "usd value priced at the 1.0 fallback")
}

func TestAggregateIsIdempotent(t *testing.T) {
	reader := newFakeReader()
	reader.balances["base"] = big.NewInt(100_000_000)
	reader.balances["ethereum"] = big.NewInt(40_000_000)
	reader.decimals[common.HexToAddress(testVaultAddr).Hex()] = 6
	reader.rate = big.NewInt(1_000_000)

	agg := newTestAggregator(reader, nil)
	wallet := common.HexToAddress(testWalletAddr)
	strategy := twoNetworkStrategy()

	first, err := agg.Aggregate(context.Background(), strategy, wallet)
	require.NoError(t, err)
	second, err := agg.Aggregate(context.Background(), strategy, wallet)
	require.NoError(t, err)

	assert.True(t, first.Total.Equal(second.Total))
	assert.True(t, first.Withdrawable.Equal(second.Withdrawable))
}

func TestAggregateServesCachedSnapshot(t *testing.T) {
	reader := newFakeReader()
	reader.balances["ethereum"] = big.NewInt(40_000_000)
	reader.balances["base"] = big.NewInt(100_000_000)
	reader.decimals[common.HexToAddress(testVaultAddr).Hex()] = 6
	reader.rate = big.NewInt(1_000_000)

	cache := repository.NewMemoryCache()
	agg := newTestAggregator(reader, cache)
	wallet := common.HexToAddress(testWalletAddr)
	strategy := twoNetworkStrategy()

	_, err := agg.Aggregate(context.Background(), strategy, wallet)
	require.NoError(t, err)
	callsAfterFirst := reader.balanceCalls

	_, err = agg.Aggregate(context.Background(), strategy, wallet)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, reader.balanceCalls, "second pass should be served from cache")

	agg.Invalidate(context.Background(), strategy.ID, wallet)
	_, err = agg.Aggregate(context.Background(), strategy, wallet)
	require.NoError(t, err)
	assert.Greater(t, reader.balanceCalls, callsAfterFirst, "invalidation must force a fresh pass")
}

func TestPortfolioFiltersZeroBalances(t *testing.T) {
	reader := newFakeReader()
	reader.balances["ethereum"] = big.NewInt(40_000_000)
	reader.decimals[common.HexToAddress(testVaultAddr).Hex()] = 6
	reader.rate = big.NewInt(1_000_000)

	emptyVault := "0x9999999999999999999999999999999999999999"
	empty := twoNetworkStrategy()
	empty.ID = "usd-empty"
	for name, n := range empty.Networks {
		n.VaultShareAddress = emptyVault
		empty.Networks[name] = n
	}
	reader.zeroTokens[common.HexToAddress(emptyVault).Hex()] = true

	held := twoNetworkStrategy()
	strategies := []config.StrategyConfig{*held, *empty}

	agg := newTestAggregator(reader, nil)
	portfolio, err := agg.Portfolio(context.Background(), strategies, common.HexToAddress(testWalletAddr))
	require.NoError(t, err)

	require.Len(t, portfolio.Strategies, 1, "zero-balance strategies are filtered, not errored")
	assert.Equal(t, held.ID, portfolio.Strategies[0].StrategyID)
}
