package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lucidlylabs/vaultgate/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateFormatsWithReferenceDecimals(t *testing.T) {
	reader := newFakeReader()
	// 1.05 in 6-decimal USDC terms, while shares are 18-decimal
	// elsewhere; the quote must use the reference asset's decimals.
	reader.rate = big.NewInt(1_050_000)
	reader.decimals[common.HexToAddress(testUSDCAddr).Hex()] = 6

	svc := NewRateService(reader, nil, fastAggregationConfig())
	quote := svc.Rate(context.Background(), twoNetworkStrategy())

	assert.False(t, quote.Degraded)
	assert.True(t, quote.Rate.Equal(decimal.RequireFromString("1.05")), "rate = %s", quote.Rate)
}

func TestRateFallsBackToOneWhenReadFails(t *testing.T) {
	reader := newFakeReader()
	reader.rateErr = errors.New("execution reverted")

	svc := NewRateService(reader, nil, fastAggregationConfig())
	quote := svc.Rate(context.Background(), twoNetworkStrategy())

	assert.True(t, quote.Degraded, "fallback must be labeled, never silent")
	assert.True(t, quote.Rate.Equal(decimal.NewFromInt(1)))
}

func TestRateCachesSuccessfulQuotes(t *testing.T) {
	reader := newFakeReader()
	reader.rate = big.NewInt(1_000_000)
	reader.decimals[common.HexToAddress(testUSDCAddr).Hex()] = 6

	cache := repository.NewMemoryCache()
	svc := NewRateService(reader, cache, fastAggregationConfig())
	strategy := twoNetworkStrategy()

	first := svc.Rate(context.Background(), strategy)
	require.False(t, first.Degraded)

	// A now-broken provider should still serve the cached quote.
	reader.mu.Lock()
	reader.rateErr = errors.New("provider down")
	reader.mu.Unlock()

	second := svc.Rate(context.Background(), strategy)
	assert.False(t, second.Degraded)
	assert.True(t, first.Rate.Equal(second.Rate))
}

func TestDegradedRateIsNotCached(t *testing.T) {
	reader := newFakeReader()
	reader.rateErr = errors.New("provider down")

	cache := repository.NewMemoryCache()
	svc := NewRateService(reader, cache, fastAggregationConfig())
	strategy := twoNetworkStrategy()

	first := svc.Rate(context.Background(), strategy)
	require.True(t, first.Degraded)

	reader.mu.Lock()
	reader.rateErr = nil
	reader.rate = big.NewInt(1_050_000)
	reader.decimals[common.HexToAddress(testUSDCAddr).Hex()] = 6
	reader.mu.Unlock()

	second := svc.Rate(context.Background(), strategy)
	assert.False(t, second.Degraded, "recovery must not be masked by a cached fallback")
}
