package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/model"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
	"github.com/lucidlylabs/vaultgate/internal/pkg/metrics"
	"github.com/lucidlylabs/vaultgate/internal/repository"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Aggregator sums a wallet's vault share balances across a strategy's
// networks. Network reads within one pass are sequential and paced with
// token-bucket limiters so stacked public endpoints are not hammered.
type Aggregator struct {
	reader ContractReader
	rates  *RateService
	cache  repository.Cache

	networkLimiter  *rate.Limiter
	strategyLimiter *rate.Limiter
	backoff         time.Duration
	snapshotTTL     time.Duration
}

func NewAggregator(reader ContractReader, rates *RateService, cache repository.Cache, cfg config.AggregationConfig) *Aggregator {
	networkEvery := time.Duration(cfg.NetworkIntervalMs) * time.Millisecond
	if networkEvery <= 0 {
		networkEvery = 100 * time.Millisecond
	}
	strategyEvery := time.Duration(cfg.StrategyIntervalMs) * time.Millisecond
	if strategyEvery <= 0 {
		strategyEvery = 500 * time.Millisecond
	}
	backoff := time.Duration(cfg.RateLimitBackoffMs) * time.Millisecond
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	ttl := time.Duration(cfg.SnapshotTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Aggregator{
		reader:          reader,
		rates:           rates,
		cache:           cache,
		networkLimiter:  rate.NewLimiter(rate.Every(networkEvery), 1),
		strategyLimiter: rate.NewLimiter(rate.Every(strategyEvery), 1),
		backoff:         backoff,
		snapshotTTL:     ttl,
	}
}

// Aggregate runs one balance pass for a wallet over every network of
// the strategy. A single network failing contributes zero and is
// skipped; only total silence from every network is an error.
func (a *Aggregator) Aggregate(ctx context.Context, strategy *config.StrategyConfig, wallet common.Address) (*model.AggregatedBalance, error) {
	key := snapshotKey(strategy.ID, wallet)
	var cached model.AggregatedBalance
	if a.cache != nil && a.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	start := time.Now()
	total := decimal.Zero
	withdrawable := decimal.Zero
	balances := make([]model.NetworkBalance, 0, len(strategy.Networks))
	failed := 0

	for _, network := range sortedNetworks(strategy) {
		if err := a.networkLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		shares, err := a.readShares(ctx, strategy, network, wallet)
		if err != nil {
			failed++
			logger.Warn("network balance read failed, contributing zero",
				"strategy", strategy.ID, "network", network, "wallet", wallet.Hex(), "error", err)
			if apperrors.Is(err, apperrors.ErrRateLimited) {
				a.rateLimitBackoff(ctx)
			}
			continue
		}
		balances = append(balances, model.NetworkBalance{Network: network, Shares: shares})
		total = total.Add(shares)
		if strategy.IsWithdrawable(network) {
			withdrawable = withdrawable.Add(shares)
		}
	}

	if failed == len(strategy.Networks) {
		return nil, apperrors.New(apperrors.ErrEndpointUnavailable,
			fmt.Sprintf("every network failed for strategy %q", strategy.ID), nil)
	}

	quote := a.rates.Rate(ctx, strategy)
	result := &model.AggregatedBalance{
		StrategyID:   strategy.ID,
		Total:        total,
		Withdrawable: withdrawable,
		Rate:         quote.Rate,
		DegradedRate: quote.Degraded,
		USDValue:     total.Mul(quote.Rate),
		Networks:     balances,
		FetchedAt:    time.Now().UTC(),
	}

	metrics.AggregationSeconds.WithLabelValues(strategy.ID).Observe(time.Since(start).Seconds())
	if a.cache != nil {
		a.cache.Set(ctx, key, result, a.snapshotTTL)
	}
	return result, nil
}

// Portfolio aggregates every configured strategy the wallet holds.
// Zero-balance strategies are filtered out of the result; that is a
// display decision, not an error.
func (a *Aggregator) Portfolio(ctx context.Context, strategies []config.StrategyConfig, wallet common.Address) (*model.Portfolio, error) {
	out := &model.Portfolio{Wallet: wallet.Hex(), TotalUSD: decimal.Zero}
	failures := 0

	for i := range strategies {
		if i > 0 {
			if err := a.strategyLimiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		agg, err := a.Aggregate(ctx, &strategies[i], wallet)
		if err != nil {
			failures++
			logger.Warn("strategy aggregation failed", "strategy", strategies[i].ID, "error", err)
			continue
		}
		if agg.Total.IsZero() {
			continue
		}
		out.Strategies = append(out.Strategies, *agg)
		out.TotalUSD = out.TotalUSD.Add(agg.USDValue)
	}

	if len(strategies) > 0 && failures == len(strategies) {
		return nil, apperrors.New(apperrors.ErrEndpointUnavailable, "every strategy failed to aggregate", nil)
	}
	return out, nil
}

// Invalidate drops the cached snapshot after a confirmed withdrawal so
// the next read reflects the moved shares.
func (a *Aggregator) Invalidate(ctx context.Context, strategyID string, wallet common.Address) {
	if a.cache != nil {
		a.cache.Delete(ctx, snapshotKey(strategyID, wallet))
	}
}

func (a *Aggregator) readShares(ctx context.Context, strategy *config.StrategyConfig, network string, wallet common.Address) (decimal.Decimal, error) {
	token := common.HexToAddress(strategy.Networks[network].VaultShareAddress)
	raw, err := a.reader.BalanceOf(ctx, network, token, wallet)
	if err != nil {
		return decimal.Zero, err
	}
	decimals, err := a.reader.Decimals(ctx, network, token)
	if err != nil {
		// The balance itself was readable; fall back to the configured
		// share decimals rather than dropping the network.
		decimals = strategy.ShareDecimals
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)), nil
}

// rateLimitBackoff sleeps once after a throttled network before moving
// to the next one instead of aborting the whole pass.
func (a *Aggregator) rateLimitBackoff(ctx context.Context) {
	timer := time.NewTimer(a.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func snapshotKey(strategyID string, wallet common.Address) string {
	return fmt.Sprintf("agg:%s:%s", strategyID, strings.ToLower(wallet.Hex()))
}
