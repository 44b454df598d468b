package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/model"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
	"github.com/lucidlylabs/vaultgate/internal/pkg/metrics"
	"github.com/lucidlylabs/vaultgate/internal/repository"
	"github.com/shopspring/decimal"
)

// RateService reads the shares-to-reference-asset quote from the
// strategy's rate provider. A failed read degrades to a labeled 1.0
// fallback; the caller can render the label, never a silently wrong
// number.
type RateService struct {
	reader ContractReader
	cache  repository.Cache
	ttl    time.Duration
}

func NewRateService(reader ContractReader, cache repository.Cache, cfg config.AggregationConfig) *RateService {
	ttl := time.Duration(cfg.RateTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &RateService{reader: reader, cache: cache, ttl: ttl}
}

func (s *RateService) Rate(ctx context.Context, strategy *config.StrategyConfig) model.ExchangeRate {
	key := fmt.Sprintf("rate:%s", strategy.ID)
	var cached model.ExchangeRate
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return cached
	}

	quote, err := s.fetch(ctx, strategy)
	if err != nil {
		metrics.RateFallbacks.Inc()
		logger.Warn("exchange rate read failed, falling back to 1.0",
			"strategy", strategy.ID, "error", err)
		return model.ExchangeRate{
			StrategyID: strategy.ID,
			Rate:       decimal.NewFromInt(1),
			Degraded:   true,
			FetchedAt:  time.Now().UTC(),
		}
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, quote, s.ttl)
	}
	return quote
}

func (s *RateService) fetch(ctx context.Context, strategy *config.StrategyConfig) (model.ExchangeRate, error) {
	network := withdrawNetwork(strategy)
	if network == "" {
		network = sortedNetworks(strategy)[0]
	}
	provider := common.HexToAddress(strategy.RateProviderAddress)
	reference := common.HexToAddress(strategy.ReferenceAsset)

	raw, err := s.reader.RateInQuoteSafe(ctx, network, provider, reference)
	if err != nil {
		return model.ExchangeRate{}, err
	}
	// The rate is denominated in the reference asset, so it is shifted
	// by that token's decimals, not the share decimals.
	refDecimals, err := s.reader.Decimals(ctx, network, reference)
	if err != nil {
		return model.ExchangeRate{}, err
	}

	return model.ExchangeRate{
		StrategyID: strategy.ID,
		Rate:       decimal.NewFromBigInt(raw, -int32(refDecimals)),
		FetchedAt:  time.Now().UTC(),
	}, nil
}
