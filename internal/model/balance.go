package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// NetworkBalance is the share balance of one wallet on one network.
// Recomputed on every aggregation pass, never persisted.
type NetworkBalance struct {
	Network string          `json:"network"`
	Shares  decimal.Decimal `json:"shares"`
}

// AggregatedBalance is the result of one aggregation pass over all of a
// strategy's networks. Total always includes Withdrawable.
type AggregatedBalance struct {
	StrategyID   string           `json:"strategy_id"`
	Total        decimal.Decimal  `json:"total"`
	Withdrawable decimal.Decimal  `json:"withdrawable"`
	Rate         decimal.Decimal  `json:"rate"`
	DegradedRate bool             `json:"degraded_rate"`
	USDValue     decimal.Decimal  `json:"usd_value"`
	Networks     []NetworkBalance `json:"networks"`
	FetchedAt    time.Time        `json:"fetched_at"`
}

// Portfolio is the aggregate view across every configured strategy a
// wallet holds a non-zero balance in.
type Portfolio struct {
	Wallet     string              `json:"wallet"`
	Strategies []AggregatedBalance `json:"strategies"`
	TotalUSD   decimal.Decimal     `json:"total_usd"`
}

// ExchangeRate is a shares-per-reference-asset quote. Degraded means
// the on-chain read failed and the value is the 1.0 fallback.
type ExchangeRate struct {
	StrategyID string          `json:"strategy_id"`
	Rate       decimal.Decimal `json:"rate"`
	Degraded   bool            `json:"degraded"`
	FetchedAt  time.Time       `json:"fetched_at"`
}
