package service

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lucidlylabs/vaultgate/internal/config"
)

// ContractReader is the read surface the services need from the chain
// layer. chain.Reader implements it; tests substitute fakes.
type ContractReader interface {
	BalanceOf(ctx context.Context, network string, token, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context, network string, token common.Address) (uint8, error)
	RateInQuoteSafe(ctx context.Context, network string, provider, quote common.Address) (*big.Int, error)
	PreviewAssetsOut(ctx context.Context, network string, solver, asset common.Address, shares *big.Int, discount uint16) (*big.Int, error)
}

// sortedNetworks returns a strategy's network names in a stable order
// so every aggregation pass walks them deterministically.
func sortedNetworks(s *config.StrategyConfig) []string {
	names := make([]string, 0, len(s.Networks))
	for name := range s.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// withdrawNetwork picks the network withdrawal transactions target: the
// first withdrawable network in sorted order.
func withdrawNetwork(s *config.StrategyConfig) string {
	if len(s.WithdrawableNetworks) == 0 {
		return ""
	}
	names := append([]string(nil), s.WithdrawableNetworks...)
	sort.Strings(names)
	return names[0]
}
