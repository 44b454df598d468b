package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lucidlylabs/vaultgate/internal/chain"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/ledger"
	"github.com/lucidlylabs/vaultgate/internal/model"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
)

// Canceller builds and submits cancel transactions for pending
// withdrawal requests. It works purely from previously fetched ledger
// entries; it never invents cancellation data the index has not served.
type Canceller struct {
	ledger       *ledger.Client
	sender       chain.TxSender
	waiter       chain.ReceiptWaiter
	recheckDelay time.Duration
}

func NewCanceller(ledgerClient *ledger.Client, sender chain.TxSender, waiter chain.ReceiptWaiter, cfg config.WithdrawConfig) *Canceller {
	delay := time.Duration(cfg.LedgerRecheckDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Canceller{
		ledger:       ledgerClient,
		sender:       sender,
		waiter:       waiter,
		recheckDelay: delay,
	}
}

// Cancel looks the request up in the last-fetched pending list,
// rebuilds the solver's on-chain struct from the stored ledger fields
// and submits the cancel transaction. Completion is only claimed once a
// ledger re-fetch no longer lists the request as pending.
func (c *Canceller) Cancel(ctx context.Context, strategy *config.StrategyConfig, wallet, requestID string) (*model.CancelResult, error) {
	network := withdrawNetwork(strategy)
	if network == "" {
		return nil, apperrors.New(apperrors.ErrInvalidConfig,
			fmt.Sprintf("strategy %q has no withdrawable network", strategy.ID), nil)
	}
	vault := strategy.Networks[network].VaultShareAddress

	entry, ok := c.ledger.PendingEntry(vault, wallet, requestID)
	if !ok {
		return nil, apperrors.New(apperrors.ErrRequestNotFound,
			fmt.Sprintf("request %q is not in the last-fetched pending list", requestID), nil)
	}

	active := c.sender.ActiveNetwork()
	if active != network {
		return nil, apperrors.New(apperrors.ErrWrongNetwork,
			fmt.Sprintf("wallet is on network %q, cancellation targets %q", active, network), nil)
	}

	onchain, err := rebuildRequest(entry)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	calldata, err := chain.CancelWithdrawCalldata(onchain)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}

	solver := common.HexToAddress(strategy.SolverAddress)
	txHash, err := c.sender.SendTransaction(ctx, network, solver, calldata)
	if err != nil {
		return nil, submissionError(err)
	}
	if err := c.waiter.WaitMined(ctx, network, txHash); err != nil {
		return nil, submissionError(err)
	}

	result := &model.CancelResult{RequestID: requestID, TxHash: txHash.Hex()}

	// The index lags the chain; give it a beat before asking again.
	timer := time.NewTimer(c.recheckDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return result, nil
	case <-timer.C:
	}

	refreshed := c.ledger.List(ctx, vault, wallet)
	result.Confirmed = !refreshed.Degraded && !containsRequest(refreshed.Pending, requestID)
	if !result.Confirmed {
		logger.Warn("cancel submitted but request still listed as pending",
			"request", requestID, "tx", result.TxHash)
	}
	return result, nil
}

// rebuildRequest maps a ledger entry back onto the solver's struct
// field for field; the cancel call must carry it verbatim or the hash
// lookup on-chain misses.
func rebuildRequest(entry model.LedgerEntry) (chain.OnChainWithdraw, error) {
	shares, ok := new(big.Int).SetString(entry.AmountOfShares, 10)
	if !ok {
		return chain.OnChainWithdraw{}, fmt.Errorf("unparseable amountOfShares %q", entry.AmountOfShares)
	}
	assets, ok := new(big.Int).SetString(entry.AmountOfAssets, 10)
	if !ok {
		return chain.OnChainWithdraw{}, fmt.Errorf("unparseable amountOfAssets %q", entry.AmountOfAssets)
	}
	return chain.OnChainWithdraw{
		Nonce:             new(big.Int).SetUint64(entry.Nonce),
		User:              common.HexToAddress(entry.User),
		AssetOut:          common.HexToAddress(entry.AssetOut),
		AmountOfShares:    shares,
		AmountOfAssets:    assets,
		CreationTime:      new(big.Int).SetUint64(entry.CreationTime),
		SecondsToMaturity: new(big.Int).SetUint64(uint64(entry.SecondsToMaturity)),
		SecondsToDeadline: new(big.Int).SetUint64(uint64(entry.SecondsToDeadline)),
	}, nil
}

func containsRequest(entries []model.LedgerEntry, requestID string) bool {
	for _, e := range entries {
		if strings.EqualFold(e.RequestID, requestID) {
			return true
		}
	}
	return false
}
