package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
)

// TxSender submits signed transactions on behalf of the wallet holder.
// Implementations that proxy to an external wallet surface a declined
// signature as USER_REJECTED.
type TxSender interface {
	Address() common.Address
	// ActiveNetwork is the network the wallet currently points at.
	// Submissions to any other network must be refused.
	ActiveNetwork() string
	SendTransaction(ctx context.Context, network string, to common.Address, calldata []byte) (common.Hash, error)
}

// NetworkSwitcher is implemented by senders whose active network can
// change at runtime. Senders without it stay on the configured network
// for the process lifetime.
type NetworkSwitcher interface {
	SwitchNetwork(network string)
}

// ReceiptWaiter blocks until a submitted transaction is mined. There is
// no engine-side timeout: a stuck transaction stays "confirming" until
// the network settles it or the caller abandons the flow.
type ReceiptWaiter interface {
	WaitMined(ctx context.Context, network string, txHash common.Hash) error
}

// KeySender signs with a locally held key and submits through the pool.
type KeySender struct {
	pool     *Pool
	key      *ecdsa.PrivateKey
	address  common.Address
	chainIDs map[string]int64

	mu     sync.RWMutex
	active string
}

func NewKeySender(pool *Pool, privateKeyHex string, chainIDs map[string]int64, activeNetwork string) (*KeySender, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet private key: %w", err)
	}
	return &KeySender{
		pool:     pool,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		chainIDs: chainIDs,
		active:   activeNetwork,
	}, nil
}

func (s *KeySender) Address() common.Address {
	return s.address
}

func (s *KeySender) ActiveNetwork() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SwitchNetwork records a wallet-side network change.
func (s *KeySender) SwitchNetwork(network string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = network
}

func (s *KeySender) SendTransaction(ctx context.Context, network string, to common.Address, calldata []byte) (common.Hash, error) {
	chainID, ok := s.chainIDs[network]
	if !ok {
		return common.Hash{}, apperrors.New(apperrors.ErrInvalidConfig,
			fmt.Sprintf("no chain id configured for network %q", network), nil)
	}

	var txHash common.Hash
	err := s.pool.Call(ctx, network, func(ctx context.Context, client *ethclient.Client) error {
		nonce, err := client.PendingNonceAt(ctx, s.address)
		if err != nil {
			return fmt.Errorf("failed to fetch pending nonce: %w", err)
		}
		gasPrice, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch gas price: %w", err)
		}
		gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
			From: s.address,
			To:   &to,
			Data: calldata,
		})
		if err != nil {
			return fmt.Errorf("gas estimation failed: %w", err)
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Gas:      gasLimit,
			GasPrice: gasPrice,
			Data:     calldata,
		})
		signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(chainID)), s.key)
		if err != nil {
			return fmt.Errorf("failed to sign transaction: %w", err)
		}
		if err := client.SendTransaction(ctx, signed); err != nil {
			return fmt.Errorf("failed to broadcast transaction: %w", err)
		}
		txHash = signed.Hash()
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	logger.Info("transaction submitted", "network", network, "tx", txHash.Hex(), "to", to.Hex())
	return txHash, nil
}

// Watcher polls for receipts through the pool.
type Watcher struct {
	pool *Pool
	// poll interval between receipt lookups
	interval time.Duration
}

func NewWatcher(pool *Pool) *Watcher {
	return &Watcher{pool: pool, interval: 2 * time.Second}
}

func (w *Watcher) WaitMined(ctx context.Context, network string, txHash common.Hash) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := w.pool.Call(ctx, network, func(ctx context.Context, client *ethclient.Client) error {
			r, err := client.TransactionReceipt(ctx, txHash)
			if err != nil {
				return err
			}
			receipt = r
			return nil
		})
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return apperrors.New(apperrors.ErrTransactionFailed,
					fmt.Sprintf("transaction %s reverted on-chain", txHash.Hex()), nil)
			}
			return nil
		}

		// Not mined yet (or endpoints flaked); keep polling.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
