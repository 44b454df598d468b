package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lucidlylabs/vaultgate/internal/model"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
)

// Client talks to the off-chain withdrawal request index. It is a
// single source with no fallback pool; a fetch failure degrades to
// empty lists so the UI is never blocked on the index.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.RWMutex
	pending map[string][]model.LedgerEntry
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		pending: make(map[string][]model.LedgerEntry),
	}
}

type wireEntry struct {
	ID                string `json:"id"`
	Nonce             uint64 `json:"nonce"`
	User              string `json:"user"`
	AssetOut          string `json:"assetOut"`
	AmountOfShares    string `json:"amountOfShares"`
	AmountOfAssets    string `json:"amountOfAssets"`
	CreationTime      uint64 `json:"creationTime"`
	SecondsToMaturity uint32 `json:"secondsToMaturity"`
	SecondsToDeadline uint32 `json:"secondsToDeadline"`
	TransactionHash   string `json:"transactionHash"`
}

type queueResponse struct {
	Pending   []wireEntry `json:"PENDING"`
	Fulfilled []wireEntry `json:"FULFILLED"`
}

// List fetches pending and fulfilled requests for a wallet+vault pair.
// On any fetch or decode failure it returns empty lists with Degraded
// set instead of an error; the last-fetched pending cache is only
// replaced on a successful fetch.
func (c *Client) List(ctx context.Context, vault, wallet string) model.RequestList {
	q := url.Values{}
	q.Set("vaultAddress", vault)
	q.Set("userAddress", wallet)
	endpoint := c.baseURL + "/queueData?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.RequestList{Degraded: true}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("request ledger fetch failed", "vault", vault, "wallet", wallet, "error", err)
		return model.RequestList{Degraded: true}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Warn("request ledger returned non-200", "vault", vault, "status", resp.StatusCode)
		return model.RequestList{Degraded: true}
	}

	var decoded queueResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		logger.Warn("request ledger decode failed", "vault", vault, "error", err)
		return model.RequestList{Degraded: true}
	}

	out := model.RequestList{
		Pending:   convertEntries(decoded.Pending, model.RequestPending),
		Fulfilled: convertEntries(decoded.Fulfilled, model.RequestFulfilled),
	}

	c.mu.Lock()
	c.pending[cacheKey(vault, wallet)] = out.Pending
	c.mu.Unlock()

	return out
}

// PendingEntry looks a request up in the last successfully fetched
// pending list. Cancellation must never invent data the ledger has not
// served, so a miss here means the caller has to re-fetch first.
func (c *Client) PendingEntry(vault, wallet, requestID string) (model.LedgerEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.pending[cacheKey(vault, wallet)] {
		if strings.EqualFold(e.RequestID, requestID) {
			return e, true
		}
	}
	return model.LedgerEntry{}, false
}

// RefreshCache pokes the index's cache-refresh endpoint. Fire and
// forget: errors are logged and swallowed.
func (c *Client) RefreshCache(ctx context.Context, vault, wallet string) {
	q := url.Values{}
	q.Set("vaultAddress", vault)
	q.Set("userAddress", wallet)
	endpoint := c.baseURL + "/cacheQueueData?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debug("ledger cache refresh failed", "vault", vault, "error", err)
		return
	}
	resp.Body.Close()
}

func convertEntries(entries []wireEntry, status model.RequestStatus) []model.LedgerEntry {
	out := make([]model.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.LedgerEntry{
			RequestID:         e.ID,
			Nonce:             e.Nonce,
			User:              e.User,
			AssetOut:          e.AssetOut,
			AmountOfShares:    e.AmountOfShares,
			AmountOfAssets:    e.AmountOfAssets,
			CreationTime:      e.CreationTime,
			SecondsToMaturity: e.SecondsToMaturity,
			SecondsToDeadline: e.SecondsToDeadline,
			TxHash:            e.TransactionHash,
			Status:            status,
		})
	}
	return out
}

func cacheKey(vault, wallet string) string {
	return fmt.Sprintf("%s:%s", strings.ToLower(vault), strings.ToLower(wallet))
}
