package ledger

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucidlylabs/vaultgate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const queuePayload = `{
	"PENDING": [
		{
			"id": "0xabc123",
			"nonce": 7,
			"user": "0x5555555555555555555555555555555555555555",
			"assetOut": "0x4444444444444444444444444444444444444444",
			"amountOfShares": "40000000",
			"amountOfAssets": "39900000",
			"creationTime": 1756700000,
			"secondsToMaturity": 86400,
			"secondsToDeadline": 432000,
			"transactionHash": "0xdeadbeef"
		}
	],
	"FULFILLED": [
		{
			"id": "0xold456",
			"nonce": 3,
			"user": "0x5555555555555555555555555555555555555555",
			"assetOut": "0x4444444444444444444444444444444444444444",
			"amountOfShares": "10000000",
			"amountOfAssets": "9990000",
			"creationTime": 1756000000,
			"secondsToMaturity": 86400,
			"secondsToDeadline": 432000,
			"transactionHash": "0xfeedface"
		}
	]
}`

func TestListParsesQueueData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/queueData", r.URL.Path)
		assert.Equal(t, "0xvault", r.URL.Query().Get("vaultAddress"))
		assert.Equal(t, "0xwallet", r.URL.Query().Get("userAddress"))
		fmt.Fprint(w, queuePayload)
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second)
	list := client.List(context.Background(), "0xvault", "0xwallet")

	assert.False(t, list.Degraded)
	require.Len(t, list.Pending, 1)
	require.Len(t, list.Fulfilled, 1)

	pending := list.Pending[0]
	assert.Equal(t, "0xabc123", pending.RequestID)
	assert.Equal(t, uint64(7), pending.Nonce)
	assert.Equal(t, "40000000", pending.AmountOfShares)
	assert.Equal(t, model.RequestPending, pending.Status)
	assert.Equal(t, model.RequestFulfilled, list.Fulfilled[0].Status)
}

func TestListFailsOpenOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second)
	list := client.List(context.Background(), "0xvault", "0xwallet")

	assert.True(t, list.Degraded, "index failures degrade, they do not block")
	assert.Empty(t, list.Pending)
	assert.Empty(t, list.Fulfilled)
}

func TestPendingEntryRequiresPriorFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, queuePayload)
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second)

	_, ok := client.PendingEntry("0xvault", "0xwallet", "0xabc123")
	assert.False(t, ok, "nothing fetched yet means nothing cancellable")

	client.List(context.Background(), "0xvault", "0xwallet")

	entry, ok := client.PendingEntry("0xvault", "0xwallet", "0xABC123")
	require.True(t, ok, "lookup is case-insensitive on the request id")
	assert.Equal(t, "0xabc123", entry.RequestID)

	_, ok = client.PendingEntry("0xvault", "0xwallet", "0xmissing")
	assert.False(t, ok)
}

func TestFailedRefetchKeepsLastGoodCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, queuePayload)
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second)
	client.List(context.Background(), "0xvault", "0xwallet")

	fail.Store(true)
	list := client.List(context.Background(), "0xvault", "0xwallet")
	assert.True(t, list.Degraded)

	_, ok := client.PendingEntry("0xvault", "0xwallet", "0xabc123")
	assert.True(t, ok, "a degraded fetch must not wipe the last good pending list")
}

func TestRefreshCacheHitsEndpoint(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cacheQueueData" {
			hits.Add(1)
		}
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second)
	client.RefreshCache(context.Background(), "0xvault", "0xwallet")
	assert.Equal(t, int32(1), hits.Load())
}
