package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/ledger"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pendingQueuePayload = `{
	"PENDING": [
		{
			"id": "0xreq1",
			"nonce": 12,
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
	"FULFILLED": []
}`

const emptyQueuePayload = `{"PENDING": [], "FULFILLED": []}`

// queueServer serves the pending entry until fetch count passes the
// threshold, mimicking the index catching up after a mined cancel.
func queueServer(t *testing.T, emptyAfter int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/queueData" {
			return
		}
		if fetches.Add(1) > emptyAfter {
			fmt.Fprint(w, emptyQueuePayload)
			return
		}
		fmt.Fprint(w, pendingQueuePayload)
	}))
	t.Cleanup(srv.Close)
	return srv, &fetches
}

func testCancelConfig() config.WithdrawConfig {
	return config.WithdrawConfig{DeadlineSeconds: 432000, LedgerRecheckDelayMs: 1}
}

func TestCancelRequiresFetchedEntry(t *testing.T) {
	srv, _ := queueServer(t, 100)
	sender := &fakeSender{active: "ethereum"}
	ledgerClient := ledger.New(srv.URL, time.Second)
	canceller := NewCanceller(ledgerClient, sender, &fakeWaiter{}, testCancelConfig())

	_, err := canceller.Cancel(context.Background(), twoNetworkStrategy(), testWalletAddr, "0xreq1")
	require.Error(t, err, "the entry must have been fetched before it can be cancelled")
	assert.True(t, apperrors.Is(err, apperrors.ErrRequestNotFound))
	assert.Zero(t, sender.sentCount(), "no transaction without ledger data")
}

func TestCancelUnknownRequestID(t *testing.T) {
	srv, _ := queueServer(t, 100)
	sender := &fakeSender{active: "ethereum"}
	ledgerClient := ledger.New(srv.URL, time.Second)
	canceller := NewCanceller(ledgerClient, sender, &fakeWaiter{}, testCancelConfig())

	ledgerClient.List(context.Background(), testVaultAddr, testWalletAddr)

	_, err := canceller.Cancel(context.Background(), twoNetworkStrategy(), testWalletAddr, "0xnope")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrRequestNotFound))
	assert.Zero(t, sender.sentCount())
}

func TestCancelHappyPathConfirmsRemoval(t *testing.T) {
	// First fetch primes the cache; the re-fetch after the cancel tx
	// sees an empty pending list.
	srv, fetches := queueServer(t, 1)
	sender := &fakeSender{active: "ethereum"}
	ledgerClient := ledger.New(srv.URL, time.Second)
	canceller := NewCanceller(ledgerClient, sender, &fakeWaiter{}, testCancelConfig())

	ledgerClient.List(context.Background(), testVaultAddr, testWalletAddr)

	result, err := canceller.Cancel(context.Background(), twoNetworkStrategy(), testWalletAddr, "0xreq1")
	require.NoError(t, err)
	assert.True(t, result.Confirmed, "completion requires the entry gone from PENDING")
	assert.NotEmpty(t, result.TxHash)
	assert.Equal(t, 1, sender.sentCount())
	assert.GreaterOrEqual(t, fetches.Load(), int32(2), "cancel must re-fetch the ledger")
}

func TestCancelStillPendingIsNotConfirmed(t *testing.T) {
	srv, _ := queueServer(t, 100)
	sender := &fakeSender{active: "ethereum"}
	ledgerClient := ledger.New(srv.URL, time.Second)
	canceller := NewCanceller(ledgerClient, sender, &fakeWaiter{}, testCancelConfig())

	ledgerClient.List(context.Background(), testVaultAddr, testWalletAddr)

	result, err := canceller.Cancel(context.Background(), twoNetworkStrategy(), testWalletAddr, "0xreq1")
	require.NoError(t, err)
	assert.False(t, result.Confirmed, "a still-listed entry means the cancel is not complete")
}

func TestCancelRefusesWrongNetwork(t *testing.T) {
	srv, _ := queueServer(t, 100)
	sender := &fakeSender{active: "base"}
	ledgerClient := ledger.New(srv.URL, time.Second)
	canceller := NewCanceller(ledgerClient, sender, &fakeWaiter{}, testCancelConfig())

	ledgerClient.List(context.Background(), testVaultAddr, testWalletAddr)

	_, err := canceller.Cancel(context.Background(), twoNetworkStrategy(), testWalletAddr, "0xreq1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrWrongNetwork))
	assert.Zero(t, sender.sentCount())
}
