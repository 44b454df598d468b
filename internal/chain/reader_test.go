package chain

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paddedHex(v *big.Int) string {
	return fmt.Sprintf("0x%064x", v)
}

func newTestReader(t *testing.T, result string) *Reader {
	t.Helper()
	srv, _ := rpcServer(t, result)
	pool := NewPool(time.Second)
	t.Cleanup(pool.Close)
	pool.AddNetwork("ethereum", []string{srv.URL})
	return NewReader(pool)
}

func TestBalanceOfDecodesUint256(t *testing.T) {
	want := big.NewInt(140_000_000)
	reader := newTestReader(t, paddedHex(want))

	got, err := reader.BalanceOf(context.Background(), "ethereum",
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x5555555555555555555555555555555555555555"))
	require.NoError(t, err)
	assert.Zero(t, want.Cmp(got))
}

func TestDecimalsDecodesUint8(t *testing.T) {
	reader := newTestReader(t, paddedHex(big.NewInt(6)))

	got, err := reader.Decimals(context.Background(), "ethereum",
		common.HexToAddress("0x4444444444444444444444444444444444444444"))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), got)
}

func TestRateInQuoteSafeDecodesUint256(t *testing.T) {
	want := big.NewInt(1_050_000)
	reader := newTestReader(t, paddedHex(want))

	got, err := reader.RateInQuoteSafe(context.Background(), "ethereum",
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
		common.HexToAddress("0x4444444444444444444444444444444444444444"))
	require.NoError(t, err)
	assert.Zero(t, want.Cmp(got))
}

func TestPreviewAssetsOutDecodesUint256(t *testing.T) {
	want := big.NewInt(39_900_000)
	reader := newTestReader(t, paddedHex(want))

	got, err := reader.PreviewAssetsOut(context.Background(), "ethereum",
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x4444444444444444444444444444444444444444"),
		big.NewInt(40_000_000), 0)
	require.NoError(t, err)
	assert.Zero(t, want.Cmp(got))
}
