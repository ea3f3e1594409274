package token

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankTransfer(t *testing.T) {
	ctx := context.Background()
	bank, err := NewBank("umusd")
	require.NoError(t, err)
	require.NoError(t, bank.Fund("alice", sdk.NewInt64Coin("uusdc", 100)))

	received, err := bank.TransferIn(ctx, "alice", "basket", sdk.NewInt64Coin("uusdc", 40))
	require.NoError(t, err)
	assert.Equal(t, "40", received.String())

	bal, err := bank.BalanceOf(ctx, "basket", "uusdc")
	require.NoError(t, err)
	assert.Equal(t, "40", bal.String())

	_, err = bank.TransferOut(ctx, "basket", "bob", sdk.NewInt64Coin("uusdc", 41))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = bank.TransferOut(ctx, "", "bob", sdk.NewInt64Coin("uusdc", 1))
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestBankTransferFee(t *testing.T) {
	ctx := context.Background()
	bank, err := NewBank("umusd")
	require.NoError(t, err)
	require.NoError(t, bank.SetTransferFee("uusdt", sdkmath.LegacyNewDecWithPrec(1, 2)))
	require.NoError(t, bank.Fund("alice", sdk.NewInt64Coin("uusdt", 1000)))

	received, err := bank.TransferIn(ctx, "alice", "basket", sdk.NewInt64Coin("uusdt", 500))
	require.NoError(t, err)
	assert.Equal(t, "495", received.String())
	assert.Equal(t, "995", bank.Supply("uusdt").String())
	assert.Equal(t, "500", bank.Balances("alice").AmountOf("uusdt").String())

	assert.ErrorIs(t, bank.SetTransferFee("uusdt", sdkmath.LegacyOneDec()), ErrInvalidCoin)
}

func TestBankPoolToken(t *testing.T) {
	ctx := context.Background()
	bank, err := NewBank("umusd")
	require.NoError(t, err)
	assert.Equal(t, "umusd", bank.PoolDenom())

	require.NoError(t, bank.MintPoolToken(ctx, "alice", sdkmath.NewInt(10)))
	assert.ErrorIs(t, bank.BurnPoolToken(ctx, "alice", sdkmath.NewInt(11)), ErrInsufficientBalance)
	require.NoError(t, bank.BurnPoolToken(ctx, "alice", sdkmath.NewInt(4)))
	assert.Equal(t, "6", bank.Supply("umusd").String())

	_, err = NewBank("1x")
	assert.ErrorIs(t, err, ErrInvalidCoin)
}
