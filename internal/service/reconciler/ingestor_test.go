package reconciler

import (
	"context"
	"testing"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/internal/testutil"
	"deposit-reconciler/pkg/errno"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	ing := NewIngestor(store.NewDepositStore(db))

	raw := transfer(model.NetworkBEP20, "0xdup", "0xwallet", "42.5", 100)

	created, first, err := ing.Ingest(ctx, raw)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.TxPending, first.Status)
	assert.Equal(t, int64(0), first.Confirmations)
	assert.Equal(t, "{}", first.RawPayload)

	created, second, err := ing.Ingest(ctx, raw)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&model.DepositTransaction{}).Where("tx_hash = ?", "0xdup").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestIngestRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	ing := NewIngestor(store.NewDepositStore(testutil.NewDB(t)))

	tests := []struct {
		name string
		hash string
		amt  decimal.Decimal
	}{
		{"empty hash", "", decimal.NewFromInt(1)},
		{"zero amount", "0x1", decimal.Zero},
		{"negative amount", "0x2", decimal.NewFromInt(-3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := transfer(model.NetworkTRC20, "x", "T", "1", 1)
			raw.TxHash = tt.hash
			raw.Amount = tt.amt
			_, _, err := ing.Ingest(ctx, raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, errno.ErrMalformedTransfer)
			assert.Equal(t, errno.KindData, errno.KindOf(err))
		})
	}
}
