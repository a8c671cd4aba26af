package reconciler

import (
	"context"
	"testing"
	"time"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBand(t *testing.T) {
	m := NewMatcher(nil, DefaultAmountTolerance, time.Now, zap.NewNop())
	lo, hi := m.Band(decimal.NewFromInt(100))
	assert.True(t, lo.Equal(decimal.NewFromInt(95)), lo.String())
	assert.True(t, hi.Equal(decimal.NewFromInt(105)), hi.String())
}

func TestMatchTolerance(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		matched bool
	}{
		{"within tolerance", "97", true},
		{"lower edge", "95.5", true},
		{"upper edge", "104", true},
		{"too low", "80", false},
		{"too high", "110", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db := testutil.NewDB(t)
			clock := testutil.NewClock()
			m := NewMatcher(db, DefaultAmountTolerance, clock.Now, zap.NewNop())

			intent := testutil.Intent(t, db, 1, model.NetworkBEP20, "100", clock.T.Add(-time.Hour), clock.T.Add(time.Hour))
			dep := pendingDeposit(t, db, model.NetworkBEP20, "0x1", "0xw", tt.amount, 10)

			got, err := m.Match(ctx, dep)
			require.NoError(t, err)

			var reloaded model.DepositIntent
			testutil.Reload(t, db, &reloaded, intent.ID)
			var stored model.DepositTransaction
			testutil.Reload(t, db, &stored, dep.ID)

			if !tt.matched {
				assert.Nil(t, got)
				assert.Equal(t, model.IntentPending, reloaded.Status)
				assert.Nil(t, stored.UserID)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, intent.ID, got.ID)
			assert.Equal(t, model.IntentDetected, reloaded.Status)
			require.NotNil(t, stored.UserID)
			assert.Equal(t, uint64(1), *stored.UserID)
			require.NotNil(t, stored.DepositIntentID)
			assert.Equal(t, intent.ID, *stored.DepositIntentID)
			assert.Equal(t, model.TxPending, stored.Status, "matching does not change tx status")
		})
	}
}

func TestMatchOldestFirst(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	m := NewMatcher(db, DefaultAmountTolerance, clock.Now, zap.NewNop())

	exp := clock.T.Add(time.Hour)
	newer := testutil.Intent(t, db, 2, model.NetworkTRC20, "100", clock.T.Add(-10*time.Minute), exp)
	older := testutil.Intent(t, db, 1, model.NetworkTRC20, "101", clock.T.Add(-20*time.Minute), exp)

	first, err := m.Match(ctx, pendingDeposit(t, db, model.NetworkTRC20, "t1", "T", "100", 5))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, older.ID, first.ID, "oldest intent wins, not closest amount")

	second, err := m.Match(ctx, pendingDeposit(t, db, model.NetworkTRC20, "t2", "T", "100", 6))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, newer.ID, second.ID)

	third, err := m.Match(ctx, pendingDeposit(t, db, model.NetworkTRC20, "t3", "T", "100", 7))
	require.NoError(t, err)
	assert.Nil(t, third, "an intent is bound at most once")
}

func TestMatchIgnoresExpiredAndOtherNetworks(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	m := NewMatcher(db, DefaultAmountTolerance, clock.Now, zap.NewNop())

	testutil.Intent(t, db, 1, model.NetworkBEP20, "100", clock.T.Add(-2*time.Hour), clock.T.Add(-time.Minute))
	testutil.Intent(t, db, 2, model.NetworkTRC20, "100", clock.T.Add(-time.Hour), clock.T.Add(time.Hour))

	got, err := m.Match(ctx, pendingDeposit(t, db, model.NetworkBEP20, "0x1", "0xw", "100", 1))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMatchSkipsBoundTransaction(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	m := NewMatcher(db, DefaultAmountTolerance, clock.Now, zap.NewNop())

	testutil.Intent(t, db, 9, model.NetworkBEP20, "100", clock.T.Add(-time.Hour), clock.T.Add(time.Hour))
	dep := pendingDeposit(t, db, model.NetworkBEP20, "0x1", "0xw", "100", 1)
	uid := uint64(5)
	require.NoError(t, db.Model(dep).Update("user_id", uid).Error)
	dep.UserID = &uid

	got, err := m.Match(ctx, dep)
	require.NoError(t, err)
	assert.Nil(t, got)

	var count int64
	db.Model(&model.DepositIntent{}).Where("status = ?", model.IntentPending).Count(&count)
	assert.Equal(t, int64(1), count, "intent left untouched")
}
