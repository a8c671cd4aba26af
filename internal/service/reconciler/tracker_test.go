package reconciler

import (
	"context"
	"testing"
	"time"

	"deposit-reconciler/internal/ledger"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestTracker(db *gorm.DB, clock *testutil.Clock) *Tracker {
	credit := NewCreditApplier(db, ledger.NewGormLedger(), clock.Now, zap.NewNop())
	return NewTracker(store.NewDepositStore(db), store.NewWalletStore(db), credit, 10, clock.Now, zap.NewNop())
}

func TestConfirmations(t *testing.T) {
	assert.Equal(t, int64(0), Confirmations(100, 100))
	assert.Equal(t, int64(0), Confirmations(90, 100))
	assert.Equal(t, int64(15), Confirmations(115, 100))
}

func TestTrackThreshold(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	tr := newTestTracker(db, clock)

	wallet(t, db, model.NetworkBEP20, "0xw", 15)
	testutil.Intent(t, db, 7, model.NetworkBEP20, "100", clock.T.Add(-time.Hour), clock.T.Add(time.Hour))
	dep := pendingDeposit(t, db, model.NetworkBEP20, "0x1", "0xw", "100", 100)
	_, err := NewMatcher(db, DefaultAmountTolerance, clock.Now, zap.NewNop()).Match(ctx, dep)
	require.NoError(t, err)

	res, err := tr.Track(ctx, model.NetworkBEP20, 114, 99)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Confirmed, "one short of the threshold")

	var stored model.DepositTransaction
	testutil.Reload(t, db, &stored, dep.ID)
	assert.Equal(t, model.TxPending, stored.Status)
	assert.Equal(t, int64(14), stored.Confirmations)

	res, err = tr.Track(ctx, model.NetworkBEP20, 115, 99)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Confirmed)
	assert.Equal(t, 1, res.Credited, "credited in the same pass")

	testutil.Reload(t, db, &stored, dep.ID)
	assert.Equal(t, model.TxCredited, stored.Status)
	assert.True(t, testutil.Balance(t, db, 7).Equal(decimal.NewFromInt(100)))
}

func TestTrackDefaultThresholdAndMonotonicConfirmations(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	tr := newTestTracker(db, clock)

	// 没有对应钱包配置时使用默认阈值
	dep := pendingDeposit(t, db, model.NetworkTRC20, "t1", "Tunknown", "5", 1000)

	_, err := tr.Track(ctx, model.NetworkTRC20, 1010, 19)
	require.NoError(t, err)
	var stored model.DepositTransaction
	testutil.Reload(t, db, &stored, dep.ID)
	assert.Equal(t, int64(10), stored.Confirmations)

	_, err = tr.Track(ctx, model.NetworkTRC20, 1005, 19)
	require.NoError(t, err)
	testutil.Reload(t, db, &stored, dep.ID)
	assert.Equal(t, int64(10), stored.Confirmations, "confirmations never decrease")

	res, err := tr.Track(ctx, model.NetworkTRC20, 1019, 19)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Confirmed)
	assert.Equal(t, 0, res.Credited, "unmatched deposit is not credited")

	testutil.Reload(t, db, &stored, dep.ID)
	assert.Equal(t, model.TxConfirmed, stored.Status)
}

func TestTrackCreditsAfterManualAssignment(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	tr := newTestTracker(db, clock)

	wallet(t, db, model.NetworkTRC20, "Twallet", 1)
	dep := pendingDeposit(t, db, model.NetworkTRC20, "t1", "Twallet", "25", 10)

	res, err := tr.Track(ctx, model.NetworkTRC20, 20, 19)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Confirmed)
	assert.Equal(t, 0, res.Credited)

	// 运维人工绑定用户后，下一轮入账
	require.NoError(t, db.Model(&model.DepositTransaction{}).Where("id = ?", dep.ID).Update("user_id", 42).Error)

	res, err = tr.Track(ctx, model.NetworkTRC20, 21, 19)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Credited)
	assert.True(t, testutil.Balance(t, db, 42).Equal(decimal.NewFromInt(25)))
}
