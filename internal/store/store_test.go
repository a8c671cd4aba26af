package store

import (
	"context"
	"testing"
	"time"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewCheckpointStore(testutil.NewDB(t))

	h, err := s.GetCheckpoint(ctx, model.NetworkBEP20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h, "absent checkpoint defaults to genesis")

	require.NoError(t, s.SetCheckpoint(ctx, model.NetworkBEP20, 1000))
	require.NoError(t, s.SetCheckpoint(ctx, model.NetworkBEP20, 1500))
	require.NoError(t, s.SetCheckpoint(ctx, model.NetworkBEP20, 1200))

	h, err = s.GetCheckpoint(ctx, model.NetworkBEP20)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), h, "checkpoint never moves backwards")

	h, err = s.GetCheckpoint(ctx, model.NetworkTRC20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h, "networks are independent")

	cps, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, cps, 1)
}

func TestInsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewDepositStore(testutil.NewDB(t))

	newDep := func() *model.DepositTransaction {
		return &model.DepositTransaction{
			TxHash:      "0xabc",
			FromAddress: "0xfrom",
			ToAddress:   "0xto",
			Amount:      decimal.RequireFromString("10"),
			Network:     model.NetworkBEP20,
			BlockNumber: 100,
			Status:      model.TxPending,
		}
	}

	created, err := s.InsertIfAbsent(ctx, newDep())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.InsertIfAbsent(ctx, newDep())
	require.NoError(t, err)
	assert.False(t, created)

	dep, err := s.FindByHash(ctx, "0xabc")
	require.NoError(t, err)
	assert.Nil(t, dep.UserID)
}

func TestMarkConfirmedIsCAS(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	s := NewDepositStore(db)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	dep := &model.DepositTransaction{TxHash: "0x1", Amount: decimal.NewFromInt(1), Network: model.NetworkBEP20, BlockNumber: 1, Status: model.TxPending}
	testutil.MustCreate(t, db, dep)

	ok, err := s.MarkConfirmed(ctx, dep.ID, 15, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkConfirmed(ctx, dep.ID, 16, now)
	require.NoError(t, err)
	assert.False(t, ok, "second promotion is a no-op")

	require.NoError(t, s.UpdateConfirmations(ctx, dep.ID, 20, now))
	require.NoError(t, s.UpdateConfirmations(ctx, dep.ID, 18, now))
	testutil.Reload(t, db, dep, dep.ID)
	assert.Equal(t, int64(20), dep.Confirmations)
	assert.Equal(t, model.TxConfirmed, dep.Status)
}

func TestUnmatchedQueries(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	s := NewDepositStore(db)
	uid := uint64(9)

	for i, d := range []model.DepositTransaction{
		{TxHash: "a", Network: model.NetworkBEP20, Status: model.TxPending},
		{TxHash: "b", Network: model.NetworkBEP20, Status: model.TxConfirmed},
		{TxHash: "c", Network: model.NetworkBEP20, Status: model.TxConfirmed, UserID: &uid},
		{TxHash: "d", Network: model.NetworkTRC20, Status: model.TxPending},
		{TxHash: "e", Network: model.NetworkBEP20, Status: model.TxCredited},
	} {
		d := d
		d.Amount = decimal.NewFromInt(int64(i + 1))
		testutil.MustCreate(t, db, &d)
	}

	n, err := s.CountUnmatched(ctx, model.NetworkBEP20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := s.ListUnmatched(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	trackable, err := s.ListTrackable(ctx, model.NetworkBEP20, 10)
	require.NoError(t, err)
	assert.Len(t, trackable, 2, "confirmed rows without a user are left for manual review")
}

func TestIntentCandidatesAndExpiry(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	s := NewIntentStore(db)
	clock := testutil.NewClock()
	now := clock.Now()

	older := testutil.Intent(t, db, 1, model.NetworkBEP20, "100", now.Add(-2*time.Hour), now.Add(time.Hour))
	newer := testutil.Intent(t, db, 2, model.NetworkBEP20, "100", now.Add(-time.Hour), now.Add(time.Hour))
	expired := testutil.Intent(t, db, 3, model.NetworkBEP20, "100", now.Add(-3*time.Hour), now.Add(-time.Minute))

	got, err := s.OldestCandidate(ctx, model.NetworkBEP20, decimal.RequireFromString("95"), decimal.RequireFromString("105"), now, nil)
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	got, err = s.OldestCandidate(ctx, model.NetworkBEP20, decimal.RequireFromString("95"), decimal.RequireFromString("105"), now, []uint64{older.ID})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	n, err := s.ExpirePending(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	testutil.Reload(t, db, expired, expired.ID)
	assert.Equal(t, model.IntentExpired, expired.Status)

	ok, err := s.Transition(ctx, older.ID, model.IntentPending, model.IntentDetected, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Transition(ctx, older.ID, model.IntentPending, model.IntentDetected, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupByNetwork(t *testing.T) {
	groups := GroupByNetwork([]model.MainWallet{
		{ID: 1, Network: model.NetworkBEP20},
		{ID: 2, Network: model.NetworkTRC20},
		{ID: 3, Network: model.NetworkBEP20},
	})
	assert.Len(t, groups[model.NetworkBEP20], 2)
	assert.Len(t, groups[model.NetworkTRC20], 1)
}
