package chain

import (
	"context"
	"errors"
	"testing"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/pkg/errno"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRange(t *testing.T) {
	tests := []struct {
		name       string
		checkpoint int64
		head       int64
		chunk      int64
		wantTo     int64
		wantOK     bool
	}{
		{"caught up", 100, 100, 1000, 100, false},
		{"ahead of head", 120, 100, 1000, 120, false},
		{"within one chunk", 100, 500, 1000, 500, true},
		{"chunked", 100, 5000, 1000, 1100, true},
		{"unbounded", 0, 5000, 0, 5000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, ok := NextRange(tt.checkpoint, tt.head, tt.chunk)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTo, to)
			assert.Equal(t, tt.checkpoint, from)
		})
	}
}

type stubAdapter struct {
	head     int64
	headErr  error
	calls    [][2]int64
	transfer []RawTransfer
}

func (s *stubAdapter) Network() model.Network { return model.NetworkBEP20 }
func (s *stubAdapter) ChunkSize() int64       { return 1000 }
func (s *stubAdapter) HeadHeight(context.Context) (int64, error) {
	return s.head, s.headErr
}
func (s *stubAdapter) FetchTransfers(_ context.Context, _ model.MainWallet, from, to int64) (Batch, error) {
	s.calls = append(s.calls, [2]int64{from, to})
	return Batch{Transfers: s.transfer}, nil
}

func TestFetchTransfersSince(t *testing.T) {
	a := &stubAdapter{head: 2500, transfer: []RawTransfer{{TxHash: "0x1"}}}

	batch, head, err := FetchTransfersSince(context.Background(), a, 100, model.MainWallet{})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), head)
	assert.Len(t, batch.Transfers, 1)
	assert.Equal(t, [][2]int64{{100, 1100}}, a.calls)

	a.calls = nil
	batch, _, err = FetchTransfersSince(context.Background(), a, 2500, model.MainWallet{})
	require.NoError(t, err)
	assert.Empty(t, batch.Transfers)
	assert.Empty(t, a.calls, "no fetch when caught up")
}

func TestFetchTransfersSinceHeadError(t *testing.T) {
	a := &stubAdapter{headErr: WrapRPCError("head", context.DeadlineExceeded)}
	_, _, err := FetchTransfersSince(context.Background(), a, 0, model.MainWallet{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errno.ErrChainTimeout))
	assert.Equal(t, errno.KindTransient, errno.KindOf(err))
}

func TestSortTransfers(t *testing.T) {
	ts := []RawTransfer{
		{TxHash: "c", BlockNumber: 9, LogIndex: 0},
		{TxHash: "b", BlockNumber: 5, LogIndex: 7},
		{TxHash: "a", BlockNumber: 5, LogIndex: 2},
	}
	SortTransfers(ts)
	assert.Equal(t, "a", ts[0].TxHash)
	assert.Equal(t, "b", ts[1].TxHash)
	assert.Equal(t, "c", ts[2].TxHash)
}
