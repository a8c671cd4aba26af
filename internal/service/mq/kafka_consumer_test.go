package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGroupReader struct {
	pending   []kafka.Message
	committed []int64
}

func (r *fakeGroupReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.pending) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.pending[0]
	r.pending = r.pending[1:]
	return m, nil
}

func (r *fakeGroupReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func TestConsumeStopsBeforeCommittingPastFailure(t *testing.T) {
	r := &fakeGroupReader{pending: []kafka.Message{
		{Topic: "deposit.credited", Offset: 10, Key: []byte("7"), Value: []byte(`{"a":1}`)},
		{Topic: "deposit.credited", Offset: 11, Key: []byte("7"), Value: []byte(`{"a":2}`)},
		{Topic: "deposit.credited", Offset: 12, Key: []byte("7"), Value: []byte(`{"a":3}`)},
	}}

	var seen []string
	err := consume(context.Background(), r, func(msg *Message) error {
		seen = append(seen, msg.ID)
		if msg.ID == "0/11" {
			return errors.New("downstream unavailable")
		}
		return nil
	}, zap.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "0/11")
	assert.Equal(t, []string{"0/10", "0/11"}, seen)
	assert.Equal(t, []int64{10}, r.committed, "offset never moves past the failed message")
	assert.Len(t, r.pending, 1, "later messages are left for redelivery")
}

func TestConsumeReturnsOnCancel(t *testing.T) {
	r := &fakeGroupReader{pending: []kafka.Message{{Topic: "t", Offset: 1}}}
	ctx, cancel := context.WithCancel(context.Background())

	err := consume(ctx, r, func(msg *Message) error {
		cancel()
		return nil
	}, zap.NewNop())

	assert.NoError(t, err)
	assert.Equal(t, []int64{1}, r.committed)
}
