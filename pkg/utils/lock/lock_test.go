package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLock()

	ok, err := l.Acquire(ctx, "reconciler:cycle:BEP20", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.Acquire(ctx, "reconciler:cycle:BEP20", time.Minute)
	assert.False(t, ok, "second acquire must fail while held")

	ok, _ = l.Acquire(ctx, "reconciler:cycle:TRC20", time.Minute)
	assert.True(t, ok, "keys are independent")

	require.NoError(t, l.Release(ctx, "reconciler:cycle:BEP20"))
	ok, _ = l.Acquire(ctx, "reconciler:cycle:BEP20", time.Minute)
	assert.True(t, ok)
}

func TestLocalLockExpires(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLock()

	ok, _ := l.Acquire(ctx, "k", time.Millisecond)
	require.True(t, ok)
	time.Sleep(5 * time.Millisecond)

	ok, _ = l.Acquire(ctx, "k", time.Minute)
	assert.True(t, ok, "expired lock can be taken again")
}
