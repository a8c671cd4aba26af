package errno

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsIdentity(t *testing.T) {
	cause := context.DeadlineExceeded
	err := fmt.Errorf("fetch head: %w", Wrap(ErrChainTimeout, cause))

	assert.True(t, errors.Is(err, ErrChainTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrChainUnavailable))
	assert.Contains(t, err.Error(), "Chain RPC timeout")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain error", errors.New("boom"), KindTransient},
		{"bare errno", ErrNoActiveWallets, KindFatal},
		{"wrapped data", Wrap(ErrMalformedTransfer, errors.New("short topic")), KindData},
		{"double wrapped", fmt.Errorf("outer: %w", Wrap(ErrDatabase, errors.New("conn reset"))), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestDecode(t *testing.T) {
	code, msg := Decode(nil)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Success", msg)

	code, _ = Decode(Wrap(ErrDatabase, errors.New("x")))
	assert.Equal(t, ErrDatabase.Code, code)

	code, msg = Decode(errors.New("raw"))
	assert.Equal(t, InternalServerError.Code, code)
	assert.Equal(t, "raw", msg)
}

func TestWrapNilCause(t *testing.T) {
	err := Wrap(ErrInvalidConfig, nil)
	assert.Equal(t, ErrInvalidConfig, err)
}
