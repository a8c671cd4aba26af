package chain

import (
	"context"
	"errors"
	"fmt"

	"deposit-reconciler/pkg/errno"
)

// WrapRPCError 把 RPC 错误归类为 transient，超时单独区分
func WrapRPCError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, errno.Wrap(errno.ErrChainTimeout, err))
	}
	return fmt.Errorf("%s: %w", op, errno.Wrap(errno.ErrChainUnavailable, err))
}
