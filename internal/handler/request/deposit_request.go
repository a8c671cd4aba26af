package request

import "deposit-reconciler/internal/model"

const (
	DefaultUnmatchedLimit = 100
	MaxUnmatchedLimit     = 500
)

// UnmatchedQuery 未匹配入账查询参数
type UnmatchedQuery struct {
	Network string `form:"network" binding:"omitempty,network"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

func (q UnmatchedQuery) NetworkOrAll() model.Network {
	return model.Network(q.Network)
}

func (q UnmatchedQuery) LimitOrDefault() int {
	if q.Limit <= 0 {
		return DefaultUnmatchedLimit
	}
	return q.Limit
}
