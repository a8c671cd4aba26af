package handler

import (
	"errors"

	"deposit-reconciler/internal/handler/request"
	"deposit-reconciler/internal/handler/response"
	"deposit-reconciler/internal/model"
	"deposit-reconciler/internal/store"
	"deposit-reconciler/pkg/errno"
	"deposit-reconciler/pkg/validator"

	"github.com/gin-gonic/gin"
)

// DepositHandler 人工对账用的只读接口
type DepositHandler struct {
	deposits    *store.DepositStore
	checkpoints *store.CheckpointStore
}

// UnmatchedList 未匹配入账列表，total 不受 limit 影响
type UnmatchedList struct {
	Total int64                      `json:"total"`
	Items []model.DepositTransaction `json:"items"`
}

func NewDepositHandler(deposits *store.DepositStore, checkpoints *store.CheckpointStore) *DepositHandler {
	return &DepositHandler{deposits: deposits, checkpoints: checkpoints}
}

// ListUnmatched 没有归属用户的入账 (pending 或 confirmed)
// @Summary List deposits without a user
// @Description Pending or confirmed transfers that matched no intent, for manual reconciliation
// @Tags deposits
// @Produce  json
// @Param network query string false "TRC20 or BEP20, empty for all"
// @Param limit query int false "1-500, default 100"
// @Success 200 {object} response.Response{data=UnmatchedList}
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/deposits/unmatched [get]
func (h *DepositHandler) ListUnmatched(c *gin.Context) {
	var q request.UnmatchedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, errno.Wrap(errno.ErrBind, errors.New(validator.GetErrorMsg(err))))
		return
	}

	items, err := h.deposits.ListUnmatched(c.Request.Context(), q.NetworkOrAll(), q.LimitOrDefault())
	if err != nil {
		response.Error(c, errno.Wrap(errno.ErrDatabase, err))
		return
	}
	total, err := h.deposits.CountUnmatched(c.Request.Context(), q.NetworkOrAll())
	if err != nil {
		response.Error(c, errno.Wrap(errno.ErrDatabase, err))
		return
	}

	response.Success(c, UnmatchedList{Total: total, Items: items})
}

// ListCheckpoints 各网络的扫描水位
// @Summary List scan checkpoints
// @Tags deposits
// @Produce  json
// @Success 200 {object} response.Response{data=[]model.BlockCheckpoint}
// @Failure 500 {object} response.Response
// @Router /api/v1/checkpoints [get]
func (h *DepositHandler) ListCheckpoints(c *gin.Context) {
	cps, err := h.checkpoints.List(c.Request.Context())
	if err != nil {
		response.Error(c, errno.Wrap(errno.ErrDatabase, err))
		return
	}
	response.Success(c, cps)
}
