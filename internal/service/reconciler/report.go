package reconciler

import (
	"time"

	"deposit-reconciler/internal/model"
	"deposit-reconciler/pkg/errno"
)

// 网络处理结果
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ItemError 单条记录失败，不影响批次
type ItemError struct {
	TxHash string `json:"tx_hash"`
	Stage  string `json:"stage"` // ingest, match, confirm, credit
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// NetworkReport 一个网络一轮的结果
type NetworkReport struct {
	Network    model.Network `json:"network"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Head       int64         `json:"head"`
	FromBlock  int64         `json:"from_block"`
	ToBlock    int64         `json:"to_block"`
	Chunks     int           `json:"chunks"`
	Truncated  bool          `json:"truncated,omitempty"`
	Fetched    int           `json:"fetched"`
	Ingested   int           `json:"ingested"`
	Duplicates int           `json:"duplicates"`
	Malformed  int           `json:"malformed"`
	Matched    int           `json:"matched"`
	Confirmed  int           `json:"confirmed"`
	Credited   int           `json:"credited"`
	Expired    int64         `json:"expired,omitempty"`
	Unmatched  int64         `json:"unmatched"`
	ItemErrors []ItemError   `json:"item_errors,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

func (r *NetworkReport) fail(err error) {
	r.Status = StatusFailed
	r.Error = err.Error()
	r.ErrorKind = errno.KindOf(err).String()
}

func (r *NetworkReport) itemError(txHash, stage string, err error) {
	r.ItemErrors = append(r.ItemErrors, ItemError{
		TxHash: txHash,
		Stage:  stage,
		Kind:   errno.KindOf(err).String(),
		Error:  err.Error(),
	})
}

// CycleReport ProcessCycle 的结构化结果，供告警和运维工具使用
type CycleReport struct {
	CycleID    string          `json:"cycle_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Networks   []NetworkReport `json:"networks"`
	Expired    int64           `json:"expired"`
	Error      string          `json:"error,omitempty"`
}

// Network 按网络查找结果
func (r *CycleReport) Network(n model.Network) *NetworkReport {
	for i := range r.Networks {
		if r.Networks[i].Network == n {
			return &r.Networks[i]
		}
	}
	return nil
}

// Failed 返回本轮失败的网络
func (r *CycleReport) Failed() []model.Network {
	var out []model.Network
	for _, n := range r.Networks {
		if n.Status == StatusFailed {
			out = append(out, n.Network)
		}
	}
	return out
}

// Totals 汇总所有网络的计数
func (r *CycleReport) Totals() NetworkReport {
	var t NetworkReport
	for _, n := range r.Networks {
		t.Fetched += n.Fetched
		t.Ingested += n.Ingested
		t.Duplicates += n.Duplicates
		t.Malformed += n.Malformed
		t.Matched += n.Matched
		t.Confirmed += n.Confirmed
		t.Credited += n.Credited
		t.Unmatched += n.Unmatched
		t.ItemErrors = append(t.ItemErrors, n.ItemErrors...)
	}
	t.Expired = r.Expired
	return t
}
