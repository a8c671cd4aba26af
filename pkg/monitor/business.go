package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 对账引擎业务指标
type BusinessMetrics struct {
	CyclesTotal             *prometheus.CounterVec
	NetworkPassDuration     *prometheus.HistogramVec
	TransfersIngestedTotal  *prometheus.CounterVec
	TransfersDuplicateTotal *prometheus.CounterVec
	TransfersMalformedTotal *prometheus.CounterVec
	IntentsMatchedTotal     *prometheus.CounterVec
	DepositsCreditedTotal   *prometheus.CounterVec
	DepositAmountTotal      *prometheus.CounterVec
	IntentsExpiredTotal     prometheus.Counter
	UnmatchedTransactions   *prometheus.GaugeVec
	CheckpointHeight        *prometheus.GaugeVec
	OutboxRelayedTotal      *prometheus.CounterVec
}

// Global Metrics Instance
var Business *BusinessMetrics

var businessOnce sync.Once

// InitBusinessMetrics 初始化业务指标，可重复调用
func InitBusinessMetrics() *BusinessMetrics {
	businessOnce.Do(func() {
		Business = newBusinessMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return Business
}

// NewBusinessMetrics 用独立的 Registry 创建指标，测试里用它避免重复注册
func NewBusinessMetrics(reg prometheus.Registerer) *BusinessMetrics {
	return newBusinessMetrics(promauto.With(reg))
}

func newBusinessMetrics(f promauto.Factory) *BusinessMetrics {
	return &BusinessMetrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_network_passes_total",
			Help: "Network passes by outcome (ok, failed, skipped)",
		}, []string{"network", "outcome"}),
		NetworkPassDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reconciler_network_pass_duration_seconds",
			Help:    "Duration of one network reconciliation pass",
			Buckets: prometheus.DefBuckets,
		}, []string{"network"}),
		TransfersIngestedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_transfers_ingested_total",
			Help: "New deposit transactions recorded",
		}, []string{"network"}),
		TransfersDuplicateTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_transfers_duplicate_total",
			Help: "Transfers skipped because the tx hash was already recorded",
		}, []string{"network"}),
		TransfersMalformedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_transfers_malformed_total",
			Help: "Transfer events that could not be decoded",
		}, []string{"network"}),
		IntentsMatchedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_intents_matched_total",
			Help: "Deposit transactions bound to an intent",
		}, []string{"network"}),
		DepositsCreditedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_deposits_credited_total",
			Help: "Deposits credited to user balances",
		}, []string{"network"}),
		DepositAmountTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_deposit_amount_total",
			Help: "The total amount of credited deposits",
		}, []string{"network"}),
		IntentsExpiredTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "reconciler_intents_expired_total",
			Help: "Deposit intents expired by the janitor",
		}),
		UnmatchedTransactions: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reconciler_unmatched_transactions",
			Help: "Pending or confirmed transactions with no bound user",
		}, []string{"network"}),
		CheckpointHeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reconciler_checkpoint_height",
			Help: "Last processed block per network",
		}, []string{"network"}),
		OutboxRelayedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciler_outbox_relayed_total",
			Help: "Outbox messages relayed to the broker",
		}, []string{"topic", "result"}),
	}
}
