package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Network 链网络标识，新增链时直接扩展
type Network string

const (
	NetworkTRC20 Network = "TRC20"
	NetworkBEP20 Network = "BEP20"
)

// Intent 状态
const (
	IntentPending  = "pending"
	IntentDetected = "detected"
	IntentCredited = "credited"
	IntentExpired  = "expired"
)

// DepositTransaction 状态，只能前进不能回退
const (
	TxPending   = "pending"
	TxConfirmed = "confirmed"
	TxCredited  = "credited"
)

// MainWallet 平台监控的收款主钱包 (运维配置，引擎只读)
type MainWallet struct {
	ID                   uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Network              Network   `gorm:"type:varchar(20);not null;uniqueIndex:idx_network_address" json:"network"`
	Address              string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_network_address" json:"address"`
	TokenContractAddress string    `gorm:"type:varchar(255);not null" json:"token_contract_address"`
	MinConfirmations     int       `gorm:"not null;default:12" json:"min_confirmations"`
	IsActive             bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// BlockCheckpoint 每个网络的扫描水位
type BlockCheckpoint struct {
	Network            Network   `gorm:"type:varchar(20);primaryKey" json:"network"`
	LastProcessedBlock int64     `gorm:"not null;default:0" json:"last_processed_block"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DepositIntent 用户声明的充值意向
type DepositIntent struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint64          `gorm:"not null;index" json:"user_id"`
	Network        Network         `gorm:"type:varchar(20);not null;index:idx_intent_match" json:"network"`
	ExpectedAmount decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"expected_amount"`
	ReferenceCode  string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"reference_code"`
	Status         string          `gorm:"type:varchar(20);not null;default:'pending';index:idx_intent_match" json:"status"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	ExpiresAt      time.Time       `gorm:"not null" json:"expires_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DepositTransaction 链上入账记录，TxHash 唯一是去重的核心
type DepositTransaction struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TxHash          string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"tx_hash"`
	FromAddress     string          `gorm:"type:varchar(255);not null" json:"from_address"`
	ToAddress       string          `gorm:"type:varchar(255);not null" json:"to_address"`
	Amount          decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"amount"`
	Network         Network         `gorm:"type:varchar(20);not null;index:idx_tx_network_status" json:"network"`
	BlockNumber     int64           `gorm:"not null" json:"block_number"`
	BlockHash       string          `gorm:"type:varchar(255)" json:"block_hash"`
	Confirmations   int64           `gorm:"not null;default:0" json:"confirmations"`
	Status          string          `gorm:"type:varchar(20);not null;default:'pending';index:idx_tx_network_status" json:"status"`
	UserID          *uint64         `gorm:"index" json:"user_id,omitempty"`
	DepositIntentID *uint64         `gorm:"index" json:"deposit_intent_id,omitempty"`
	RawPayload      string          `gorm:"type:text" json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ConfirmedAt     *time.Time      `json:"confirmed_at,omitempty"`
	CreditedAt      *time.Time      `json:"credited_at,omitempty"`
}

// UserBalance 用户余额 (外部表，只通过 ledger 修改)
type UserBalance struct {
	UserID           uint64          `gorm:"primaryKey" json:"user_id"`
	AvailableBalance decimal.Decimal `gorm:"type:decimal(32,18);not null;default:0" json:"available_balance"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TransactionLog 资金流水 (外部表)
type TransactionLog struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64          `gorm:"not null;index" json:"user_id"`
	Type      string          `gorm:"type:varchar(32);not null;uniqueIndex:idx_log_type_ref" json:"type"`
	Amount    decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"amount"`
	Reference string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_log_type_ref" json:"reference"`
	Reason    string          `gorm:"type:varchar(255)" json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName 指定表名
func (MainWallet) TableName() string {
	return "main_wallets"
}

func (BlockCheckpoint) TableName() string {
	return "block_checkpoints"
}

func (DepositIntent) TableName() string {
	return "deposit_intents"
}

func (DepositTransaction) TableName() string {
	return "deposit_transactions"
}

func (UserBalance) TableName() string {
	return "user_balances"
}

func (TransactionLog) TableName() string {
	return "transaction_log"
}
