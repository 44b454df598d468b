package model

import "time"

// WithdrawalRecord is the persisted trail of one withdrawal flow, one
// row per flow updated in place as phases advance.
type WithdrawalRecord struct {
	FlowID         string    `gorm:"primaryKey;column:flow_id" json:"flow_id"`
	StrategyID     string    `gorm:"column:strategy_id;index" json:"strategy_id"`
	Wallet         string    `gorm:"column:wallet;index" json:"wallet"`
	TargetAsset    string    `gorm:"column:target_asset" json:"target_asset"`
	TargetNetwork  string    `gorm:"column:target_network" json:"target_network"`
	Amount         string    `gorm:"column:amount" json:"amount"`
	Phase          string    `gorm:"column:phase" json:"phase"`
	FailureReason  string    `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	ApproveTxHash  string    `gorm:"column:approve_tx_hash" json:"approve_tx_hash,omitempty"`
	WithdrawTxHash string    `gorm:"column:withdraw_tx_hash" json:"withdraw_tx_hash,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (WithdrawalRecord) TableName() string {
	return "withdrawal_records"
}
