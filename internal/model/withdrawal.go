package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase is the withdrawal state machine position.
type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseApproving   Phase = "APPROVING"
	PhaseApproved    Phase = "APPROVED"
	PhaseWithdrawing Phase = "WITHDRAWING"
	PhaseConfirming  Phase = "CONFIRMING"
	PhaseSucceeded   Phase = "SUCCEEDED"
	PhaseFailed      Phase = "FAILED"
)

// Terminal reports whether the phase can only be left via an explicit reset.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// WithdrawalStatus is the caller-facing snapshot of one withdrawal flow.
// The engine never clears a terminal snapshot on its own; the last
// outcome stays visible until the caller resets the flow.
type WithdrawalStatus struct {
	FlowID         string          `json:"flow_id"`
	StrategyID     string          `json:"strategy_id"`
	Wallet         string          `json:"wallet"`
	TargetAsset    string          `json:"target_asset"`
	TargetNetwork  string          `json:"target_network"`
	Amount         decimal.Decimal `json:"amount"`
	Phase          Phase           `json:"phase"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	ApproveTxHash  string          `json:"approve_tx_hash,omitempty"`
	WithdrawTxHash string          `json:"withdraw_tx_hash,omitempty"`
	// PreviewAssetsOut is advisory only; it never gates submission.
	PreviewAssetsOut decimal.Decimal `json:"preview_assets_out"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
