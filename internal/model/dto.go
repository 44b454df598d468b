package model

// StartWithdrawalRequest is the incoming JSON body for opening a flow.
type StartWithdrawalRequest struct {
	StrategyID    string `json:"strategy_id" binding:"required"`
	Wallet        string `json:"wallet" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	TargetAsset   string `json:"target_asset" binding:"required"`
	TargetNetwork string `json:"target_network" binding:"required"`
}

// PreviewRequest carries a changed amount/asset/network for which the
// advisory assets-out preview should be recomputed.
type PreviewRequest struct {
	Amount        string `json:"amount,omitempty"`
	TargetAsset   string `json:"target_asset,omitempty"`
	TargetNetwork string `json:"target_network,omitempty"`
}

// CancelResult reports the outcome of a cancellation attempt.
type CancelResult struct {
	RequestID string `json:"request_id"`
	TxHash    string `json:"tx_hash"`
	// Confirmed is true only once a ledger re-fetch no longer lists the
	// request as pending.
	Confirmed bool `json:"confirmed"`
}
