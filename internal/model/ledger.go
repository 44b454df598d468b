package model

// RequestStatus is the off-chain ledger's view of a withdrawal request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestFulfilled RequestStatus = "FULFILLED"
)

// LedgerEntry mirrors one record of the off-chain withdrawal request
// index. The engine only ever reads these; cancellation rebuilds the
// on-chain struct from the stored fields verbatim.
type LedgerEntry struct {
	RequestID         string        `json:"request_id"`
	Nonce             uint64        `json:"nonce"`
	User              string        `json:"user"`
	AssetOut          string        `json:"asset_out"`
	AmountOfShares    string        `json:"amount_of_shares"`
	AmountOfAssets    string        `json:"amount_of_assets"`
	CreationTime      uint64        `json:"creation_time"`
	SecondsToMaturity uint32        `json:"seconds_to_maturity"`
	SecondsToDeadline uint32        `json:"seconds_to_deadline"`
	TxHash            string        `json:"tx_hash"`
	Status            RequestStatus `json:"status"`
}

// RequestList is the result of one ledger fetch. Fetch failures keep
// the lists empty and set Degraded, never block on the index.
type RequestList struct {
	Pending   []LedgerEntry `json:"pending"`
	Fulfilled []LedgerEntry `json:"fulfilled"`
	Degraded  bool          `json:"degraded"`
}
