package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/lucidlylabs/vaultgate/internal/chain"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/ledger"
	"github.com/lucidlylabs/vaultgate/internal/model"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
	"github.com/lucidlylabs/vaultgate/internal/pkg/metrics"
	"github.com/lucidlylabs/vaultgate/internal/repository"
	"github.com/shopspring/decimal"
)

// flow is one in-flight withdrawal for a (wallet, strategy) pair.
type flow struct {
	mu sync.Mutex

	id            string
	strategy      *config.StrategyConfig
	wallet        common.Address
	amount        decimal.Decimal
	targetAsset   common.Address
	targetNetwork string
	// approvedAmount is the share amount the approval transaction was
	// built for. The requested amount may shrink afterwards but never
	// grow past it, or the withdrawal would exceed the allowance.
	approvedAmount decimal.Decimal

	phase         model.Phase
	failureReason string
	approveTx     common.Hash
	withdrawTx    common.Hash
	preview       decimal.Decimal
	updatedAt     time.Time

	subscribers map[chan model.WithdrawalStatus]struct{}
}

func (f *flow) snapshotLocked() model.WithdrawalStatus {
	status := model.WithdrawalStatus{
		FlowID:           f.id,
		StrategyID:       f.strategy.ID,
		Wallet:           f.wallet.Hex(),
		TargetAsset:      f.targetAsset.Hex(),
		TargetNetwork:    f.targetNetwork,
		Amount:           f.amount,
		Phase:            f.phase,
		FailureReason:    f.failureReason,
		PreviewAssetsOut: f.preview,
		UpdatedAt:        f.updatedAt,
	}
	if f.approveTx != (common.Hash{}) {
		status.ApproveTxHash = f.approveTx.Hex()
	}
	if f.withdrawTx != (common.Hash{}) {
		status.WithdrawTxHash = f.withdrawTx.Hex()
	}
	return status
}

// WithdrawalService drives the approve -> request-withdraw state
// machine. One non-terminal (or unreset terminal) flow is allowed per
// (wallet, strategy) pair; a second start is refused until the first is
// explicitly reset.
type WithdrawalService struct {
	cfg        config.WithdrawConfig
	reader     ContractReader
	sender     chain.TxSender
	waiter     chain.ReceiptWaiter
	aggregator *Aggregator
	ledger     *ledger.Client
	history    repository.HistoryRepo

	mu     sync.Mutex
	flows  map[string]*flow
	active map[string]string
}

func NewWithdrawalService(
	cfg config.WithdrawConfig,
	reader ContractReader,
	sender chain.TxSender,
	waiter chain.ReceiptWaiter,
	aggregator *Aggregator,
	ledgerClient *ledger.Client,
	history repository.HistoryRepo,
) *WithdrawalService {
	if cfg.DeadlineSeconds == 0 {
		cfg.DeadlineSeconds = 432000
	}
	return &WithdrawalService{
		cfg:        cfg,
		reader:     reader,
		sender:     sender,
		waiter:     waiter,
		aggregator: aggregator,
		ledger:     ledgerClient,
		history:    history,
		flows:      make(map[string]*flow),
		active:     make(map[string]string),
	}
}

func pairKey(wallet common.Address, strategyID string) string {
	return strings.ToLower(wallet.Hex()) + "|" + strategyID
}

// Start validates the request, registers a flow and submits the
// approval transaction. Validation failures are local and leave no flow
// behind. A submission failure lands the flow in Failed with the
// distinguishing reason preserved.
func (s *WithdrawalService) Start(ctx context.Context, strategy *config.StrategyConfig, req model.StartWithdrawalRequest) (*model.WithdrawalStatus, error) {
	if strategy == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("unknown strategy %q", req.StrategyID), nil)
	}
	if !common.IsHexAddress(req.Wallet) {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("invalid wallet address %q", req.Wallet))
	}
	if !common.IsHexAddress(req.TargetAsset) {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("invalid target asset %q", req.TargetAsset))
	}
	if !strategy.IsWithdrawable(req.TargetNetwork) {
		return nil, apperrors.NewInvalidRequest(
			fmt.Sprintf("network %q is not withdrawable for strategy %q", req.TargetNetwork, strategy.ID))
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, apperrors.NewInvalidAmount(fmt.Sprintf("unparseable amount %q", req.Amount))
	}
	if !amount.IsPositive() {
		return nil, apperrors.NewInvalidAmount("amount must be greater than zero")
	}

	wallet := common.HexToAddress(req.Wallet)
	agg, err := s.aggregator.Aggregate(ctx, strategy, wallet)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(agg.Withdrawable) {
		return nil, apperrors.NewInvalidAmount(
			fmt.Sprintf("amount %s exceeds withdrawable balance %s", amount, agg.Withdrawable))
	}

	// Reserve the pair before any submission so a concurrent start on
	// the same wallet+strategy is refused, not raced.
	key := pairKey(wallet, strategy.ID)
	s.mu.Lock()
	if existingID, ok := s.active[key]; ok {
		s.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrFlowConflict,
			fmt.Sprintf("withdrawal %s already in flight for this wallet and strategy", existingID), nil)
	}
	f := &flow{
		id:             uuid.NewString(),
		strategy:       strategy,
		wallet:         wallet,
		amount:         amount,
		approvedAmount: amount,
		targetAsset:    common.HexToAddress(req.TargetAsset),
		targetNetwork:  req.TargetNetwork,
		phase:          model.PhaseIdle,
		updatedAt:      time.Now().UTC(),
		subscribers:    make(map[chan model.WithdrawalStatus]struct{}),
	}
	s.flows[f.id] = f
	s.active[key] = f.id
	s.mu.Unlock()

	if err := s.checkNetwork(f.targetNetwork); err != nil {
		s.discard(f)
		return nil, err
	}

	shareToken := common.HexToAddress(strategy.Networks[f.targetNetwork].VaultShareAddress)
	solver := common.HexToAddress(strategy.SolverAddress)
	calldata, err := chain.ApproveCalldata(solver, s.rawShares(f))
	if err != nil {
		s.discard(f)
		return nil, apperrors.Wrap(err)
	}

	s.transition(f, model.PhaseApproving, "")
	txHash, err := s.sender.SendTransaction(ctx, f.targetNetwork, shareToken, calldata)
	if err != nil {
		appErr := submissionError(err)
		s.fail(f, appErr)
		snapshot := s.snapshot(f)
		return &snapshot, appErr
	}

	f.mu.Lock()
	f.approveTx = txHash
	f.mu.Unlock()
	s.persist(f)
	go s.watchApproval(f)

	snapshot := s.snapshot(f)
	return &snapshot, nil
}

func (s *WithdrawalService) watchApproval(f *flow) {
	f.mu.Lock()
	txHash := f.approveTx
	network := f.targetNetwork
	f.mu.Unlock()

	if err := s.waiter.WaitMined(context.Background(), network, txHash); err != nil {
		s.fail(f, submissionError(err))
		return
	}
	s.transition(f, model.PhaseApproved, "")
}

// ConfirmWithdraw submits the withdrawal-request transaction. The
// approval must have reached Approved; phases are never skipped.
func (s *WithdrawalService) ConfirmWithdraw(ctx context.Context, flowID string) (*model.WithdrawalStatus, error) {
	f := s.flow(flowID)
	if f == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("unknown withdrawal flow %q", flowID), nil)
	}

	f.mu.Lock()
	phase := f.phase
	f.mu.Unlock()
	if phase != model.PhaseApproved {
		return nil, apperrors.NewInvalidRequest(
			fmt.Sprintf("cannot request withdrawal from phase %s; approval must be confirmed first", phase))
	}
	if err := s.checkNetwork(f.targetNetwork); err != nil {
		return nil, err
	}

	// Advisory preview for display; a failed preview never blocks the
	// submission.
	s.refreshPreview(ctx, f)

	solver := common.HexToAddress(f.strategy.SolverAddress)
	calldata, err := chain.RequestWithdrawCalldata(f.targetAsset, s.rawShares(f), s.cfg.Discount, s.cfg.DeadlineSeconds)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}

	s.transition(f, model.PhaseWithdrawing, "")
	txHash, err := s.sender.SendTransaction(ctx, f.targetNetwork, solver, calldata)
	if err != nil {
		appErr := submissionError(err)
		s.fail(f, appErr)
		snapshot := s.snapshot(f)
		return &snapshot, appErr
	}

	f.mu.Lock()
	f.withdrawTx = txHash
	f.mu.Unlock()
	s.transition(f, model.PhaseConfirming, "")
	go s.watchWithdraw(f)

	snapshot := s.snapshot(f)
	return &snapshot, nil
}

func (s *WithdrawalService) watchWithdraw(f *flow) {
	f.mu.Lock()
	txHash := f.withdrawTx
	network := f.targetNetwork
	f.mu.Unlock()

	if err := s.waiter.WaitMined(context.Background(), network, txHash); err != nil {
		s.fail(f, submissionError(err))
		return
	}
	s.transition(f, model.PhaseSucceeded, "")

	// Shares moved: the cached snapshot is stale, and the off-chain
	// index wants a cache poke.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.aggregator.Invalidate(ctx, f.strategy.ID, f.wallet)
	if s.ledger != nil {
		s.ledger.RefreshCache(ctx, s.vaultAddress(f.strategy), f.wallet.Hex())
	}
}

// Preview recomputes the advisory assets-out value after the caller
// changed amount, target asset or target network. Allowed until the
// withdrawal request itself has been submitted. A changed amount is
// gated like at start and additionally capped by the approved amount;
// the target network is fixed once the approval is out.
func (s *WithdrawalService) Preview(ctx context.Context, flowID string, req model.PreviewRequest) (*model.WithdrawalStatus, error) {
	f := s.flow(flowID)
	if f == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("unknown withdrawal flow %q", flowID), nil)
	}

	f.mu.Lock()
	switch f.phase {
	case model.PhaseIdle, model.PhaseApproving, model.PhaseApproved:
	default:
		phase := f.phase
		f.mu.Unlock()
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("cannot change parameters in phase %s", phase))
	}
	phase := f.phase
	approved := f.approvedAmount
	f.mu.Unlock()

	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil || !amount.IsPositive() {
			return nil, apperrors.NewInvalidAmount(fmt.Sprintf("unparseable amount %q", req.Amount))
		}
		// Re-validate like Start does: a changed amount goes through the
		// same withdrawable-balance gate, never straight to the chain.
		agg, err := s.aggregator.Aggregate(ctx, f.strategy, f.wallet)
		if err != nil {
			return nil, err
		}
		if amount.GreaterThan(agg.Withdrawable) {
			return nil, apperrors.NewInvalidAmount(
				fmt.Sprintf("amount %s exceeds withdrawable balance %s", amount, agg.Withdrawable))
		}
		if phase != model.PhaseIdle && amount.GreaterThan(approved) {
			return nil, apperrors.NewInvalidAmount(
				fmt.Sprintf("amount %s exceeds the approved %s; reset and start a new flow to raise it", amount, approved))
		}
		f.mu.Lock()
		f.amount = amount
		f.mu.Unlock()
	}
	if req.TargetAsset != "" {
		if !common.IsHexAddress(req.TargetAsset) {
			return nil, apperrors.NewInvalidRequest(fmt.Sprintf("invalid target asset %q", req.TargetAsset))
		}
		f.mu.Lock()
		f.targetAsset = common.HexToAddress(req.TargetAsset)
		f.mu.Unlock()
	}
	if req.TargetNetwork != "" {
		if !f.strategy.IsWithdrawable(req.TargetNetwork) {
			return nil, apperrors.NewInvalidRequest(fmt.Sprintf("network %q is not withdrawable", req.TargetNetwork))
		}
		f.mu.Lock()
		current := f.targetNetwork
		f.mu.Unlock()
		if req.TargetNetwork != current {
			// The approval lives on the network it was submitted to; a
			// different network needs a fresh flow and a fresh approval.
			if phase != model.PhaseIdle {
				return nil, apperrors.NewInvalidRequest(
					"cannot change target network after the approval was submitted; reset and start a new flow")
			}
			f.mu.Lock()
			f.targetNetwork = req.TargetNetwork
			f.mu.Unlock()
		}
	}

	s.refreshPreview(ctx, f)
	snapshot := s.snapshot(f)
	return &snapshot, nil
}

// Reset returns a terminal flow to Idle and frees the pair for a new
// start. The engine never auto-resets; the last outcome stays visible
// until the caller acknowledges it here.
func (s *WithdrawalService) Reset(flowID string) (*model.WithdrawalStatus, error) {
	f := s.flow(flowID)
	if f == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("unknown withdrawal flow %q", flowID), nil)
	}
	f.mu.Lock()
	if !f.phase.Terminal() {
		phase := f.phase
		f.mu.Unlock()
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("cannot reset flow in phase %s", phase))
	}
	f.mu.Unlock()

	s.transition(f, model.PhaseIdle, "")
	s.release(f)
	snapshot := s.snapshot(f)
	return &snapshot, nil
}

// Status returns the current snapshot of a flow.
func (s *WithdrawalService) Status(flowID string) (*model.WithdrawalStatus, error) {
	f := s.flow(flowID)
	if f == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("unknown withdrawal flow %q", flowID), nil)
	}
	snapshot := s.snapshot(f)
	return &snapshot, nil
}

// Subscribe returns a channel receiving every phase transition of the
// flow, plus a cancel func. Slow consumers drop updates rather than
// blocking the state machine.
func (s *WithdrawalService) Subscribe(flowID string) (<-chan model.WithdrawalStatus, func(), error) {
	f := s.flow(flowID)
	if f == nil {
		return nil, nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("unknown withdrawal flow %q", flowID), nil)
	}
	ch := make(chan model.WithdrawalStatus, 8)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	ch <- f.snapshotLocked()
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		delete(f.subscribers, ch)
		f.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *WithdrawalService) flow(id string) *flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flows[id]
}

func (s *WithdrawalService) snapshot(f *flow) model.WithdrawalStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (s *WithdrawalService) checkNetwork(target string) error {
	active := s.sender.ActiveNetwork()
	if active != target {
		return apperrors.New(apperrors.ErrWrongNetwork,
			fmt.Sprintf("wallet is on network %q, withdrawal targets %q", active, target), nil)
	}
	return nil
}

func (s *WithdrawalService) rawShares(f *flow) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.amount.Shift(int32(f.strategy.ShareDecimals)).BigInt()
}

func (s *WithdrawalService) refreshPreview(ctx context.Context, f *flow) {
	f.mu.Lock()
	network := f.targetNetwork
	asset := f.targetAsset
	f.mu.Unlock()

	solver := common.HexToAddress(f.strategy.SolverAddress)
	out, err := s.reader.PreviewAssetsOut(ctx, network, solver, asset, s.rawShares(f), s.cfg.Discount)
	if err != nil {
		logger.Warn("preview assets out failed", "flow", f.id, "error", err)
		return
	}
	assetDecimals, err := s.reader.Decimals(ctx, network, asset)
	if err != nil {
		assetDecimals = f.strategy.ShareDecimals
	}

	f.mu.Lock()
	f.preview = decimal.NewFromBigInt(out, -int32(assetDecimals))
	f.mu.Unlock()
}

func (s *WithdrawalService) transition(f *flow, phase model.Phase, reason string) {
	f.mu.Lock()
	f.phase = phase
	f.failureReason = reason
	f.updatedAt = time.Now().UTC()
	snapshot := f.snapshotLocked()
	for ch := range f.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
	f.mu.Unlock()

	metrics.WithdrawalTransitions.WithLabelValues(string(phase)).Inc()
	logger.Info("withdrawal phase transition",
		"flow", f.id, "strategy", f.strategy.ID, "wallet", snapshot.Wallet, "phase", phase, "reason", reason)
	s.persist(f)
}

func (s *WithdrawalService) fail(f *flow, appErr *apperrors.AppError) {
	s.transition(f, model.PhaseFailed, string(appErr.Type))
}

// release frees the pair reservation without touching the flow record.
func (s *WithdrawalService) release(f *flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(f.wallet, f.strategy.ID)
	if s.active[key] == f.id {
		delete(s.active, key)
	}
}

// discard drops a flow that never submitted anything; the pair state
// stays Idle as if start had been refused outright.
func (s *WithdrawalService) discard(f *flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(f.wallet, f.strategy.ID)
	if s.active[key] == f.id {
		delete(s.active, key)
	}
	delete(s.flows, f.id)
}

func (s *WithdrawalService) persist(f *flow) {
	if s.history == nil {
		return
	}
	snapshot := s.snapshot(f)
	record := &model.WithdrawalRecord{
		FlowID:         snapshot.FlowID,
		StrategyID:     snapshot.StrategyID,
		Wallet:         snapshot.Wallet,
		TargetAsset:    snapshot.TargetAsset,
		TargetNetwork:  snapshot.TargetNetwork,
		Amount:         snapshot.Amount.String(),
		Phase:          string(snapshot.Phase),
		FailureReason:  snapshot.FailureReason,
		ApproveTxHash:  snapshot.ApproveTxHash,
		WithdrawTxHash: snapshot.WithdrawTxHash,
		UpdatedAt:      snapshot.UpdatedAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.Upsert(ctx, record); err != nil {
		logger.Warn("failed to persist withdrawal record", "flow", f.id, "error", err)
	}
}

func (s *WithdrawalService) vaultAddress(strategy *config.StrategyConfig) string {
	network := withdrawNetwork(strategy)
	if network == "" {
		network = sortedNetworks(strategy)[0]
	}
	return strategy.Networks[network].VaultShareAddress
}

// submissionError normalizes transaction-phase failures so the caller
// can tell "user declined" from "reverted on-chain" from "endpoint
// down".
func submissionError(err error) *apperrors.AppError {
	if appErr, ok := err.(*apperrors.AppError); ok {
		return appErr
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "denied") || strings.Contains(msg, "rejected") {
		return apperrors.New(apperrors.ErrUserRejected, "signature rejected by wallet", err)
	}
	return apperrors.New(apperrors.ErrTransactionFailed, err.Error(), err)
}
