package splitpay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wsjung2023/TravelConnect-sub001/internal/logging"
	"github.com/wsjung2023/TravelConnect-sub001/internal/money"
	"github.com/wsjung2023/TravelConnect-sub001/internal/traces"
)

// amountTolerance is the largest accepted gap between a paid amount and the
// milestone amount (0.01).
var amountTolerance = big.NewInt(1)

// CreateContractRequest contains the parameters for creating a contract.
type CreateContractRequest struct {
	RequesterID string `json:"requesterId" binding:"required"`
	ProviderID  string `json:"providerId" binding:"required"`
	TotalAmount string `json:"totalAmount" binding:"required"`
	Currency    string `json:"currency"`
}

// PaymentResult is returned by a successful milestone payment.
type PaymentResult struct {
	Transaction   *Transaction `json:"transaction"`
	NextMilestone Milestone    `json:"nextMilestone"`
}

// Service implements split payment business logic.
type Service struct {
	store      Store
	logger     *slog.Logger
	feePercent float64
	currency   string
	now        func() time.Time
}

// NewService creates a new split payment service.
func NewService(store Store) *Service {
	return &Service{
		store:      store,
		logger:     slog.Default(),
		feePercent: DefaultPlatformFeePercent,
		currency:   DefaultCurrency,
		now:        time.Now,
	}
}

// WithLogger sets a structured logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithPlatformFeePercent overrides the informational platform fee rate.
func (s *Service) WithPlatformFeePercent(p float64) *Service {
	s.feePercent = p
	return s
}

// WithDefaultCurrency sets the currency used when a contract names none.
func (s *Service) WithDefaultCurrency(c string) *Service {
	if c != "" {
		s.currency = strings.ToUpper(c)
	}
	return s
}

// WithClock replaces the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	if reqID := logging.RequestID(ctx); reqID != "" {
		return s.logger.With("request_id", reqID)
	}
	return s.logger
}

// fail converts unexpected store errors into ErrOperationFailed after
// logging them. Domain errors pass through untouched.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	if err == nil || KindOf(err) != KindInternal {
		return err
	}
	s.log(ctx).Error(op+" failed", "error", err)
	return fmt.Errorf("%s: %w: %w", op, ErrOperationFailed, err)
}

// CreateContract creates an active contract awaiting payment setup.
func (s *Service) CreateContract(ctx context.Context, req CreateContractRequest) (c *Contract, err error) {
	done := observeOp("create_contract")
	defer func() { done(err) }()

	if strings.TrimSpace(req.RequesterID) == "" || strings.TrimSpace(req.ProviderID) == "" {
		return nil, fmt.Errorf("%w: requesterId and providerId are required", ErrInvalidRequest)
	}
	total, ok := money.Parse(req.TotalAmount)
	if !ok || total.Sign() <= 0 {
		return nil, fmt.Errorf("%w: totalAmount %q", ErrInvalidAmount, req.TotalAmount)
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.currency
	}

	now := s.now()
	c = &Contract{
		ID:            generateID("ctr_"),
		RequesterID:   req.RequesterID,
		ProviderID:    req.ProviderID,
		TotalAmount:   money.Format(total),
		Currency:      currency,
		DepositAmount: "0.00",
		InterimAmount: "0.00",
		FinalAmount:   "0.00",
		Status:        ContractActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateContract(ctx, c); err != nil {
		return nil, s.fail(ctx, "create contract", err)
	}
	return c, nil
}

// SetupSplitPayment records the payment plan on a contract and creates one
// pending escrow transaction per non-zero milestone.
func (s *Service) SetupSplitPayment(ctx context.Context, contractID string, cfg PlanConfig) (txs []*Transaction, err error) {
	ctx, span := traces.StartSpan(ctx, "splitpay.SetupSplitPayment", traces.ContractID(contractID))
	done := observeOp("setup")
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		c, err := tx.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		if c.Status != ContractActive {
			return fmt.Errorf("%w: contract status is %s", ErrInvalidStatus, c.Status)
		}
		existing, err := tx.ListTransactions(ctx, contractID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrAlreadySetUp
		}

		total, ok := money.Parse(c.TotalAmount)
		if !ok {
			return fmt.Errorf("%w: contract total %q", ErrInvalidAmount, c.TotalAmount)
		}
		amounts := CalculateMilestoneAmounts(total, cfg)
		now := s.now()

		c.PaymentPlan = cfg.Plan
		c.DepositRate = cfg.DepositRate
		c.InterimRate = cfg.InterimRate
		c.FinalRate = cfg.FinalRate
		c.DepositAmount = money.Format(amounts.Deposit)
		c.InterimAmount = money.Format(amounts.Interim)
		c.FinalAmount = money.Format(amounts.Final)
		c.DepositDueDate = dateOfPtr(cfg.DepositDueDate)
		c.InterimDueDate = dateOfPtr(cfg.InterimDueDate)
		c.FinalDueDate = dateOfPtr(cfg.FinalDueDate)
		c.CurrentMilestone = MilestoneDeposit
		c.UpdatedAt = now
		if err := tx.UpdateContract(ctx, c); err != nil {
			return err
		}

		plan := []struct {
			milestone Milestone
			amount    *big.Int
			due       *time.Time
		}{
			{MilestoneDeposit, amounts.Deposit, c.DepositDueDate},
			{MilestoneInterim, amounts.Interim, c.InterimDueDate},
			{MilestoneFinal, amounts.Final, c.FinalDueDate},
		}
		created := make([]*Transaction, 0, len(plan))
		for _, p := range plan {
			if p.amount.Sign() == 0 {
				continue
			}
			t := &Transaction{
				ID:                generateID("etx_"),
				ContractID:        c.ID,
				MilestoneType:     p.milestone,
				Amount:            money.Format(p.amount),
				RefundedAmount:    "0.00",
				OutstandingAmount: money.Format(p.amount),
				Currency:          c.Currency,
				Status:            TxPending,
				PlatformFee:       money.Format(money.RoundPercent(p.amount, s.feePercent)),
				DueDate:           p.due,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := tx.CreateTransaction(ctx, t); err != nil {
				return err
			}
			created = append(created, t)
		}
		txs = created
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "setup split payment", err)
	}

	s.log(ctx).Info("split payment set up",
		"contract_id", contractID, "plan", cfg.Plan, "milestones", len(txs))
	return txs, nil
}

// ProcessMilestonePayment marks a pending milestone funded after the PSP
// confirmed payment, credits the provider's pending balance and advances the
// contract's milestone pointer.
func (s *Service) ProcessMilestonePayment(ctx context.Context, transactionID, paymentID, paymentMethod, paidAmount string) (res *PaymentResult, err error) {
	ctx, span := traces.StartSpan(ctx, "splitpay.ProcessMilestonePayment",
		traces.TransactionID(transactionID), traces.PaymentID(paymentID), traces.Amount(paidAmount))
	done := observeOp("process_payment")
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	if strings.TrimSpace(paymentID) == "" {
		return nil, fmt.Errorf("%w: paymentId is required", ErrInvalidRequest)
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		t, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		// A redelivered confirmation finds its own paymentID already recorded.
		if t.PaymentID != "" && t.PaymentID == paymentID &&
			(t.Status == TxFunded || t.Status == TxReleased) {
			return ErrDuplicatePayment
		}
		if t.Status != TxPending {
			return fmt.Errorf("%w: %s", ErrInvalidStatus, t.Status)
		}

		c, err := tx.GetContract(ctx, t.ContractID)
		if err != nil {
			return err
		}
		if c.Status != ContractActive {
			return fmt.Errorf("%w: contract is %s", ErrInvalidStatus, c.Status)
		}

		other, err := tx.FindTransactionByPaymentID(ctx, paymentID)
		switch {
		case err == nil && other.ID != t.ID:
			return ErrPaymentIDUsed
		case err != nil && !errors.Is(err, ErrTransactionNotFound):
			return err
		}

		expected, ok := money.Parse(t.Amount)
		if !ok {
			return fmt.Errorf("%w: stored amount %q", ErrInvalidAmount, t.Amount)
		}
		// The PSP may report sub-cent precision; compare exactly.
		paid, ok := money.ParseExact(paidAmount)
		if !ok || !money.WithinExact(paid, expected, amountTolerance) {
			return fmt.Errorf("%w: expected %s, got %q", ErrAmountMismatch, t.Amount, paidAmount)
		}

		now := s.now()
		t.Status = TxFunded
		t.PaymentID = paymentID
		t.PaymentMethod = paymentMethod
		t.FundedAt = &now
		t.UpdatedAt = now
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		if err := s.adjustBalances(ctx, tx, c.ProviderID, t.Currency, expected, nil, now); err != nil {
			return err
		}
		next, err := s.advanceMilestone(ctx, tx, c, t.MilestoneType, now)
		if err != nil {
			return err
		}

		res = &PaymentResult{Transaction: t, NextMilestone: next}
		return nil
	})
	if err != nil {
		switch KindOf(err) {
		case KindAmountMismatch:
			AmountMismatchTotal.Inc()
			s.log(ctx).Error("ALERT: milestone payment amount mismatch",
				"alert", "amount_mismatch",
				"transaction_id", transactionID,
				"payment_id", paymentID,
				"paid_amount", paidAmount,
				"error", err)
		case KindIdempotency:
			IdempotencyConflictsTotal.WithLabelValues(idempotencyLabel(err)).Inc()
			s.log(ctx).Warn("replayed milestone payment rejected",
				"transaction_id", transactionID, "payment_id", paymentID, "error", err)
		}
		return nil, s.fail(ctx, "process milestone payment", err)
	}

	s.log(ctx).Info("milestone funded",
		"transaction_id", transactionID,
		"payment_id", paymentID,
		"milestone", res.Transaction.MilestoneType,
		"amount", res.Transaction.Amount,
		"next_milestone", res.NextMilestone)
	return res, nil
}

func idempotencyLabel(err error) string {
	if errors.Is(err, ErrPaymentIDUsed) {
		return "payment_id_reused"
	}
	return "duplicate_payment"
}

// advanceMilestone moves the contract's milestone pointer past completed and
// persists it.
func (s *Service) advanceMilestone(ctx context.Context, tx Tx, c *Contract, completed Milestone, now time.Time) (Milestone, error) {
	next := nextMilestone(c.PaymentPlan, completed)
	c.CurrentMilestone = next
	c.UpdatedAt = now
	if err := tx.UpdateContract(ctx, c); err != nil {
		return "", err
	}
	return next, nil
}

// ReleaseMilestone hands a funded milestone over to the provider: the amount
// moves from pending to withdrawable balance.
func (s *Service) ReleaseMilestone(ctx context.Context, transactionID string) (t *Transaction, err error) {
	ctx, span := traces.StartSpan(ctx, "splitpay.ReleaseMilestone", traces.TransactionID(transactionID))
	done := observeOp("release")
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	err = s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		t, err = tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if t.Status == TxReleased {
			return ErrAlreadyReleased
		}
		if t.Status != TxFunded {
			return fmt.Errorf("%w: cannot release: status is %s", ErrInvalidStatus, t.Status)
		}

		amount, ok := money.Parse(t.Amount)
		if !ok {
			return fmt.Errorf("%w: stored amount %q", ErrInvalidAmount, t.Amount)
		}
		now := s.now()
		t.Status = TxReleased
		t.ReleasedAt = &now
		t.UpdatedAt = now
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}

		c, err := tx.GetContract(ctx, t.ContractID)
		if err != nil {
			return err
		}
		return s.adjustBalances(ctx, tx, c.ProviderID, t.Currency, new(big.Int).Neg(amount), amount, now)
	})
	if err != nil {
		return nil, s.fail(ctx, "release milestone", err)
	}

	s.log(ctx).Info("milestone released",
		"transaction_id", transactionID, "contract_id", t.ContractID, "amount", t.Amount)
	return t, nil
}

// ProcessPartialRefund returns refundAmount of a paid milestone to the
// requester, clawing it back from wherever the provider's funds sit.
func (s *Service) ProcessPartialRefund(ctx context.Context, transactionID, refundAmount, reason string) (t *Transaction, err error) {
	ctx, span := traces.StartSpan(ctx, "splitpay.ProcessPartialRefund",
		traces.TransactionID(transactionID), traces.Amount(refundAmount))
	done := observeOp("partial_refund")
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	refund, ok := money.Parse(refundAmount)
	if !ok || refund.Sign() <= 0 {
		return nil, fmt.Errorf("%w: refund amount %q", ErrInvalidAmount, refundAmount)
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		t, err = tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if !t.Status.Refundable() {
			return fmt.Errorf("%w: cannot refund: status is %s", ErrInvalidStatus, t.Status)
		}

		amount, ok1 := money.Parse(t.Amount)
		refunded, ok2 := money.Parse(t.RefundedAmount)
		if !ok1 || !ok2 {
			return fmt.Errorf("%w: stored amounts %q/%q", ErrInvalidAmount, t.Amount, t.RefundedAmount)
		}
		totalRefunded := new(big.Int).Add(refunded, refund)
		if totalRefunded.Cmp(amount) > 0 {
			return fmt.Errorf("%w: at most %s remains refundable", ErrRefundExceeds,
				money.Format(new(big.Int).Sub(amount, refunded)))
		}

		// Released funds sit in withdrawable; anything else is still pending.
		fromWithdrawable := t.ReleasedAt != nil

		now := s.now()
		outstanding := new(big.Int).Sub(amount, totalRefunded)
		t.RefundedAmount = money.Format(totalRefunded)
		t.OutstandingAmount = money.Format(outstanding)
		t.RefundReason = reason
		t.UpdatedAt = now
		if outstanding.Sign() == 0 {
			t.Status = TxRefunded
			t.RefundedAt = &now
		} else {
			t.Status = TxPartialRefund
		}
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}

		c, err := tx.GetContract(ctx, t.ContractID)
		if err != nil {
			return err
		}
		deduct := new(big.Int).Neg(refund)
		if fromWithdrawable {
			return s.adjustBalances(ctx, tx, c.ProviderID, t.Currency, nil, deduct, now)
		}
		return s.adjustBalances(ctx, tx, c.ProviderID, t.Currency, deduct, nil, now)
	})
	if err != nil {
		return nil, s.fail(ctx, "process partial refund", err)
	}

	s.log(ctx).Info("milestone refunded",
		"transaction_id", transactionID,
		"refund", money.Format(refund),
		"status", t.Status,
		"outstanding", t.OutstandingAmount)
	return t, nil
}

// ProcessFullRefund refunds everything still held for a contract and cancels
// it. It returns the IDs of the transactions it refunded.
func (s *Service) ProcessFullRefund(ctx context.Context, contractID, reason string) (ids []string, err error) {
	ctx, span := traces.StartSpan(ctx, "splitpay.ProcessFullRefund", traces.ContractID(contractID))
	done := observeOp("full_refund")
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	err = s.store.WithTx(ctx, func(tx Tx) error {
		c, err := tx.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		txs, err := tx.ListTransactions(ctx, contractID)
		if err != nil {
			return err
		}

		now := s.now()
		fromPending := new(big.Int)
		fromWithdrawable := new(big.Int)
		affected := make([]string, 0, len(txs))

		for _, t := range txs {
			if !t.Status.Refundable() {
				continue
			}
			amount, ok1 := money.Parse(t.Amount)
			refunded, ok2 := money.Parse(t.RefundedAmount)
			if !ok1 || !ok2 {
				return fmt.Errorf("%w: stored amounts %q/%q", ErrInvalidAmount, t.Amount, t.RefundedAmount)
			}
			remaining := new(big.Int).Sub(amount, refunded)
			if remaining.Sign() <= 0 {
				continue
			}

			if t.ReleasedAt != nil {
				fromWithdrawable.Add(fromWithdrawable, remaining)
			} else {
				fromPending.Add(fromPending, remaining)
			}

			t.Status = TxRefunded
			t.RefundedAmount = t.Amount
			t.OutstandingAmount = "0.00"
			t.RefundReason = reason
			t.RefundedAt = &now
			t.UpdatedAt = now
			if err := tx.UpdateTransaction(ctx, t); err != nil {
				return err
			}
			affected = append(affected, t.ID)
		}

		if fromPending.Sign() > 0 || fromWithdrawable.Sign() > 0 {
			if err := s.adjustBalances(ctx, tx, c.ProviderID, c.Currency,
				new(big.Int).Neg(fromPending), new(big.Int).Neg(fromWithdrawable), now); err != nil {
				return err
			}
		}

		// A repeated full refund keeps the first cancellation's reason and time.
		if c.Status != ContractCancelled {
			c.Status = ContractCancelled
			c.CancellationReason = reason
			c.CancelledAt = &now
		}
		c.UpdatedAt = now
		if err := tx.UpdateContract(ctx, c); err != nil {
			return err
		}
		ids = affected
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "process full refund", err)
	}

	s.log(ctx).Info("contract fully refunded",
		"contract_id", contractID, "transactions", len(ids), "reason", reason)
	return ids, nil
}

// CheckAllMilestonesComplete reports whether every escrow transaction of the
// contract has been released. A contract without transactions is not complete.
func (s *Service) CheckAllMilestonesComplete(ctx context.Context, contractID string) (complete bool, err error) {
	ctx, span := traces.StartSpan(ctx, "splitpay.CheckAllMilestonesComplete", traces.ContractID(contractID))
	done := observeOp("check_complete")
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	txs, err := s.store.ListTransactions(ctx, contractID)
	if err != nil {
		return false, s.fail(ctx, "check milestones", err)
	}
	return allReleased(txs), nil
}

func allReleased(txs []*Transaction) bool {
	if len(txs) == 0 {
		return false
	}
	for _, t := range txs {
		if t.Status != TxReleased {
			return false
		}
	}
	return true
}

// CompleteContract marks a contract completed once all milestones are released.
func (s *Service) CompleteContract(ctx context.Context, contractID string) (c *Contract, err error) {
	ctx, span := traces.StartSpan(ctx, "splitpay.CompleteContract", traces.ContractID(contractID))
	done := observeOp("complete")
	defer func() {
		done(err)
		traces.End(span, err)
	}()

	err = s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		c, err = tx.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		txs, err := tx.ListTransactions(ctx, contractID)
		if err != nil {
			return err
		}
		if !allReleased(txs) {
			return ErrNotAllReleased
		}

		now := s.now()
		c.Status = ContractCompleted
		c.CurrentMilestone = MilestoneCompleted
		c.CompletedAt = &now
		c.UpdatedAt = now
		return tx.UpdateContract(ctx, c)
	})
	if err != nil {
		return nil, s.fail(ctx, "complete contract", err)
	}

	s.log(ctx).Info("contract completed", "contract_id", contractID)
	return c, nil
}

// GetOverdueMilestones returns pending transactions whose due date is before
// today. Only the calendar date is compared.
func (s *Service) GetOverdueMilestones(ctx context.Context) ([]*Transaction, error) {
	txs, err := s.store.ListOverdue(ctx, dateOf(s.now()))
	if err != nil {
		return nil, s.fail(ctx, "list overdue milestones", err)
	}
	return txs, nil
}

// GetContract returns a contract by ID.
func (s *Service) GetContract(ctx context.Context, id string) (*Contract, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get contract", err)
	}
	return c, nil
}

// GetTransaction returns an escrow transaction by ID.
func (s *Service) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get transaction", err)
	}
	return t, nil
}

// ListTransactions returns a contract's escrow transactions in milestone order.
func (s *Service) ListTransactions(ctx context.Context, contractID string) ([]*Transaction, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, s.fail(ctx, "list transactions", err)
	}
	txs, err := s.store.ListTransactions(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, "list transactions", err)
	}
	return txs, nil
}

// GetAccount returns a provider's escrow account.
func (s *Service) GetAccount(ctx context.Context, userID string) (*Account, error) {
	a, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "get account", err)
	}
	return a, nil
}

// adjustBalances applies signed deltas to a provider's escrow account,
// clamping both balances at zero. nil deltas leave a balance untouched. The
// account is created on demand when a delta is positive; deductions against a
// missing account are logged and skipped.
func (s *Service) adjustBalances(ctx context.Context, tx Tx, userID, currency string, pendingDelta, withdrawableDelta *big.Int, now time.Time) error {
	if pendingDelta == nil {
		pendingDelta = new(big.Int)
	}
	if withdrawableDelta == nil {
		withdrawableDelta = new(big.Int)
	}

	a, err := tx.GetAccount(ctx, userID)
	if errors.Is(err, ErrAccountNotFound) {
		if pendingDelta.Sign() <= 0 && withdrawableDelta.Sign() <= 0 {
			s.log(ctx).Warn("balance deduction skipped: no escrow account",
				"user_id", userID,
				"pending_delta", money.Format(pendingDelta),
				"withdrawable_delta", money.Format(withdrawableDelta))
			return nil
		}
		if currency == "" {
			currency = s.currency
		}
		a = &Account{
			UserID:              userID,
			AccountType:         AccountTypeHost,
			Currency:            currency,
			PendingBalance:      money.Format(money.SubFloor(pendingDelta, big.NewInt(0))),
			WithdrawableBalance: money.Format(money.SubFloor(withdrawableDelta, big.NewInt(0))),
			KYCStatus:           "pending",
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		return tx.CreateAccount(ctx, a)
	}
	if err != nil {
		return err
	}

	pending, ok1 := money.Parse(a.PendingBalance)
	withdrawable, ok2 := money.Parse(a.WithdrawableBalance)
	if !ok1 || !ok2 {
		return fmt.Errorf("%w: stored balances %q/%q", ErrInvalidAmount, a.PendingBalance, a.WithdrawableBalance)
	}
	pending.Add(pending, pendingDelta)
	withdrawable.Add(withdrawable, withdrawableDelta)

	a.PendingBalance = money.Format(money.SubFloor(pending, big.NewInt(0)))
	a.WithdrawableBalance = money.Format(money.SubFloor(withdrawable, big.NewInt(0)))
	a.UpdatedAt = now
	return tx.UpdateAccount(ctx, a)
}

// generateID returns prefix followed by a random UUID without dashes.
func generateID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
