package splitpay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	svc := NewService(store).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(func() time.Time { return testNow })
	return svc, store
}

func createContract(t *testing.T, svc *Service, total string) *Contract {
	t.Helper()
	c, err := svc.CreateContract(context.Background(), CreateContractRequest{
		RequesterID: "guest_1",
		ProviderID:  "host_1",
		TotalAmount: total,
	})
	require.NoError(t, err)
	return c
}

func setupContract(t *testing.T, svc *Service, total string, plan Plan) (*Contract, []*Transaction) {
	t.Helper()
	c := createContract(t, svc, total)
	txs, err := svc.SetupSplitPayment(context.Background(), c.ID, DefaultConfig(plan))
	require.NoError(t, err)
	return c, txs
}

func requireAccount(t *testing.T, svc *Service, pending, withdrawable string) {
	t.Helper()
	a, err := svc.GetAccount(context.Background(), "host_1")
	require.NoError(t, err)
	assert.Equal(t, pending, a.PendingBalance, "pending balance")
	assert.Equal(t, withdrawable, a.WithdrawableBalance, "withdrawable balance")
}

func TestService_CreateContract(t *testing.T) {
	svc, _ := newTestService()

	c := createContract(t, svc, "1000")
	assert.Equal(t, "1000.00", c.TotalAmount)
	assert.Equal(t, "USD", c.Currency)
	assert.Equal(t, ContractActive, c.Status)

	_, err := svc.CreateContract(context.Background(), CreateContractRequest{
		RequesterID: "guest_1", ProviderID: "host_1", TotalAmount: "abc",
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CreateContract(context.Background(), CreateContractRequest{
		RequesterID: "guest_1", TotalAmount: "10",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestService_ThreeStepScenario(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	c, txs := setupContract(t, svc, "1000", PlanThreeStep)
	require.Len(t, txs, 3)
	assert.Equal(t, MilestoneDeposit, txs[0].MilestoneType)
	assert.Equal(t, "300.00", txs[0].Amount)
	assert.Equal(t, "300.00", txs[1].Amount)
	assert.Equal(t, "400.00", txs[2].Amount)
	assert.Equal(t, "36.00", txs[0].PlatformFee)
	assert.Equal(t, "48.00", txs[2].PlatformFee)
	for _, tx := range txs {
		assert.Equal(t, TxPending, tx.Status)
		assert.Equal(t, tx.Amount, tx.OutstandingAmount)
	}

	res, err := svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	require.NoError(t, err)
	assert.Equal(t, MilestoneInterim, res.NextMilestone)
	assert.Equal(t, TxFunded, res.Transaction.Status)
	assert.Equal(t, "p1", res.Transaction.PaymentID)
	require.NotNil(t, res.Transaction.FundedAt)

	got, err := svc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, MilestoneInterim, got.CurrentMilestone)
	requireAccount(t, svc, "300.00", "0.00")

	_, err = svc.ReleaseMilestone(ctx, txs[0].ID)
	require.NoError(t, err)
	requireAccount(t, svc, "0.00", "300.00")

	refunded, err := svc.ProcessPartialRefund(ctx, txs[0].ID, "100", "late cancellation")
	require.NoError(t, err)
	assert.Equal(t, TxPartialRefund, refunded.Status)
	assert.Equal(t, "100.00", refunded.RefundedAmount)
	assert.Equal(t, "200.00", refunded.OutstandingAmount)
	assert.Equal(t, "late cancellation", refunded.RefundReason)
	requireAccount(t, svc, "0.00", "200.00")
}

func TestService_SetupSplitPayment(t *testing.T) {
	t.Run("amounts sum to total", func(t *testing.T) {
		svc, _ := newTestService()
		c, txs := setupContract(t, svc, "1000.33", PlanThreeStep)
		require.Len(t, txs, 3)
		assert.Equal(t, "300.00", txs[0].Amount)
		assert.Equal(t, "300.00", txs[1].Amount)
		assert.Equal(t, "400.33", txs[2].Amount)

		got, err := svc.GetContract(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Equal(t, PlanThreeStep, got.PaymentPlan)
		assert.Equal(t, "300.00", got.DepositAmount)
		assert.Equal(t, "400.33", got.FinalAmount)
		assert.Equal(t, MilestoneDeposit, got.CurrentMilestone)
	})

	t.Run("two step skips interim", func(t *testing.T) {
		svc, _ := newTestService()
		_, txs := setupContract(t, svc, "500", PlanTwoStep)
		require.Len(t, txs, 2)
		assert.Equal(t, MilestoneDeposit, txs[0].MilestoneType)
		assert.Equal(t, "150.00", txs[0].Amount)
		assert.Equal(t, MilestoneFinal, txs[1].MilestoneType)
		assert.Equal(t, "350.00", txs[1].Amount)
	})

	t.Run("single", func(t *testing.T) {
		svc, _ := newTestService()
		_, txs := setupContract(t, svc, "99.99", PlanSingle)
		require.Len(t, txs, 1)
		assert.Equal(t, "99.99", txs[0].Amount)
	})

	t.Run("due dates are stored as dates", func(t *testing.T) {
		svc, _ := newTestService()
		c := createContract(t, svc, "1000")
		cfg := DefaultConfig(PlanTwoStep)
		due := time.Date(2025, 7, 1, 18, 30, 0, 0, time.UTC)
		cfg.DepositDueDate = &due

		txs, err := svc.SetupSplitPayment(context.Background(), c.ID, cfg)
		require.NoError(t, err)
		require.NotNil(t, txs[0].DueDate)
		assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), *txs[0].DueDate)
		assert.Nil(t, txs[1].DueDate)
	})

	t.Run("invalid config", func(t *testing.T) {
		svc, _ := newTestService()
		c := createContract(t, svc, "1000")
		_, err := svc.SetupSplitPayment(context.Background(), c.ID, PlanConfig{
			Plan: PlanSingle, DepositRate: 90, FinalRate: 10,
		})
		assert.ErrorIs(t, err, ErrInvalidConfig)

		txs, err := svc.ListTransactions(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Empty(t, txs)
	})

	t.Run("called twice", func(t *testing.T) {
		svc, _ := newTestService()
		c, _ := setupContract(t, svc, "1000", PlanThreeStep)
		_, err := svc.SetupSplitPayment(context.Background(), c.ID, DefaultConfig(PlanThreeStep))
		assert.ErrorIs(t, err, ErrAlreadySetUp)

		txs, err := svc.ListTransactions(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 3)
	})

	t.Run("unknown contract", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.SetupSplitPayment(context.Background(), "ctr_missing", DefaultConfig(PlanSingle))
		assert.ErrorIs(t, err, ErrContractNotFound)
	})
}

func TestService_MilestoneProgression(t *testing.T) {
	tests := []struct {
		plan Plan
		want []Milestone
	}{
		{PlanSingle, []Milestone{MilestoneCompleted}},
		{PlanTwoStep, []Milestone{MilestoneFinal, MilestoneCompleted}},
		{PlanThreeStep, []Milestone{MilestoneInterim, MilestoneFinal, MilestoneCompleted}},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			svc, _ := newTestService()
			c, txs := setupContract(t, svc, "1000", tt.plan)
			require.Len(t, txs, len(tt.want))

			for i, tx := range txs {
				res, err := svc.ProcessMilestonePayment(context.Background(), tx.ID, "pay_"+tx.ID, "card", tx.Amount)
				require.NoError(t, err)
				assert.Equal(t, tt.want[i], res.NextMilestone)
			}

			got, err := svc.GetContract(context.Background(), c.ID)
			require.NoError(t, err)
			assert.Equal(t, MilestoneCompleted, got.CurrentMilestone)
		})
	}
}

func TestService_PaymentIdempotency(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, txs := setupContract(t, svc, "1000", PlanThreeStep)

	_, err := svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300.00")
	require.NoError(t, err)

	_, err = svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300.00")
	assert.ErrorIs(t, err, ErrDuplicatePayment)
	assert.Equal(t, KindIdempotency, KindOf(err))

	_, err = svc.ProcessMilestonePayment(ctx, txs[1].ID, "p1", "card", "300.00")
	assert.ErrorIs(t, err, ErrPaymentIDUsed)

	interim, err := svc.GetTransaction(ctx, txs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, TxPending, interim.Status)
	assert.Empty(t, interim.PaymentID)
	requireAccount(t, svc, "300.00", "0.00")

	_, err = svc.ProcessMilestonePayment(ctx, txs[1].ID, "", "card", "300.00")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestService_PaymentAmountMismatch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, txs := setupContract(t, svc, "1000", PlanThreeStep)

	for _, paid := range []string{"299.98", "300.02", "300.011", "299.989", "0", "-300", "lots", "3e2"} {
		_, err := svc.ProcessMilestonePayment(ctx, txs[0].ID, "p_"+paid, "card", paid)
		assert.ErrorIs(t, err, ErrAmountMismatch, "paid %s", paid)
	}

	tx, err := svc.GetTransaction(ctx, txs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, TxPending, tx.Status)

	_, err = svc.GetAccount(ctx, "host_1")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	// Within one cent is accepted, sub-cent precision included. The
	// provider is credited the milestone amount, not the reported one.
	mismatchBefore := counterValue(t, AmountMismatchTotal)
	for i, paid := range []string{"300.005", "299.995", "399.99"} {
		_, err = svc.ProcessMilestonePayment(ctx, txs[i].ID, "p_ok_"+paid, "card", paid)
		require.NoError(t, err, "paid %s", paid)
	}
	assert.Equal(t, mismatchBefore, counterValue(t, AmountMismatchTotal))
	requireAccount(t, svc, "1000.00", "0.00")
}

func TestService_PaymentRequiresPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, txs := setupContract(t, svc, "1000", PlanTwoStep)

	_, err := svc.ProcessMilestonePayment(ctx, "etx_missing", "p1", "card", "1")
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	require.NoError(t, err)
	_, err = svc.ReleaseMilestone(ctx, txs[0].ID)
	require.NoError(t, err)

	_, err = svc.ProcessMilestonePayment(ctx, txs[0].ID, "p2", "card", "300")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestService_RedeliveredPaymentAfterRefund(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, txs := setupContract(t, svc, "1000", PlanTwoStep)

	_, err := svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	require.NoError(t, err)
	_, err = svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	assert.ErrorIs(t, err, ErrDuplicatePayment, "funded")

	_, err = svc.ReleaseMilestone(ctx, txs[0].ID)
	require.NoError(t, err)
	_, err = svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	assert.ErrorIs(t, err, ErrDuplicatePayment, "released")

	_, err = svc.ProcessPartialRefund(ctx, txs[0].ID, "100", "")
	require.NoError(t, err)
	_, err = svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Contains(t, err.Error(), "partial_refund")

	_, err = svc.ProcessPartialRefund(ctx, txs[0].ID, "200", "")
	require.NoError(t, err)
	_, err = svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Contains(t, err.Error(), "refunded")
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestService_PaymentOnCancelledContract(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c, txs := setupContract(t, svc, "1000", PlanTwoStep)

	_, err := svc.ProcessFullRefund(ctx, c.ID, "trip cancelled")
	require.NoError(t, err)

	_, err = svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Contains(t, err.Error(), "cancelled")

	tx, err := svc.GetTransaction(ctx, txs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, TxPending, tx.Status)
	assert.Empty(t, tx.PaymentID)

	got, err := svc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, MilestoneDeposit, got.CurrentMilestone)
	_, err = svc.GetAccount(ctx, "host_1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestService_ReleaseMilestone(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, txs := setupContract(t, svc, "1000", PlanThreeStep)

	_, err := svc.ReleaseMilestone(ctx, txs[0].ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Contains(t, err.Error(), "cannot release")

	_, err = svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	require.NoError(t, err)
	_, err = svc.ProcessMilestonePayment(ctx, txs[1].ID, "p2", "card", "300")
	require.NoError(t, err)
	requireAccount(t, svc, "600.00", "0.00")

	released, err := svc.ReleaseMilestone(ctx, txs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, TxReleased, released.Status)
	require.NotNil(t, released.ReleasedAt)
	requireAccount(t, svc, "300.00", "300.00")

	_, err = svc.ReleaseMilestone(ctx, txs[0].ID)
	assert.ErrorIs(t, err, ErrAlreadyReleased)
	requireAccount(t, svc, "300.00", "300.00")

	_, err = svc.ReleaseMilestone(ctx, "etx_missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestService_PartialRefundExhaustion(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, txs := setupContract(t, svc, "1000", PlanThreeStep)
	_, err := svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	require.NoError(t, err)

	tx, err := svc.ProcessPartialRefund(ctx, txs[0].ID, "100", "")
	require.NoError(t, err)
	assert.Equal(t, TxPartialRefund, tx.Status)
	requireAccount(t, svc, "200.00", "0.00")

	_, err = svc.ProcessPartialRefund(ctx, txs[0].ID, "250", "")
	assert.ErrorIs(t, err, ErrRefundExceeds)
	assert.Contains(t, err.Error(), "200.00")

	tx, err = svc.GetTransaction(ctx, txs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", tx.RefundedAmount)
	requireAccount(t, svc, "200.00", "0.00")

	tx, err = svc.ProcessPartialRefund(ctx, txs[0].ID, "200", "")
	require.NoError(t, err)
	assert.Equal(t, TxRefunded, tx.Status)
	assert.Equal(t, "0.00", tx.OutstandingAmount)
	assert.Equal(t, "300.00", tx.RefundedAmount)
	require.NotNil(t, tx.RefundedAt)
	requireAccount(t, svc, "0.00", "0.00")

	_, err = svc.ProcessPartialRefund(ctx, txs[0].ID, "1", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestService_PartialRefundValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, txs := setupContract(t, svc, "1000", PlanThreeStep)

	_, err := svc.ProcessPartialRefund(ctx, txs[0].ID, "50", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	for _, amt := range []string{"0", "-5", "abc", ""} {
		_, err = svc.ProcessPartialRefund(ctx, txs[0].ID, amt, "")
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %q", amt)
	}
}

func TestService_RefundClampsBalance(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	_, txs := setupContract(t, svc, "1000", PlanThreeStep)
	_, err := svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	require.NoError(t, err)

	// Balance drifted below what the milestone put in.
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		a, err := tx.GetAccount(ctx, "host_1")
		if err != nil {
			return err
		}
		a.PendingBalance = "10.00"
		return tx.UpdateAccount(ctx, a)
	}))

	_, err = svc.ProcessPartialRefund(ctx, txs[0].ID, "100", "")
	require.NoError(t, err)
	requireAccount(t, svc, "0.00", "0.00")
}

func TestService_ProcessFullRefund(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c, txs := setupContract(t, svc, "1000", PlanThreeStep)

	_, err := svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	require.NoError(t, err)
	_, err = svc.ReleaseMilestone(ctx, txs[0].ID)
	require.NoError(t, err)
	_, err = svc.ProcessMilestonePayment(ctx, txs[1].ID, "p2", "card", "300")
	require.NoError(t, err)
	_, err = svc.ProcessPartialRefund(ctx, txs[1].ID, "50", "")
	require.NoError(t, err)
	requireAccount(t, svc, "250.00", "300.00")

	ids, err := svc.ProcessFullRefund(ctx, c.ID, "trip cancelled")
	require.NoError(t, err)
	assert.Equal(t, []string{txs[0].ID, txs[1].ID}, ids)
	requireAccount(t, svc, "0.00", "0.00")

	for _, id := range ids {
		tx, err := svc.GetTransaction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, TxRefunded, tx.Status)
		assert.Equal(t, tx.Amount, tx.RefundedAmount)
		assert.Equal(t, "0.00", tx.OutstandingAmount)
		assert.Equal(t, "trip cancelled", tx.RefundReason)
	}
	final, err := svc.GetTransaction(ctx, txs[2].ID)
	require.NoError(t, err)
	assert.Equal(t, TxPending, final.Status)

	got, err := svc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ContractCancelled, got.Status)
	assert.Equal(t, "trip cancelled", got.CancellationReason)
	require.NotNil(t, got.CancelledAt)

	cancelledAt := *got.CancelledAt

	// Nothing left to refund the second time; the first cancellation stands.
	svc.WithClock(func() time.Time { return testNow.Add(time.Hour) })
	ids, err = svc.ProcessFullRefund(ctx, c.ID, "again")
	require.NoError(t, err)
	assert.Empty(t, ids)
	requireAccount(t, svc, "0.00", "0.00")

	got, err = svc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ContractCancelled, got.Status)
	assert.Equal(t, "trip cancelled", got.CancellationReason)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, cancelledAt.Equal(*got.CancelledAt))

	_, err = svc.ProcessFullRefund(ctx, "ctr_missing", "")
	assert.ErrorIs(t, err, ErrContractNotFound)
}

func TestService_FullRefundWithoutAccount(t *testing.T) {
	svc, _ := newTestService()
	c, _ := setupContract(t, svc, "1000", PlanTwoStep)

	ids, err := svc.ProcessFullRefund(context.Background(), c.ID, "no show")
	require.NoError(t, err)
	assert.Empty(t, ids)

	got, err := svc.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, ContractCancelled, got.Status)
}

func TestService_CompleteContract(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c, txs := setupContract(t, svc, "1000", PlanTwoStep)

	done, err := svc.CheckAllMilestonesComplete(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = svc.CompleteContract(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotAllReleased)

	for _, tx := range txs {
		_, err := svc.ProcessMilestonePayment(ctx, tx.ID, "pay_"+tx.ID, "card", tx.Amount)
		require.NoError(t, err)
	}
	_, err = svc.ReleaseMilestone(ctx, txs[0].ID)
	require.NoError(t, err)

	_, err = svc.CompleteContract(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotAllReleased)

	_, err = svc.ReleaseMilestone(ctx, txs[1].ID)
	require.NoError(t, err)

	done, err = svc.CheckAllMilestonesComplete(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, done)

	completed, err := svc.CompleteContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ContractCompleted, completed.Status)
	assert.Equal(t, MilestoneCompleted, completed.CurrentMilestone)
	require.NotNil(t, completed.CompletedAt)
	requireAccount(t, svc, "0.00", "1000.00")
}

func TestService_CompleteContractWithoutTransactions(t *testing.T) {
	svc, _ := newTestService()
	c := createContract(t, svc, "1000")

	done, err := svc.CheckAllMilestonesComplete(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = svc.CompleteContract(context.Background(), c.ID)
	assert.ErrorIs(t, err, ErrNotAllReleased)
}

func TestService_GetOverdueMilestones(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	c := createContract(t, svc, "1000")

	yesterday := time.Date(2025, 6, 9, 23, 0, 0, 0, time.UTC)
	today := time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC)
	cfg := DefaultConfig(PlanThreeStep)
	cfg.DepositDueDate = &yesterday
	cfg.InterimDueDate = &today
	txs, err := svc.SetupSplitPayment(ctx, c.ID, cfg)
	require.NoError(t, err)

	overdue, err := svc.GetOverdueMilestones(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, txs[0].ID, overdue[0].ID)

	_, err = svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300")
	require.NoError(t, err)

	overdue, err = svc.GetOverdueMilestones(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestService_ListTransactions(t *testing.T) {
	svc, _ := newTestService()
	c, txs := setupContract(t, svc, "1000", PlanThreeStep)

	got, err := svc.ListTransactions(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range txs {
		assert.Equal(t, txs[i].ID, got[i].ID)
	}

	_, err = svc.ListTransactions(context.Background(), "ctr_missing")
	assert.ErrorIs(t, err, ErrContractNotFound)
}

// brokenStore fails every unit of work.
type brokenStore struct {
	*MemoryStore
}

func (b brokenStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return errors.New("connection reset by peer")
}

func TestService_StoreFailureIsWrapped(t *testing.T) {
	mem := NewMemoryStore()
	svc := NewService(brokenStore{mem}).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	c, err := svc.CreateContract(context.Background(), CreateContractRequest{
		RequesterID: "guest_1", ProviderID: "host_1", TotalAmount: "100",
	})
	require.NoError(t, err)

	_, err = svc.SetupSplitPayment(context.Background(), c.ID, DefaultConfig(PlanSingle))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOperationFailed)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Contains(t, err.Error(), "setup split payment")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{ErrContractNotFound, KindNotFound},
		{ErrAccountNotFound, KindNotFound},
		{ErrAlreadyReleased, KindInvalidState},
		{ErrAlreadySetUp, KindInvalidState},
		{ErrInvalidConfig, KindValidation},
		{ErrRefundExceeds, KindValidation},
		{ErrDuplicatePayment, KindIdempotency},
		{ErrPaymentIDUsed, KindIdempotency},
		{ErrAmountMismatch, KindAmountMismatch},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := generateID("etx_"), generateID("etx_")
	assert.Regexp(t, `^etx_[0-9a-f]{32}$`, a)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
