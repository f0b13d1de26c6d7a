//go:build integration

package splitpay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsjung2023/TravelConnect-sub001/internal/testutil"
)

func newPostgresService(t *testing.T) (*Service, *PostgresStore) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	t.Cleanup(cleanup)

	store := NewPostgresStore(db).WithRetry(10, 5*time.Millisecond)
	svc := NewService(store).
		WithLogger(discardLogger()).
		WithClock(func() time.Time { return testNow })
	return svc, store
}

func TestPostgres_ThreeStepScenario(t *testing.T) {
	svc, _ := newPostgresService(t)
	ctx := context.Background()

	c := createContract(t, svc, "1000.33")
	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig(PlanThreeStep)
	cfg.DepositDueDate = &due
	txs, err := svc.SetupSplitPayment(ctx, c.ID, cfg)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	_, err = svc.SetupSplitPayment(ctx, c.ID, cfg)
	assert.ErrorIs(t, err, ErrAlreadySetUp)

	overdue, err := svc.GetOverdueMilestones(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, txs[0].ID, overdue[0].ID)

	res, err := svc.ProcessMilestonePayment(ctx, txs[0].ID, "p1", "card", "300.00")
	require.NoError(t, err)
	assert.Equal(t, MilestoneInterim, res.NextMilestone)

	_, err = svc.ProcessMilestonePayment(ctx, txs[1].ID, "p1", "card", "300.00")
	assert.ErrorIs(t, err, ErrPaymentIDUsed)

	_, err = svc.ReleaseMilestone(ctx, txs[0].ID)
	require.NoError(t, err)
	requireAccount(t, svc, "0.00", "300.00")

	tx, err := svc.ProcessPartialRefund(ctx, txs[0].ID, "100", "partial")
	require.NoError(t, err)
	assert.Equal(t, "200.00", tx.OutstandingAmount)
	requireAccount(t, svc, "0.00", "200.00")

	sum, err := svc.GetContractPaymentSummary(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000.33", sum.TotalAmount)
	// A partially refunded milestone no longer counts as paid.
	assert.Equal(t, "0.00", sum.PaidAmount)
	require.NotNil(t, sum.NextPaymentDue)
	assert.Equal(t, MilestoneDeposit, sum.NextPaymentDue.Type)

	ids, err := svc.ProcessFullRefund(ctx, c.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, []string{txs[0].ID}, ids)
	requireAccount(t, svc, "0.00", "0.00")

	got, err := svc.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ContractCancelled, got.Status)
	require.NotNil(t, got.DepositDueDate)
	assert.Equal(t, "2025-06-01", got.DepositDueDate.Format(dateLayout))
}

func TestPostgres_LegacyStages(t *testing.T) {
	svc, store := newPostgresService(t)
	ctx := context.Background()
	c := createContract(t, svc, "800")

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO contract_stages (id, contract_id, name, amount, status, stage_order) VALUES
			('st_1', $1, '계약금', 200, 'paid', 1),
			('st_2', $1, '잔금', 600, 'pending', 2)`, c.ID)
	require.NoError(t, err)

	sum, err := svc.GetContractPaymentSummary(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, sum.Legacy)
	assert.Equal(t, "200.00", sum.PaidAmount)
	require.NotNil(t, sum.NextPaymentDue)
	assert.Equal(t, MilestoneFinal, sum.NextPaymentDue.Type)
}

func TestPostgres_ConcurrentMilestonePayments(t *testing.T) {
	svc, _ := newPostgresService(t)
	ctx := context.Background()
	_, txs := setupContract(t, svc, "1000", PlanThreeStep)

	// Different milestones of the same provider race on one account row.
	var wg sync.WaitGroup
	errs := make([]error, len(txs))
	for i, tx := range txs {
		wg.Add(1)
		go func(i int, tx *Transaction) {
			defer wg.Done()
			_, errs[i] = svc.ProcessMilestonePayment(ctx, tx.ID, "pay_"+tx.ID, "card", tx.Amount)
		}(i, tx)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	requireAccount(t, svc, "1000.00", "0.00")
}
