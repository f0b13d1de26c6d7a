package splitpay

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/wsjung2023/TravelConnect-sub001/internal/retry"
)

// Serialization failures are retried this many times before giving up.
const (
	defaultTxAttempts = 5
	defaultTxDelay    = 20 * time.Millisecond
	maxTxDelay        = 500 * time.Millisecond
)

// errConcurrentInsert marks a unique violation caused by a racing unit of
// work creating the same row. It is retried like a serialization failure.
var errConcurrentInsert = errors.New("splitpay: concurrent insert")

// PostgresStore persists split payment data in PostgreSQL.
type PostgresStore struct {
	db       *sql.DB
	attempts int
	delay    time.Duration
}

// NewPostgresStore creates a new PostgreSQL-backed split payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, attempts: defaultTxAttempts, delay: defaultTxDelay}
}

// WithRetry sets how often a unit of work is retried on serialization failure.
func (p *PostgresStore) WithRetry(attempts int, delay time.Duration) *PostgresStore {
	p.attempts = attempts
	p.delay = delay
	return p
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// pgReader implements Reader. Inside a unit of work lock is set and every
// read takes a row lock.
type pgReader struct {
	q    querier
	lock bool
}

func (r pgReader) forUpdate() string {
	if r.lock {
		return ` FOR UPDATE`
	}
	return ""
}

func (p *PostgresStore) reader() pgReader { return pgReader{q: p.db} }

func (p *PostgresStore) GetContract(ctx context.Context, id string) (*Contract, error) {
	return p.reader().GetContract(ctx, id)
}

func (p *PostgresStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	return p.reader().GetTransaction(ctx, id)
}

func (p *PostgresStore) ListTransactions(ctx context.Context, contractID string) ([]*Transaction, error) {
	return p.reader().ListTransactions(ctx, contractID)
}

func (p *PostgresStore) FindTransactionByPaymentID(ctx context.Context, paymentID string) (*Transaction, error) {
	return p.reader().FindTransactionByPaymentID(ctx, paymentID)
}

func (p *PostgresStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	return p.reader().GetAccount(ctx, userID)
}

func (p *PostgresStore) CreateContract(ctx context.Context, c *Contract) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO contracts (
			id, requester_id, provider_id, total_amount, currency,
			payment_plan, deposit_rate, interim_rate, final_rate,
			deposit_amount, interim_amount, final_amount,
			deposit_due_date, interim_due_date, final_due_date,
			current_milestone, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4::NUMERIC(20,2), $5,
			$6, $7, $8, $9,
			$10::NUMERIC(20,2), $11::NUMERIC(20,2), $12::NUMERIC(20,2),
			$13, $14, $15,
			$16, $17, $18, $19
		)`,
		c.ID, c.RequesterID, c.ProviderID, c.TotalAmount, c.Currency,
		nullString(string(c.PaymentPlan)), c.DepositRate, c.InterimRate, c.FinalRate,
		c.DepositAmount, c.InterimAmount, c.FinalAmount,
		nullTime(c.DepositDueDate), nullTime(c.InterimDueDate), nullTime(c.FinalDueDate),
		nullString(string(c.CurrentMilestone)), string(c.Status), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) ListStages(ctx context.Context, contractID string) ([]*Stage, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, contract_id, name, amount, status, stage_order
		FROM contract_stages
		WHERE contract_id = $1
		ORDER BY stage_order`, contractID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Stage
	for rows.Next() {
		st := &Stage{}
		if err := rows.Scan(&st.ID, &st.ContractID, &st.Name, &st.Amount, &st.Status, &st.StageOrder); err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (p *PostgresStore) ListOverdue(ctx context.Context, before time.Time) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM escrow_transactions
		WHERE status = 'pending'
		  AND due_date IS NOT NULL
		  AND due_date < $1::DATE
		ORDER BY due_date, id`, before)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// WithTx runs fn in a SERIALIZABLE transaction. Serialization failures and
// deadlocks are retried with backoff; any other error rolls back and is
// returned as is.
func (p *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	policy := retry.Policy{
		Attempts:  p.attempts,
		BaseDelay: p.delay,
		MaxDelay:  maxTxDelay,
		Retryable: isRetryable,
	}
	return policy.Do(ctx, func() error { return p.runTx(ctx, fn) })
}

func (p *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{pgReader: pgReader{q: sqlTx, lock: true}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// isRetryable reports whether err is a transient conflict between units of work.
func isRetryable(err error) bool {
	if errors.Is(err, errConcurrentInsert) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const contractColumns = `id, requester_id, provider_id, total_amount, currency,
		       payment_plan, deposit_rate, interim_rate, final_rate,
		       deposit_amount, interim_amount, final_amount,
		       deposit_due_date, interim_due_date, final_due_date,
		       current_milestone, status, cancellation_reason, cancelled_at, completed_at,
		       created_at, updated_at`

const transactionColumns = `id, contract_id, milestone_type, amount, refunded_amount, outstanding_amount,
		       currency, status, platform_fee, due_date, payment_id, payment_method,
		       funded_at, released_at, refunded_at, refund_reason, created_at, updated_at`

const accountColumns = `user_id, account_type, currency, pending_balance, withdrawable_balance,
		       kyc_status, created_at, updated_at`

func (r pgReader) GetContract(ctx context.Context, id string) (*Contract, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`+r.forUpdate(), id)

	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContractNotFound
	}
	return c, err
}

func (r pgReader) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM escrow_transactions WHERE id = $1`+r.forUpdate(), id)

	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return t, err
}

func (r pgReader) ListTransactions(ctx context.Context, contractID string) ([]*Transaction, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM escrow_transactions
		WHERE contract_id = $1
		ORDER BY CASE milestone_type
			WHEN 'deposit' THEN 0
			WHEN 'interim' THEN 1
			WHEN 'final' THEN 2
			ELSE 3
		END, created_at`+r.forUpdate(), contractID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

func (r pgReader) FindTransactionByPaymentID(ctx context.Context, paymentID string) (*Transaction, error) {
	if paymentID == "" {
		return nil, ErrTransactionNotFound
	}
	row := r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM escrow_transactions WHERE payment_id = $1`+r.forUpdate(), paymentID)

	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return t, err
}

func (r pgReader) GetAccount(ctx context.Context, userID string) (*Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM escrow_accounts WHERE user_id = $1`+r.forUpdate(), userID)

	a := &Account{}
	err := row.Scan(&a.UserID, &a.AccountType, &a.Currency, &a.PendingBalance, &a.WithdrawableBalance,
		&a.KYCStatus, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// pgTx is a unit of work bound to one SERIALIZABLE transaction.
type pgTx struct {
	pgReader
}

func (t *pgTx) UpdateContract(ctx context.Context, c *Contract) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE contracts SET
			payment_plan = $1, deposit_rate = $2, interim_rate = $3, final_rate = $4,
			deposit_amount = $5::NUMERIC(20,2), interim_amount = $6::NUMERIC(20,2), final_amount = $7::NUMERIC(20,2),
			deposit_due_date = $8, interim_due_date = $9, final_due_date = $10,
			current_milestone = $11, status = $12, cancellation_reason = $13,
			cancelled_at = $14, completed_at = $15, updated_at = $16
		WHERE id = $17`,
		nullString(string(c.PaymentPlan)), c.DepositRate, c.InterimRate, c.FinalRate,
		c.DepositAmount, c.InterimAmount, c.FinalAmount,
		nullTime(c.DepositDueDate), nullTime(c.InterimDueDate), nullTime(c.FinalDueDate),
		nullString(string(c.CurrentMilestone)), string(c.Status), nullString(c.CancellationReason),
		nullTime(c.CancelledAt), nullTime(c.CompletedAt), c.UpdatedAt,
		c.ID,
	)
	return checkAffected(result, err, ErrContractNotFound)
}

func (t *pgTx) CreateTransaction(ctx context.Context, tr *Transaction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO escrow_transactions (
			id, contract_id, milestone_type, amount, refunded_amount, outstanding_amount,
			currency, status, platform_fee, due_date, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4::NUMERIC(20,2), $5::NUMERIC(20,2), $6::NUMERIC(20,2),
			$7, $8, $9::NUMERIC(20,2), $10, $11, $12
		)`,
		tr.ID, tr.ContractID, string(tr.MilestoneType), tr.Amount, tr.RefundedAmount, tr.OutstandingAmount,
		tr.Currency, string(tr.Status), tr.PlatformFee, nullTime(tr.DueDate), tr.CreatedAt, tr.UpdatedAt,
	)
	return err
}

func (t *pgTx) UpdateTransaction(ctx context.Context, tr *Transaction) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE escrow_transactions SET
			status = $1, refunded_amount = $2::NUMERIC(20,2), outstanding_amount = $3::NUMERIC(20,2),
			payment_id = $4, payment_method = $5,
			funded_at = $6, released_at = $7, refunded_at = $8,
			refund_reason = $9, updated_at = $10
		WHERE id = $11`,
		string(tr.Status), tr.RefundedAmount, tr.OutstandingAmount,
		nullString(tr.PaymentID), nullString(tr.PaymentMethod),
		nullTime(tr.FundedAt), nullTime(tr.ReleasedAt), nullTime(tr.RefundedAt),
		nullString(tr.RefundReason), tr.UpdatedAt,
		tr.ID,
	)
	if isUniqueViolation(err) {
		return ErrPaymentIDUsed
	}
	return checkAffected(result, err, ErrTransactionNotFound)
}

func (t *pgTx) CreateAccount(ctx context.Context, a *Account) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO escrow_accounts (
			user_id, account_type, currency, pending_balance, withdrawable_balance,
			kyc_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4::NUMERIC(20,2), $5::NUMERIC(20,2), $6, $7, $8)`,
		a.UserID, a.AccountType, a.Currency, a.PendingBalance, a.WithdrawableBalance,
		a.KYCStatus, a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return errConcurrentInsert
	}
	return err
}

func (t *pgTx) UpdateAccount(ctx context.Context, a *Account) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE escrow_accounts SET
			pending_balance = $1::NUMERIC(20,2), withdrawable_balance = $2::NUMERIC(20,2), updated_at = $3
		WHERE user_id = $4`,
		a.PendingBalance, a.WithdrawableBalance, a.UpdatedAt, a.UserID,
	)
	return checkAffected(result, err, ErrAccountNotFound)
}

func checkAffected(result sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(s scanner) (*Contract, error) {
	c := &Contract{}
	var (
		plan               sql.NullString
		depositDue         sql.NullTime
		interimDue         sql.NullTime
		finalDue           sql.NullTime
		milestone          sql.NullString
		status             string
		cancellationReason sql.NullString
		cancelledAt        sql.NullTime
		completedAt        sql.NullTime
	)

	err := s.Scan(
		&c.ID, &c.RequesterID, &c.ProviderID, &c.TotalAmount, &c.Currency,
		&plan, &c.DepositRate, &c.InterimRate, &c.FinalRate,
		&c.DepositAmount, &c.InterimAmount, &c.FinalAmount,
		&depositDue, &interimDue, &finalDue,
		&milestone, &status, &cancellationReason, &cancelledAt, &completedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.PaymentPlan = Plan(plan.String)
	c.CurrentMilestone = Milestone(milestone.String)
	c.Status = ContractStatus(status)
	c.CancellationReason = cancellationReason.String
	c.DepositDueDate = timePtr(depositDue)
	c.InterimDueDate = timePtr(interimDue)
	c.FinalDueDate = timePtr(finalDue)
	c.CancelledAt = timePtr(cancelledAt)
	c.CompletedAt = timePtr(completedAt)
	return c, nil
}

func scanTransaction(s scanner) (*Transaction, error) {
	t := &Transaction{}
	var (
		milestone     string
		status        string
		dueDate       sql.NullTime
		paymentID     sql.NullString
		paymentMethod sql.NullString
		fundedAt      sql.NullTime
		releasedAt    sql.NullTime
		refundedAt    sql.NullTime
		refundReason  sql.NullString
	)

	err := s.Scan(
		&t.ID, &t.ContractID, &milestone, &t.Amount, &t.RefundedAmount, &t.OutstandingAmount,
		&t.Currency, &status, &t.PlatformFee, &dueDate, &paymentID, &paymentMethod,
		&fundedAt, &releasedAt, &refundedAt, &refundReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.MilestoneType = Milestone(milestone)
	t.Status = TxStatus(status)
	t.PaymentID = paymentID.String
	t.PaymentMethod = paymentMethod.String
	t.RefundReason = refundReason.String
	t.DueDate = timePtr(dueDate)
	t.FundedAt = timePtr(fundedAt)
	t.ReleasedAt = timePtr(releasedAt)
	t.RefundedAt = timePtr(refundedAt)
	return t, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	var result []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// Compile-time assertions.
var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*pgTx)(nil)
)
