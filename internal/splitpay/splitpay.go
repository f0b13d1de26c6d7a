// Package splitpay runs milestone-based split payments for service contracts.
//
// Flow:
//  1. Order flow sets up a plan → one pending escrow transaction per milestone
//  2. PSP confirms a milestone payment → transaction funded, provider pending balance credited
//  3. Service obligation fulfilled → transaction released, pending moved to withdrawable
//  4. Cancellation or dispute → partial or full refund clawed back from wherever the funds sit
//  5. All milestones released → contract completed
package splitpay

import (
	"context"
	"errors"
	"time"
)

var (
	ErrContractNotFound    = errors.New("splitpay: contract not found")
	ErrTransactionNotFound = errors.New("splitpay: transaction not found")
	ErrAccountNotFound     = errors.New("splitpay: escrow account not found")
	ErrInvalidConfig       = errors.New("splitpay: invalid payment plan")
	ErrInvalidAmount       = errors.New("splitpay: invalid amount")
	ErrInvalidRequest      = errors.New("splitpay: invalid request")
	ErrInvalidStatus       = errors.New("splitpay: invalid status")
	ErrAlreadySetUp        = errors.New("splitpay: split payment already set up for contract")
	ErrDuplicatePayment    = errors.New("splitpay: duplicate payment: already processed with this paymentId")
	ErrPaymentIDUsed       = errors.New("splitpay: payment ID already used for another transaction")
	ErrAmountMismatch      = errors.New("splitpay: amount mismatch")
	ErrAlreadyReleased     = errors.New("splitpay: already released: duplicate request")
	ErrRefundExceeds       = errors.New("splitpay: refund exceeds transaction amount")
	ErrNotAllReleased      = errors.New("splitpay: not all milestones are released")
	ErrOperationFailed     = errors.New("splitpay: operation failed")
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindNone           Kind = ""
	KindNotFound       Kind = "not_found"
	KindInvalidState   Kind = "invalid_state"
	KindValidation     Kind = "validation"
	KindIdempotency    Kind = "idempotency"
	KindAmountMismatch Kind = "amount_mismatch"
	KindInternal       Kind = "internal"
)

// KindOf classifies err. Anything not produced by this package is internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrContractNotFound), errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrAccountNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicatePayment), errors.Is(err, ErrPaymentIDUsed):
		return KindIdempotency
	case errors.Is(err, ErrAmountMismatch):
		return KindAmountMismatch
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrAlreadyReleased),
		errors.Is(err, ErrNotAllReleased), errors.Is(err, ErrAlreadySetUp):
		return KindInvalidState
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrRefundExceeds):
		return KindValidation
	}
	return KindInternal
}

// Plan is the payment plan kind of a contract.
type Plan string

const (
	PlanSingle    Plan = "single"
	PlanTwoStep   Plan = "two_step"
	PlanThreeStep Plan = "three_step"
)

// Milestone identifies a payment milestone, or the completed marker.
type Milestone string

const (
	MilestoneDeposit   Milestone = "deposit"
	MilestoneInterim   Milestone = "interim"
	MilestoneFinal     Milestone = "final"
	MilestoneCompleted Milestone = "completed"
)

// milestoneOrder is the canonical scan order for milestones.
var milestoneOrder = [...]Milestone{MilestoneDeposit, MilestoneInterim, MilestoneFinal}

func milestoneRank(m Milestone) int {
	for i, o := range milestoneOrder {
		if o == m {
			return i
		}
	}
	return len(milestoneOrder)
}

// ContractStatus represents the state of a contract.
type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractCancelled ContractStatus = "cancelled"
)

// TxStatus represents the state of an escrow transaction.
type TxStatus string

const (
	TxPending       TxStatus = "pending"        // Awaiting payment
	TxFunded        TxStatus = "funded"         // Paid, held in escrow
	TxReleased      TxStatus = "released"       // Provider may withdraw
	TxPartialRefund TxStatus = "partial_refund" // Some of the amount returned
	TxRefunded      TxStatus = "refunded"       // Entire amount returned
)

// IsPaid reports whether the milestone counts as paid in summaries.
func (s TxStatus) IsPaid() bool {
	return s == TxFunded || s == TxReleased
}

// Refundable reports whether a refund may be applied in this status.
func (s TxStatus) Refundable() bool {
	return s == TxFunded || s == TxReleased || s == TxPartialRefund
}

// AccountTypeHost is the account type of provider escrow accounts.
const AccountTypeHost = "host"

// DefaultCurrency is used when neither the contract nor the service names one.
const DefaultCurrency = "USD"

// DefaultPlatformFeePercent is the informational platform fee stored on each transaction.
const DefaultPlatformFeePercent = 12.0

// Contract is a service agreement between a requester and a provider.
type Contract struct {
	ID                 string         `json:"id"`
	RequesterID        string         `json:"requesterId"`
	ProviderID         string         `json:"providerId"`
	TotalAmount        string         `json:"totalAmount"`
	Currency           string         `json:"currency"`
	PaymentPlan        Plan           `json:"paymentPlan,omitempty"`
	DepositRate        float64        `json:"depositRate"`
	InterimRate        float64        `json:"interimRate"`
	FinalRate          float64        `json:"finalRate"`
	DepositAmount      string         `json:"depositAmount"`
	InterimAmount      string         `json:"interimAmount"`
	FinalAmount        string         `json:"finalAmount"`
	DepositDueDate     *time.Time     `json:"depositDueDate,omitempty"`
	InterimDueDate     *time.Time     `json:"interimDueDate,omitempty"`
	FinalDueDate       *time.Time     `json:"finalDueDate,omitempty"`
	CurrentMilestone   Milestone      `json:"currentMilestone,omitempty"`
	Status             ContractStatus `json:"status"`
	CancellationReason string         `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time     `json:"cancelledAt,omitempty"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Transaction is one milestone's escrow record.
type Transaction struct {
	ID                string     `json:"id"`
	ContractID        string     `json:"contractId"`
	MilestoneType     Milestone  `json:"milestoneType"`
	Amount            string     `json:"amount"`
	RefundedAmount    string     `json:"refundedAmount"`
	OutstandingAmount string     `json:"outstandingAmount"`
	Currency          string     `json:"currency"`
	Status            TxStatus   `json:"status"`
	PlatformFee       string     `json:"platformFee"`
	DueDate           *time.Time `json:"dueDate,omitempty"`
	PaymentID         string     `json:"paymentId,omitempty"`
	PaymentMethod     string     `json:"paymentMethod,omitempty"`
	FundedAt          *time.Time `json:"fundedAt,omitempty"`
	ReleasedAt        *time.Time `json:"releasedAt,omitempty"`
	RefundedAt        *time.Time `json:"refundedAt,omitempty"`
	RefundReason      string     `json:"refundReason,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Account is a provider's aggregate escrow holding account.
type Account struct {
	UserID              string    `json:"userId"`
	AccountType         string    `json:"accountType"`
	Currency            string    `json:"currency"`
	PendingBalance      string    `json:"pendingBalance"`
	WithdrawableBalance string    `json:"withdrawableBalance"`
	KYCStatus           string    `json:"kycStatus"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Stage is a legacy per-stage payment record, read only when a contract has
// no escrow transactions.
type Stage struct {
	ID         string `json:"id"`
	ContractID string `json:"contractId"`
	Name       string `json:"name"`
	Amount     string `json:"amount"`
	Status     string `json:"status"`
	StageOrder int    `json:"stageOrder"`
}

// StagePaid is the legacy stage status meaning the stage was paid.
const StagePaid = "paid"

// Reader is the read side shared by the store and its units of work.
type Reader interface {
	GetContract(ctx context.Context, id string) (*Contract, error)
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	// ListTransactions returns a contract's transactions in milestone order.
	ListTransactions(ctx context.Context, contractID string) ([]*Transaction, error)
	// FindTransactionByPaymentID returns ErrTransactionNotFound if no
	// transaction carries paymentID.
	FindTransactionByPaymentID(ctx context.Context, paymentID string) (*Transaction, error)
	GetAccount(ctx context.Context, userID string) (*Account, error)
}

// Tx is a single atomic unit of work against the store. Reads inside a Tx
// lock the rows they return until the unit of work ends.
type Tx interface {
	Reader
	UpdateContract(ctx context.Context, c *Contract) error
	CreateTransaction(ctx context.Context, t *Transaction) error
	UpdateTransaction(ctx context.Context, t *Transaction) error
	CreateAccount(ctx context.Context, a *Account) error
	UpdateAccount(ctx context.Context, a *Account) error
}

// Store persists contracts, stages, escrow transactions and escrow accounts.
type Store interface {
	Reader
	CreateContract(ctx context.Context, c *Contract) error
	ListStages(ctx context.Context, contractID string) ([]*Stage, error)
	// ListOverdue returns pending transactions due strictly before the given date.
	ListOverdue(ctx context.Context, before time.Time) ([]*Transaction, error)
	// WithTx runs fn atomically. If fn returns an error nothing it wrote is kept.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
