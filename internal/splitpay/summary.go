package splitpay

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/wsjung2023/TravelConnect-sub001/internal/money"
	"github.com/wsjung2023/TravelConnect-sub001/internal/traces"
)

// MilestoneInfo is one row of a payment summary.
type MilestoneInfo struct {
	Type          Milestone  `json:"type"`
	Amount        string     `json:"amount"`
	Rate          float64    `json:"rate"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	Status        string     `json:"status"`
	IsPaid        bool       `json:"isPaid"`
	TransactionID string     `json:"transactionId,omitempty"`
	StageID       string     `json:"stageId,omitempty"`
}

// PaymentSummary describes how much of a contract has been paid.
type PaymentSummary struct {
	ContractID       string          `json:"contractId"`
	TotalAmount      string          `json:"totalAmount"`
	PaidAmount       string          `json:"paidAmount"`
	RemainingAmount  string          `json:"remainingAmount"`
	CurrentMilestone Milestone       `json:"currentMilestone,omitempty"`
	Milestones       []MilestoneInfo `json:"milestones"`
	NextPaymentDue   *MilestoneInfo  `json:"nextPaymentDue,omitempty"`
	Legacy           bool            `json:"legacy"`
}

// milestoneSource builds summary rows for a contract. Contracts with escrow
// transactions use escrowMilestones; older contracts only have stages.
type milestoneSource interface {
	milestones(total *big.Int) (rows []MilestoneInfo, paid *big.Int)
}

type escrowMilestones []*Transaction

func (e escrowMilestones) milestones(total *big.Int) ([]MilestoneInfo, *big.Int) {
	txs := make([]*Transaction, len(e))
	copy(txs, e)
	sort.SliceStable(txs, func(i, j int) bool {
		return milestoneRank(txs[i].MilestoneType) < milestoneRank(txs[j].MilestoneType)
	})

	paid := new(big.Int)
	rows := make([]MilestoneInfo, 0, len(txs))
	for _, t := range txs {
		amount, _ := money.Parse(t.Amount)
		isPaid := t.Status.IsPaid()
		if isPaid {
			refunded, _ := money.Parse(t.RefundedAmount)
			paid.Add(paid, new(big.Int).Sub(amount, refunded))
		}
		rows = append(rows, MilestoneInfo{
			Type:          t.MilestoneType,
			Amount:        t.Amount,
			Rate:          money.Percent(amount, total),
			DueDate:       t.DueDate,
			Status:        string(t.Status),
			IsPaid:        isPaid,
			TransactionID: t.ID,
		})
	}
	return rows, paid
}

type legacyStages []*Stage

func (l legacyStages) milestones(total *big.Int) ([]MilestoneInfo, *big.Int) {
	stages := make([]*Stage, len(l))
	copy(stages, l)
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].StageOrder < stages[j].StageOrder
	})

	paid := new(big.Int)
	rows := make([]MilestoneInfo, 0, len(stages))
	for _, st := range stages {
		amount, ok := money.Parse(st.Amount)
		if !ok {
			amount = new(big.Int)
		}
		isPaid := st.Status == StagePaid
		if isPaid {
			paid.Add(paid, amount)
		}
		rows = append(rows, MilestoneInfo{
			Type:    milestoneFromStageName(st.Name),
			Amount:  money.Format(amount),
			Rate:    money.Percent(amount, total),
			Status:  st.Status,
			IsPaid:  isPaid,
			StageID: st.ID,
		})
	}
	return rows, paid
}

// milestoneFromStageName guesses the milestone a legacy stage stood for.
func milestoneFromStageName(name string) Milestone {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "deposit"), strings.Contains(n, "계약금"):
		return MilestoneDeposit
	case strings.Contains(n, "final"), strings.Contains(n, "balance"), strings.Contains(n, "잔금"):
		return MilestoneFinal
	default:
		return MilestoneInterim
	}
}

// GetContractPaymentSummary reports paid and remaining amounts per milestone.
// It returns ErrContractNotFound for an unknown contract.
func (s *Service) GetContractPaymentSummary(ctx context.Context, contractID string) (sum *PaymentSummary, err error) {
	ctx, span := traces.StartSpan(ctx, "splitpay.GetContractPaymentSummary", traces.ContractID(contractID))
	defer func() { traces.End(span, err) }()

	c, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, "get payment summary", err)
	}

	src, err := s.milestoneSource(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, "get payment summary", err)
	}
	_, legacy := src.(legacyStages)

	total, ok := money.Parse(c.TotalAmount)
	if !ok {
		total = new(big.Int)
	}
	rows, paid := src.milestones(total)

	sum = &PaymentSummary{
		ContractID:       c.ID,
		TotalAmount:      money.Format(total),
		PaidAmount:       money.Format(paid),
		RemainingAmount:  money.Format(money.SubFloor(total, paid)),
		CurrentMilestone: c.CurrentMilestone,
		Milestones:       rows,
		Legacy:           legacy,
	}
	for i := range rows {
		if !rows[i].IsPaid {
			next := rows[i]
			sum.NextPaymentDue = &next
			break
		}
	}
	return sum, nil
}

func (s *Service) milestoneSource(ctx context.Context, contractID string) (milestoneSource, error) {
	txs, err := s.store.ListTransactions(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if len(txs) > 0 {
		return escrowMilestones(txs), nil
	}
	stages, err := s.store.ListStages(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return legacyStages(stages), nil
}
