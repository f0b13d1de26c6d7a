package splitpay

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/wsjung2023/TravelConnect-sub001/internal/money"
)

// rateTolerance is how far the rate sum may drift from 100.
const rateTolerance = 0.01

// Rates holds per-milestone percentages.
type Rates struct {
	Deposit float64 `json:"deposit"`
	Interim float64 `json:"interim"`
	Final   float64 `json:"final"`
}

// PlanConfig describes the payment plan for a contract.
type PlanConfig struct {
	Plan           Plan       `json:"paymentPlan"`
	DepositRate    float64    `json:"depositRate"`
	InterimRate    float64    `json:"interimRate"`
	FinalRate      float64    `json:"finalRate"`
	DepositDueDate *time.Time `json:"depositDueDate,omitempty"`
	InterimDueDate *time.Time `json:"interimDueDate,omitempty"`
	FinalDueDate   *time.Time `json:"finalDueDate,omitempty"`
}

// MilestoneAmounts is a contract total split across milestones.
type MilestoneAmounts struct {
	Deposit *big.Int
	Interim *big.Int
	Final   *big.Int
}

// DefaultRates returns the standard split for a plan. Unknown plans get the
// single-payment split.
func DefaultRates(plan Plan) Rates {
	switch plan {
	case PlanTwoStep:
		return Rates{Deposit: 30, Interim: 0, Final: 70}
	case PlanThreeStep:
		return Rates{Deposit: 30, Interim: 30, Final: 40}
	default:
		return Rates{Deposit: 100, Interim: 0, Final: 0}
	}
}

// DefaultConfig returns a config for plan using its default rates.
func DefaultConfig(plan Plan) PlanConfig {
	r := DefaultRates(plan)
	return PlanConfig{Plan: plan, DepositRate: r.Deposit, InterimRate: r.Interim, FinalRate: r.Final}
}

// ValidateConfig checks a plan configuration and returns the first rule it
// breaks, wrapped in ErrInvalidConfig.
func ValidateConfig(cfg PlanConfig) error {
	for _, r := range []float64{cfg.DepositRate, cfg.InterimRate, cfg.FinalRate} {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return fmt.Errorf("%w: rates must be finite numbers", ErrInvalidConfig)
		}
	}

	sum := cfg.DepositRate + cfg.InterimRate + cfg.FinalRate
	if math.Abs(sum-100) > rateTolerance {
		return fmt.Errorf("%w: rates must sum to 100, got %g", ErrInvalidConfig, sum)
	}

	switch cfg.Plan {
	case PlanSingle:
		if cfg.DepositRate != 100 || cfg.InterimRate != 0 || cfg.FinalRate != 0 {
			return fmt.Errorf("%w: single plan requires deposit 100, interim 0, final 0", ErrInvalidConfig)
		}
	case PlanTwoStep:
		if cfg.InterimRate != 0 {
			return fmt.Errorf("%w: two_step plan requires interim rate 0", ErrInvalidConfig)
		}
	case PlanThreeStep:
		if cfg.InterimRate <= 0 {
			return fmt.Errorf("%w: three_step plan requires a positive interim rate", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidConfig, cfg.Plan)
	}

	if cfg.DepositRate < 0 || cfg.InterimRate < 0 || cfg.FinalRate < 0 {
		return fmt.Errorf("%w: rates cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// CalculateMilestoneAmounts splits total by the configured rates. Deposit and
// interim are rounded to whole currency units; final takes the remainder so
// the three always sum to total. Rounding up never pushes deposit and
// interim past total, so final is never negative.
func CalculateMilestoneAmounts(total *big.Int, cfg PlanConfig) MilestoneAmounts {
	deposit := minInt(money.RoundPercent(total, cfg.DepositRate), total)
	interim := minInt(money.RoundPercent(total, cfg.InterimRate), new(big.Int).Sub(total, deposit))
	final := new(big.Int).Sub(total, deposit)
	final.Sub(final, interim)
	return MilestoneAmounts{Deposit: deposit, Interim: interim, Final: final}
}

// nextMilestone returns the milestone that follows completed under plan.
// two_step skips interim entirely.
func nextMilestone(plan Plan, completed Milestone) Milestone {
	switch plan {
	case PlanTwoStep:
		if completed == MilestoneDeposit {
			return MilestoneFinal
		}
	case PlanThreeStep:
		switch completed {
		case MilestoneDeposit:
			return MilestoneInterim
		case MilestoneInterim:
			return MilestoneFinal
		}
	}
	return MilestoneCompleted
}

// dateOf truncates t to its calendar date at UTC midnight.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dateOfPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := dateOf(*t)
	return &d
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) > 0 {
		return new(big.Int).Set(b)
	}
	return a
}
