package ledger

import (
	"time"

	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/shopspring/decimal"
)

// PenaltyFor computes the mora owed on an installment daysLate days past due.
func PenaltyFor(policy models.DelinquencyPolicy, principal decimal.Decimal, daysLate int) decimal.Decimal {
	if policy.Mode == models.PenaltyModePercentage {
		if daysLate >= policy.Mild.Days {
			return models.Percent(principal, policy.Percentage)
		}
		return decimal.Zero
	}

	// most severe tier first
	for _, tier := range []models.PenaltyTier{policy.Severe, policy.Moderate, policy.Mild} {
		if daysLate >= tier.Days {
			return models.RoundCents(tier.Amount)
		}
	}
	return decimal.Zero
}

// AssessInstallment re-evaluates one installment against policy as of today.
// It reports whether anything changed. Only outstanding installments already
// past their due date are touched.
func AssessInstallment(inst models.Installment, policy models.DelinquencyPolicy, today time.Time) (models.Installment, bool) {
	if !inst.Status.Outstanding() || !inst.DueDate.Before(models.DateOf(today)) {
		return inst, false
	}
	before := inst

	// A penalty that has already been collected is never handed back.
	collected := decimal.Max(inst.AmountPaid.Sub(inst.Principal), decimal.Zero)

	if inst.PenaltyExempt {
		// Exempt rows stay outstanding so that lifting the exemption re-assesses them.
		inst.Penalty = collected
		switch {
		case inst.AmountPaid.IsPositive():
			inst.Status = models.InstallmentStatusPartial
		default:
			inst.Status = models.InstallmentStatusPending
		}
	} else {
		daysLate := models.DaysBetween(inst.DueDate, today)
		inst.Penalty = decimal.Max(PenaltyFor(policy, inst.Principal, daysLate), collected)
		if models.IsNegligible(inst.Owed()) {
			inst.Status = models.InstallmentStatusPaid
		} else {
			inst.Status = models.InstallmentStatusOverdue
		}
	}

	changed := inst.Status != before.Status || !inst.Penalty.Equal(before.Penalty)
	return inst, changed
}

// Assessment is the outcome of a delinquency sweep over one contract.
type Assessment struct {
	Installments  []models.Installment // every installment, reassessed
	Changed       []int                // indexes into Installments that must be persisted
	InDelinquency bool
}

// AssessDelinquency sweeps a contract's installments. The input slice is not modified.
// Running it again on its own output with the same today is a no-op.
func AssessDelinquency(installments []models.Installment, policy models.DelinquencyPolicy, today time.Time) Assessment {
	a := Assessment{Installments: make([]models.Installment, len(installments))}
	for i, inst := range installments {
		assessed, changed := AssessInstallment(inst, policy, today)
		a.Installments[i] = assessed
		if changed {
			a.Changed = append(a.Changed, i)
		}
		if assessed.Status == models.InstallmentStatusOverdue {
			a.InDelinquency = true
		}
	}
	return a
}
