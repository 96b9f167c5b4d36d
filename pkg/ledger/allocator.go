package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/shopspring/decimal"
)

// AllocationResult describes how a payment was spread over a contract's installments.
type AllocationResult struct {
	Installments []models.Installment       // touched installments, in the order they were settled
	Allocations  []models.PaymentAllocation // one per touched installment; PaymentID is left unset
	Surplus      decimal.Decimal            // funds left after every outstanding installment was settled
}

// Allocate applies amount to outstanding installments, earliest sequence first.
// Installments with less than a cent owed are closed out without consuming funds,
// except exempt ones, which stay open while their exemption stands.
// A partial application ends the sweep.
func Allocate(outstanding []models.Installment, amount decimal.Decimal, paidOn time.Time) AllocationResult {
	paidOn = models.DateOf(paidOn)
	funds := amount
	var res AllocationResult

	settle := func(inst models.Installment, applied decimal.Decimal, status models.InstallmentStatus) {
		inst.AmountPaid = inst.AmountPaid.Add(applied)
		inst.Status = status
		inst.LastPaymentOn = &paidOn
		res.Installments = append(res.Installments, inst)
		res.Allocations = append(res.Allocations, models.PaymentAllocation{
			ID:            uuid.New(),
			InstallmentID: inst.ID,
			Sequence:      inst.Sequence,
			Amount:        applied,
		})
	}

	for _, inst := range outstanding {
		if !funds.IsPositive() {
			break
		}
		owed := inst.Owed()
		if inst.PenaltyExempt && models.IsNegligible(owed) {
			continue
		}
		switch {
		case models.IsNegligible(owed):
			settle(inst, decimal.Zero, models.InstallmentStatusPaid)
		case funds.GreaterThanOrEqual(owed):
			settle(inst, owed, models.InstallmentStatusPaid)
			funds = funds.Sub(owed)
		default:
			status := models.InstallmentStatusPartial
			if models.IsNegligible(owed.Sub(funds)) {
				status = models.InstallmentStatusPaid
			}
			settle(inst, funds, status)
			funds = decimal.Zero
		}
	}

	if funds.IsPositive() {
		res.Surplus = funds
	}
	return res
}

// SurplusNote is the text appended to a payment that exceeded the contract's debt.
func SurplusNote(surplus decimal.Decimal) string {
	return fmt.Sprintf("Payment processed. Surplus balance: $%s", surplus.StringFixed(2))
}
