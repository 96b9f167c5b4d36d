package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/shopspring/decimal"
)

// BuildSchedule splits balance into term monthly installments starting on start.
// Every installment but the last carries round(balance/term, 2); the last one takes
// whatever remains so the principals always add up to balance exactly.
// A non-positive term yields no installments.
func BuildSchedule(contractID uuid.UUID, balance decimal.Decimal, term int, start time.Time) []models.Installment {
	if term <= 0 {
		return nil
	}

	base := models.RoundCents(balance.Div(decimal.NewFromInt(int64(term))))
	assigned := decimal.Zero
	installments := make([]models.Installment, term)
	for i := range installments {
		principal := base
		if i == term-1 {
			principal = balance.Sub(assigned)
		}
		assigned = assigned.Add(principal)

		installments[i] = models.Installment{
			ID:         uuid.New(),
			ContractID: contractID,
			Sequence:   i + 1,
			DueDate:    models.AddMonths(start, i),
			Principal:  principal,
			Penalty:    decimal.Zero,
			AmountPaid: decimal.Zero,
			Status:     models.InstallmentStatusPending,
		}
	}
	return installments
}
