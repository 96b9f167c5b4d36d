package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/mcclellann/lotledger/pkg/store"
	"github.com/shopspring/decimal"
)

// Statement is the account view of one contract.
type Statement struct {
	Contract       *models.Contract     `json:"contract"`
	Client         *models.Client       `json:"client"`
	Lot            *models.Lot          `json:"lot"`
	Installments   []models.Installment `json:"installments"`
	Payments       []*models.Payment    `json:"payments"`
	AccruedPenalty decimal.Decimal      `json:"accrued_penalty"` // on OVERDUE installments
	Outstanding    decimal.Decimal      `json:"outstanding"`
	NextDue        *models.Installment  `json:"next_due,omitempty"`
	CanClose       bool                 `json:"can_close"`
}

// Statement refreshes delinquency and returns the contract's current account.
// Reading a contract is what keeps its penalties current.
func (l *Ledger) Statement(ctx context.Context, contractID uuid.UUID) (*Statement, error) {
	st := &Statement{}
	err := l.mutate(ctx, contractID, func(repo store.Repository, c *models.Contract) error {
		installments, err := l.refresh(ctx, repo, c)
		if err != nil {
			return err
		}
		st.Contract = c
		st.Installments = installments

		if st.Client, err = repo.GetClient(ctx, c.ClientID); err != nil {
			return err
		}
		if st.Lot, err = repo.GetLot(ctx, c.LotID); err != nil {
			return err
		}
		st.Payments, err = repo.GetPaymentsForContract(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	st.AccruedPenalty = decimal.Zero
	st.Outstanding = decimal.Zero
	for i, inst := range st.Installments {
		if inst.Status == models.InstallmentStatusOverdue {
			st.AccruedPenalty = st.AccruedPenalty.Add(inst.Penalty)
		}
		st.Outstanding = st.Outstanding.Add(inst.Remaining())
		if st.NextDue == nil && !inst.Remaining().IsZero() && (inst.Status == models.InstallmentStatusPending || inst.Status == models.InstallmentStatusPartial) {
			st.NextDue = &st.Installments[i]
		}
	}
	st.CanClose = st.Contract.MayClose(models.SumOwed(st.Installments))
	return st, nil
}

// Snapshot is what the document renderer receives for contracts and receipts.
type Snapshot struct {
	Contract     *models.Contract         `json:"contract"`
	Client       *models.Client           `json:"client"`
	Lot          *models.Lot              `json:"lot"`
	Installments []models.Installment     `json:"installments"`
	Policy       models.DelinquencyPolicy `json:"policy"`
	DownPayment  *models.Payment          `json:"down_payment,omitempty"`
}

// Snapshot gathers a contract with everything needed to print it. It does not refresh delinquency.
func (l *Ledger) Snapshot(ctx context.Context, contractID uuid.UUID) (*Snapshot, error) {
	c, err := l.storage.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Contract: c}
	if snap.Client, err = l.storage.GetClient(ctx, c.ClientID); err != nil {
		return nil, err
	}
	if snap.Lot, err = l.storage.GetLot(ctx, c.LotID); err != nil {
		return nil, err
	}
	if snap.Installments, err = l.storage.GetInstallments(ctx, c.ID); err != nil {
		return nil, err
	}
	if snap.Policy, err = l.storage.GetPolicy(ctx); err != nil {
		return nil, err
	}

	if c.DownPayment.IsPositive() {
		payments, err := l.storage.GetPaymentsForContract(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range payments {
			if p.Note == downPaymentNote {
				snap.DownPayment = p
				break
			}
		}
	}
	return snap, nil
}

// PaymentRecord is a payment with the installments it was applied to.
type PaymentRecord struct {
	*models.Payment
	Allocations []models.PaymentAllocation `json:"allocations"`
}

// Payments lists a contract's payments in the order they were recorded.
func (l *Ledger) Payments(ctx context.Context, contractID uuid.UUID) ([]PaymentRecord, error) {
	if _, err := l.storage.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	payments, err := l.storage.GetPaymentsForContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	records := make([]PaymentRecord, 0, len(payments))
	for _, p := range payments {
		allocations, err := l.storage.GetAllocationsForPayment(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load allocations for payment %s: %w", p.ID, err)
		}
		records = append(records, PaymentRecord{Payment: p, Allocations: allocations})
	}
	return records, nil
}

// Policy returns the delinquency policy in force.
func (l *Ledger) Policy(ctx context.Context) (models.DelinquencyPolicy, error) {
	return l.storage.GetPolicy(ctx)
}

// UpdatePolicy validates and stores a new delinquency policy. It applies to every
// contract from its next refresh on.
func (l *Ledger) UpdatePolicy(ctx context.Context, p models.DelinquencyPolicy) (models.DelinquencyPolicy, error) {
	if err := p.Validate(); err != nil {
		return p, err
	}
	p.UpdatedAt = l.clock()
	if err := l.storage.SavePolicy(ctx, p); err != nil {
		return p, err
	}
	l.log.WithField("mode", p.Mode).Info("delinquency policy updated")
	return p, nil
}
