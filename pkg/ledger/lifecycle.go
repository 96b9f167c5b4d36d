package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/mcclellann/lotledger/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CloseContract moves a fully settled contract to CLOSED. Penalties are refreshed
// first so that mora accrued since the last sweep counts against the balance.
func (l *Ledger) CloseContract(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	var closed models.Contract
	err := l.mutate(ctx, contractID, func(repo store.Repository, c *models.Contract) error {
		installments, err := l.refresh(ctx, repo, c)
		if err != nil {
			return err
		}
		closed, err = c.Close(models.SumOwed(installments), l.clock())
		if err != nil {
			return err
		}
		return repo.UpdateContract(ctx, &closed)
	})
	if err != nil {
		return nil, err
	}
	l.logTransition(&closed)
	return &closed, nil
}

// CancelContract ends an active contract at any balance and puts its lot back on sale.
func (l *Ledger) CancelContract(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	return l.terminate(ctx, contractID, models.Contract.Cancel)
}

// VoidContract annuls a contract booked in error. The lot is released as on cancel.
func (l *Ledger) VoidContract(ctx context.Context, contractID uuid.UUID) (*models.Contract, error) {
	return l.terminate(ctx, contractID, models.Contract.Void)
}

// ReturnResult is a devolution and what the seller owes back.
type ReturnResult struct {
	Contract  *models.Contract `json:"contract"`
	RefundDue decimal.Decimal  `json:"refund_due"` // every payment ever received, down payment included
}

// ReturnContract records a devolution. No refund payment is created; the amount to
// give back is reported in the result.
func (l *Ledger) ReturnContract(ctx context.Context, contractID uuid.UUID) (*ReturnResult, error) {
	c, err := l.terminate(ctx, contractID, models.Contract.Return)
	if err != nil {
		return nil, err
	}
	refund, err := l.totalPaid(ctx, l.storage, contractID)
	if err != nil {
		return nil, err
	}
	return &ReturnResult{Contract: c, RefundDue: refund}, nil
}

func (l *Ledger) terminate(ctx context.Context, contractID uuid.UUID, transition func(models.Contract, time.Time) (models.Contract, error)) (*models.Contract, error) {
	var ended models.Contract
	err := l.mutate(ctx, contractID, func(repo store.Repository, c *models.Contract) error {
		now := l.clock()
		var err error
		ended, err = transition(*c, now)
		if err != nil {
			return err
		}
		if err := repo.UpdateContract(ctx, &ended); err != nil {
			return err
		}

		lot, err := repo.GetLot(ctx, c.LotID)
		if err != nil {
			return err
		}
		released := lot.Release(now)
		return repo.UpdateLot(ctx, &released)
	})
	if err != nil {
		return nil, err
	}
	l.logTransition(&ended)
	return &ended, nil
}

func (l *Ledger) totalPaid(ctx context.Context, repo store.Repository, contractID uuid.UUID) (decimal.Decimal, error) {
	payments, err := repo.GetPaymentsForContract(ctx, contractID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total, nil
}

func (l *Ledger) logTransition(c *models.Contract) {
	l.log.WithFields(logrus.Fields{
		"contract_id": c.ID,
		"lot_id":      c.LotID,
		"state":       c.State,
	}).Info("contract state changed")
}
