package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/shopspring/decimal"
)

// LotInput holds the descriptive fields of a lot. Status is never set directly.
type LotInput struct {
	Block      string
	Number     string
	Dimensions string
	CashPrice  decimal.Decimal
	City       string
	Parish     string
	Province   string
	Canton     string
}

func (in LotInput) validate() error {
	if strings.TrimSpace(in.Block) == "" || strings.TrimSpace(in.Number) == "" {
		return fmt.Errorf("%w: block and number are required", ErrInvalidLot)
	}
	if in.CashPrice.IsNegative() {
		return fmt.Errorf("%w: negative cash price", ErrInvalidLot)
	}
	return nil
}

func (in LotInput) applyTo(lot *models.Lot) {
	lot.Block = strings.TrimSpace(in.Block)
	lot.Number = strings.TrimSpace(in.Number)
	lot.Dimensions = in.Dimensions
	lot.CashPrice = models.RoundCents(in.CashPrice)
	lot.City = in.City
	lot.Parish = in.Parish
	lot.Province = in.Province
	lot.Canton = in.Canton
}

// CreateLot adds an AVAILABLE lot to the inventory.
func (l *Ledger) CreateLot(ctx context.Context, in LotInput, createdBy string) (*models.Lot, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := l.clock()
	lot := &models.Lot{
		ID:        uuid.New(),
		Status:    models.LotStatusAvailable,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.applyTo(lot)
	if err := l.storage.CreateLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("failed to store lot: %w", err)
	}
	return lot, nil
}

func (l *Ledger) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	return l.storage.GetLot(ctx, id)
}

// UpdateLot edits a lot's description and price. The lot lock keeps it from racing a sale.
func (l *Ledger) UpdateLot(ctx context.Context, id uuid.UUID, in LotInput) (*models.Lot, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var lot *models.Lot
	err := l.withLock(ctx, lotKey(id), func() error {
		current, err := l.storage.GetLot(ctx, id)
		if err != nil {
			return err
		}
		in.applyTo(current)
		current.UpdatedAt = l.clock()
		if err := l.storage.UpdateLot(ctx, current); err != nil {
			return err
		}
		lot = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// ListLots lists the inventory, optionally only lots in the given status.
func (l *Ledger) ListLots(ctx context.Context, status models.LotStatus) ([]*models.Lot, error) {
	return l.storage.ListLots(ctx, status)
}
