package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/mcclellann/lotledger/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// downPaymentNote marks the payment booked together with a sale.
const downPaymentNote = "Down payment"

// ClientInput is the buyer data captured at sale time.
type ClientInput struct {
	NationalID string
	FirstNames string
	LastNames  string
	Phone      string
	Email      string
	Address    string
}

// SaleRequest books a lot for a new client.
type SaleRequest struct {
	LotID        uuid.UUID
	Client       ClientInput
	ContractDate time.Time  // zero means today
	FirstDueDate *time.Time // defaults to the contract date
	FinalPrice   decimal.Decimal
	DownPayment  decimal.Decimal
	Term         int

	// down payment receipt
	Method      models.PaymentMethod
	Bank        *models.BankDetails
	EvidenceRef string

	RecordedBy string
}

func (r SaleRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Client.NationalID) == "" || strings.TrimSpace(r.Client.LastNames) == "":
		return fmt.Errorf("%w: client national id and last names are required", ErrInvalidSale)
	case !r.FinalPrice.IsPositive():
		return fmt.Errorf("%w: final price must be positive", ErrInvalidSale)
	case r.DownPayment.IsNegative():
		return fmt.Errorf("%w: down payment cannot be negative", ErrInvalidSale)
	case r.DownPayment.GreaterThan(r.FinalPrice):
		return fmt.Errorf("%w: down payment %s exceeds final price %s", ErrInvalidSale, r.DownPayment, r.FinalPrice)
	case r.Term < 0:
		return fmt.Errorf("%w: negative term", ErrInvalidSale)
	case r.Term == 0 && r.DownPayment.LessThan(r.FinalPrice):
		return fmt.Errorf("%w: a financed balance needs a term", ErrInvalidSale)
	case r.DownPayment.IsPositive() && !r.Method.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, r.Method)
	}
	return nil
}

// CreateSale registers the client, books the contract, records the down payment,
// marks the lot SOLD and generates the schedule, all in one transaction.
func (l *Ledger) CreateSale(ctx context.Context, req SaleRequest) (*models.Contract, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var contract *models.Contract
	err := l.withLock(ctx, lotKey(req.LotID), func() error {
		return l.storage.WithTx(ctx, func(repo store.Repository) error {
			now := l.clock()

			lot, err := repo.GetLot(ctx, req.LotID)
			if err != nil {
				return err
			}
			sold, err := lot.Sell(now)
			if err != nil {
				return fmt.Errorf("%w: lot %s-%s is %s", ErrLotUnavailable, lot.Block, lot.Number, lot.Status)
			}
			if err := repo.UpdateLot(ctx, &sold); err != nil {
				return err
			}

			client := &models.Client{
				ID:           uuid.New(),
				NationalID:   strings.TrimSpace(req.Client.NationalID),
				FirstNames:   strings.TrimSpace(req.Client.FirstNames),
				LastNames:    strings.TrimSpace(req.Client.LastNames),
				Phone:        req.Client.Phone,
				Email:        req.Client.Email,
				Address:      req.Client.Address,
				Seller:       req.RecordedBy,
				RegisteredAt: now,
			}
			if err := repo.CreateClient(ctx, client); err != nil {
				return err
			}

			contractDate := models.DateOf(now)
			if !req.ContractDate.IsZero() {
				contractDate = models.DateOf(req.ContractDate)
			}
			finalPrice := models.RoundCents(req.FinalPrice)
			downPayment := models.RoundCents(req.DownPayment)
			c := &models.Contract{
				ID:              uuid.New(),
				ClientID:        client.ID,
				LotID:           lot.ID,
				ContractDate:    contractDate,
				FinalPrice:      finalPrice,
				DownPayment:     downPayment,
				FinancedBalance: finalPrice.Sub(downPayment),
				Term:            req.Term,
				State:           models.ContractStateActive,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := repo.CreateContract(ctx, c); err != nil {
				return err
			}

			if downPayment.IsPositive() {
				err := repo.CreatePayment(ctx, &models.Payment{
					ID:          uuid.New(),
					ContractID:  c.ID,
					Amount:      downPayment,
					PaidOn:      contractDate,
					Method:      req.Method,
					Bank:        req.Bank,
					EvidenceRef: req.EvidenceRef,
					Note:        downPaymentNote,
					RecordedBy:  req.RecordedBy,
					CreatedAt:   now,
				})
				if err != nil {
					return err
				}
			}

			if c.Term > 0 {
				if err := l.generate(ctx, repo, c, req.FirstDueDate); err != nil {
					return err
				}
			}
			contract = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"contract_id":      contract.ID,
		"lot_id":           contract.LotID,
		"financed_balance": contract.FinancedBalance.StringFixed(2),
		"term":             contract.Term,
	}).Info("sale booked")
	return contract, nil
}

// ListClients returns every registered buyer ordered by surname.
func (l *Ledger) ListClients(ctx context.Context) ([]*models.Client, error) {
	return l.storage.ListClients(ctx)
}

// ListContracts returns contracts matching filter, newest first.
func (l *Ledger) ListContracts(ctx context.Context, filter store.ContractFilter) ([]*models.Contract, error) {
	return l.storage.ListContracts(ctx, filter)
}
