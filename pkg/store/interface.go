package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// ContractFilter narrows ListContracts. Zero values mean "any".
type ContractFilter struct {
	State         models.ContractState
	InDelinquency *bool
	EndedFrom     *time.Time // cancellation date lower bound, inclusive
	EndedTo       *time.Time // cancellation date upper bound, inclusive
	Limit         int        // most recent first when set
}

// Repository defines the record-level operations for the ledger.
type Repository interface {
	CreateLot(ctx context.Context, lot *models.Lot) error
	GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error)
	UpdateLot(ctx context.Context, lot *models.Lot) error
	ListLots(ctx context.Context, status models.LotStatus) ([]*models.Lot, error)

	CreateClient(ctx context.Context, client *models.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	ListClients(ctx context.Context) ([]*models.Client, error)

	CreateContract(ctx context.Context, contract *models.Contract) error
	GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	// GetContractForUpdate reads a contract and, where the backend supports it, locks its row
	// until the surrounding transaction ends.
	GetContractForUpdate(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	UpdateContract(ctx context.Context, contract *models.Contract) error
	ListContracts(ctx context.Context, filter ContractFilter) ([]*models.Contract, error)
	CountContracts(ctx context.Context) (int, error)

	// ReplaceInstallments deletes a contract's schedule and inserts the given one.
	ReplaceInstallments(ctx context.Context, contractID uuid.UUID, installments []models.Installment) error
	GetInstallment(ctx context.Context, id uuid.UUID) (*models.Installment, error)
	// GetInstallments returns a contract's installments ordered by sequence.
	GetInstallments(ctx context.Context, contractID uuid.UUID) ([]models.Installment, error)
	UpdateInstallment(ctx context.Context, installment *models.Installment) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdatePaymentNote(ctx context.Context, id uuid.UUID, note string) error
	GetPaymentsForContract(ctx context.Context, contractID uuid.UUID) ([]*models.Payment, error)
	ListPaymentsBetween(ctx context.Context, from, to time.Time) ([]*models.Payment, error)
	CreateAllocations(ctx context.Context, allocations []models.PaymentAllocation) error
	GetAllocationsForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAllocation, error)

	// GetPolicy returns the stored delinquency policy, or the default one if none was saved.
	GetPolicy(ctx context.Context) (models.DelinquencyPolicy, error)
	SavePolicy(ctx context.Context, policy models.DelinquencyPolicy) error
}

// Storage is a Repository that can also run a unit of work atomically.
type Storage interface {
	Repository

	// WithTx runs fn against a transactional Repository. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}
