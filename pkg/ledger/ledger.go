package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/lock"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/mcclellann/lotledger/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound               = store.ErrNotFound
	ErrInsufficientSettlement = models.ErrOutstandingBalance
	ErrInvalidTransition      = models.ErrInvalidTransition
	ErrInvalidPolicy          = models.ErrInvalidPolicy
	ErrMalformedPaymentAmount = errors.New("payment amount must be a positive number")
	ErrInvalidPaymentMethod   = errors.New("unknown payment method")
	ErrContractNotActive      = errors.New("contract is not active")
	ErrLotUnavailable         = errors.New("lot is not available")
	ErrInvalidSale            = errors.New("invalid sale")
	ErrInvalidLot             = errors.New("invalid lot")
)

// Ledger handles the business logic for contracts, installments and payments.
type Ledger struct {
	storage store.Storage
	locker  lock.Locker
	now     func() time.Time
	log     logrus.FieldLogger
}

type Option func(*Ledger)

// WithLocker replaces the default in-process lock, e.g. with a Redis one shared by several instances.
func WithLocker(locker lock.Locker) Option {
	return func(l *Ledger) { l.locker = locker }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) { l.log = log }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		locker:  lock.NewMemoryLocker(),
		now:     time.Now,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) clock() time.Time {
	return l.now().UTC()
}

func (l *Ledger) today() time.Time {
	return models.DateOf(l.clock())
}

func contractKey(id uuid.UUID) string { return "contract:" + id.String() }

func lotKey(id uuid.UUID) string { return "lot:" + id.String() }

// withLock holds key's lock for the duration of fn.
func (l *Ledger) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := l.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

// mutate serializes work on one contract: it takes the contract lock, opens a
// transaction and reads the contract row for update before calling fn.
func (l *Ledger) mutate(ctx context.Context, contractID uuid.UUID, fn func(repo store.Repository, c *models.Contract) error) error {
	return l.withLock(ctx, contractKey(contractID), func() error {
		return l.storage.WithTx(ctx, func(repo store.Repository) error {
			c, err := repo.GetContractForUpdate(ctx, contractID)
			if err != nil {
				return err
			}
			return fn(repo, c)
		})
	})
}

// refresh runs the delinquency sweep for c inside the caller's transaction and
// returns the contract's installments as they now stand.
func (l *Ledger) refresh(ctx context.Context, repo store.Repository, c *models.Contract) ([]models.Installment, error) {
	policy, err := repo.GetPolicy(ctx)
	if err != nil {
		return nil, err
	}
	installments, err := repo.GetInstallments(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	a := AssessDelinquency(installments, policy, l.today())
	for _, i := range a.Changed {
		if err := repo.UpdateInstallment(ctx, &a.Installments[i]); err != nil {
			return nil, err
		}
	}

	if a.InDelinquency != c.InDelinquency {
		c.InDelinquency = a.InDelinquency
		c.UpdatedAt = l.clock()
		if err := repo.UpdateContract(ctx, c); err != nil {
			return nil, err
		}
		l.log.WithFields(logrus.Fields{
			"contract_id":    c.ID,
			"in_delinquency": c.InDelinquency,
		}).Info("delinquency flag changed")
	}
	return a.Installments, nil
}

// GenerateSchedule (re)builds a contract's installments, replacing any existing ones.
// start overrides the first due date, which otherwise is the contract date.
// It returns false without touching anything when the contract's term is not positive.
func (l *Ledger) GenerateSchedule(ctx context.Context, contractID uuid.UUID, start *time.Time) (bool, error) {
	generated := false
	err := l.mutate(ctx, contractID, func(repo store.Repository, c *models.Contract) error {
		if c.State != models.ContractStateActive {
			return fmt.Errorf("%w: %s", ErrContractNotActive, c.State)
		}
		if c.Term <= 0 {
			return nil
		}
		if err := l.generate(ctx, repo, c, start); err != nil {
			return err
		}
		generated = true
		return nil
	})
	return generated, err
}

func (l *Ledger) generate(ctx context.Context, repo store.Repository, c *models.Contract, start *time.Time) error {
	first := c.ContractDate
	if start != nil {
		first = models.DateOf(*start)
	}
	installments := BuildSchedule(c.ID, c.FinancedBalance, c.Term, first)
	if err := repo.ReplaceInstallments(ctx, c.ID, installments); err != nil {
		return err
	}
	l.log.WithFields(logrus.Fields{
		"contract_id": c.ID,
		"term":        c.Term,
		"first_due":   first.Format(time.DateOnly),
	}).Info("schedule generated")

	_, err := l.refresh(ctx, repo, c)
	return err
}

// RefreshDelinquency recomputes penalties, statuses and the delinquency flag of a contract.
func (l *Ledger) RefreshDelinquency(ctx context.Context, contractID uuid.UUID) error {
	return l.mutate(ctx, contractID, func(repo store.Repository, c *models.Contract) error {
		_, err := l.refresh(ctx, repo, c)
		return err
	})
}

// PaymentRequest is money received against a contract.
type PaymentRequest struct {
	ContractID  uuid.UUID
	Amount      decimal.Decimal
	Method      models.PaymentMethod
	Bank        *models.BankDetails
	EvidenceRef string
	Note        string
	RecordedBy  string
}

// ApplyPayment records a payment and allocates it over the contract's outstanding
// installments in sequence order. The payment, the installment updates and the
// delinquency refresh commit together or not at all.
func (l *Ledger) ApplyPayment(ctx context.Context, req PaymentRequest) (*models.Payment, error) {
	amount := models.RoundCents(req.Amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPaymentAmount, req.Amount)
	}
	if !req.Method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.Method)
	}

	var payment *models.Payment
	err := l.mutate(ctx, req.ContractID, func(repo store.Repository, c *models.Contract) error {
		if c.State != models.ContractStateActive {
			return fmt.Errorf("%w: %s", ErrContractNotActive, c.State)
		}

		now := l.clock()
		p := &models.Payment{
			ID:          uuid.New(),
			ContractID:  c.ID,
			Amount:      amount,
			PaidOn:      models.DateOf(now),
			Method:      req.Method,
			Bank:        req.Bank,
			EvidenceRef: req.EvidenceRef,
			Note:        req.Note,
			RecordedBy:  req.RecordedBy,
			CreatedAt:   now,
		}
		if err := repo.CreatePayment(ctx, p); err != nil {
			return err
		}

		installments, err := repo.GetInstallments(ctx, c.ID)
		if err != nil {
			return err
		}
		outstanding := installments[:0]
		for _, inst := range installments {
			if inst.Status.Outstanding() {
				outstanding = append(outstanding, inst)
			}
		}

		res := Allocate(outstanding, amount, p.PaidOn)
		for i := range res.Installments {
			if err := repo.UpdateInstallment(ctx, &res.Installments[i]); err != nil {
				return err
			}
			res.Allocations[i].PaymentID = p.ID
		}
		if err := repo.CreateAllocations(ctx, res.Allocations); err != nil {
			return err
		}

		if res.Surplus.IsPositive() {
			note := SurplusNote(res.Surplus)
			if p.Note != "" {
				note = p.Note + "\n" + note
			}
			if err := repo.UpdatePaymentNote(ctx, p.ID, note); err != nil {
				return err
			}
			p.Note = note
			l.log.WithFields(logrus.Fields{
				"contract_id": c.ID,
				"payment_id":  p.ID,
				"surplus":     res.Surplus.StringFixed(2),
			}).Info("payment exceeded outstanding balance")
		}

		if _, err := l.refresh(ctx, repo, c); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"contract_id": req.ContractID,
		"payment_id":  payment.ID,
		"amount":      payment.Amount.StringFixed(2),
		"recorded_by": payment.RecordedBy,
	}).Info("payment applied")
	return payment, nil
}

// TogglePenaltyExemption flips an installment's exemption flag and refreshes its contract.
func (l *Ledger) TogglePenaltyExemption(ctx context.Context, installmentID uuid.UUID) (*models.Installment, error) {
	inst, err := l.storage.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}

	var updated *models.Installment
	err = l.mutate(ctx, inst.ContractID, func(repo store.Repository, c *models.Contract) error {
		current, err := repo.GetInstallment(ctx, installmentID)
		if err != nil {
			return err
		}
		current.PenaltyExempt = !current.PenaltyExempt
		if err := repo.UpdateInstallment(ctx, current); err != nil {
			return err
		}

		installments, err := l.refresh(ctx, repo, c)
		if err != nil {
			return err
		}
		for i := range installments {
			if installments[i].ID == installmentID {
				updated = &installments[i]
			}
		}
		l.log.WithFields(logrus.Fields{
			"contract_id":    c.ID,
			"installment_id": installmentID,
			"exempt":         current.PenaltyExempt,
		}).Info("penalty exemption toggled")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
