package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LotStatus string

const (
	LotStatusAvailable LotStatus = "AVAILABLE"
	LotStatusReserved  LotStatus = "RESERVED"
	LotStatusSold      LotStatus = "SOLD"
)

// Lot is a unit of land in the inventory.
type Lot struct {
	ID         uuid.UUID       `json:"id"`
	Block      string          `json:"block"` // manzana
	Number     string          `json:"number"`
	Dimensions string          `json:"dimensions"` // e.g. "10x20m"
	CashPrice  decimal.Decimal `json:"cash_price"`
	Status     LotStatus       `json:"status"`
	City       string          `json:"city,omitempty"`
	Parish     string          `json:"parish,omitempty"`
	Province   string          `json:"province,omitempty"`
	Canton     string          `json:"canton,omitempty"`
	CreatedBy  string          `json:"created_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Client is the buyer of a lot.
type Client struct {
	ID           uuid.UUID `json:"id"`
	NationalID   string    `json:"national_id"`
	FirstNames   string    `json:"first_names"`
	LastNames    string    `json:"last_names"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email,omitempty"`
	Address      string    `json:"address"`
	Seller       string    `json:"seller"` // user who registered the client
	RegisteredAt time.Time `json:"registered_at"`
}

// FullName returns "LastNames FirstNames", the order used on documents.
func (c Client) FullName() string {
	return c.LastNames + " " + c.FirstNames
}

type ContractState string

const (
	ContractStateActive    ContractState = "ACTIVE"
	ContractStateClosed    ContractState = "CLOSED"
	ContractStateVoided    ContractState = "VOIDED"
	ContractStateCancelled ContractState = "CANCELLED"
	ContractStateReturned  ContractState = "RETURNED"
)

// Contract is the financing agreement for a lot. Financial fields are frozen at sale time.
type Contract struct {
	ID               uuid.UUID       `json:"id"`
	ClientID         uuid.UUID       `json:"client_id"`
	LotID            uuid.UUID       `json:"lot_id"`
	ContractDate     time.Time       `json:"contract_date"`
	CancellationDate *time.Time      `json:"cancellation_date,omitempty"` // set by close-like transitions other than CLOSED
	FinalPrice       decimal.Decimal `json:"final_price"`
	DownPayment      decimal.Decimal `json:"down_payment"`
	FinancedBalance  decimal.Decimal `json:"financed_balance"`
	Term             int             `json:"term"` // number of installments
	State            ContractState   `json:"state"`
	InDelinquency    bool            `json:"in_delinquency"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "PENDING"
	InstallmentStatusPartial InstallmentStatus = "PARTIAL"
	InstallmentStatusPaid    InstallmentStatus = "PAID"
	InstallmentStatusOverdue InstallmentStatus = "OVERDUE"
)

// Outstanding reports whether an installment still takes part in allocation and delinquency sweeps.
func (s InstallmentStatus) Outstanding() bool {
	return s == InstallmentStatusPending || s == InstallmentStatusPartial || s == InstallmentStatusOverdue
}

// Installment is one cuota of a contract's amortization schedule.
type Installment struct {
	ID            uuid.UUID         `json:"id"`
	ContractID    uuid.UUID         `json:"contract_id"`
	Sequence      int               `json:"sequence"` // 1..N, chronological order
	DueDate       time.Time         `json:"due_date"`
	Principal     decimal.Decimal   `json:"principal"`
	Penalty       decimal.Decimal   `json:"penalty"`
	AmountPaid    decimal.Decimal   `json:"amount_paid"`
	Status        InstallmentStatus `json:"status"`
	PenaltyExempt bool              `json:"penalty_exempt"`
	LastPaymentOn *time.Time        `json:"last_payment_on,omitempty"`
}

// Total is principal plus accrued penalty.
func (i Installment) Total() decimal.Decimal {
	return i.Principal.Add(i.Penalty)
}

// Owed is what remains to be paid; it can be negative on over-settled rows.
func (i Installment) Owed() decimal.Decimal {
	return i.Total().Sub(i.AmountPaid)
}

// Remaining is Owed with sub-cent residues reported as zero.
func (i Installment) Remaining() decimal.Decimal {
	owed := i.Owed()
	if IsNegligible(owed) {
		return decimal.Zero
	}
	return owed
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodTransfer
}

// BankDetails identifies the account a transfer or deposit came from.
type BankDetails struct {
	BankName   string `json:"bank_name"`
	AccountRef string `json:"account_ref"` // account or voucher number
}

// Payment is money received against a contract. Only Note may change after creation.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	ContractID  uuid.UUID       `json:"contract_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaidOn      time.Time       `json:"paid_on"`
	Method      PaymentMethod   `json:"method"`
	Bank        *BankDetails    `json:"bank,omitempty"`
	EvidenceRef string          `json:"evidence_ref,omitempty"`
	Note        string          `json:"note,omitempty"`
	RecordedBy  string          `json:"recorded_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PaymentAllocation is the slice of a payment applied to one installment.
type PaymentAllocation struct {
	ID            uuid.UUID       `json:"id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	InstallmentID uuid.UUID       `json:"installment_id"`
	Sequence      int             `json:"sequence"`
	Amount        decimal.Decimal `json:"amount"`
}
