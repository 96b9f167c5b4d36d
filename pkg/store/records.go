package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
)

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := models.DateOf(nt.Time)
	return &t
}

// expectOne turns a zero-row UPDATE into ErrNotFound.
func expectOne(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// ---- lots

const lotColumns = `id, block, number, dimensions, cash_price, status, city, parish, province, canton, created_by, created_at, updated_at`

func scanLot(s scanner) (*models.Lot, error) {
	var lot models.Lot
	err := s.Scan(&lot.ID, &lot.Block, &lot.Number, &lot.Dimensions, &lot.CashPrice, &lot.Status,
		&lot.City, &lot.Parish, &lot.Province, &lot.Canton, &lot.CreatedBy, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// CreateLot inserts a new lot.
func (r *sqlRepo) CreateLot(ctx context.Context, lot *models.Lot) error {
	_, err := r.exec(ctx,
		`INSERT INTO lots (`+lotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID, lot.Block, lot.Number, lot.Dimensions, lot.CashPrice, lot.Status,
		lot.City, lot.Parish, lot.Province, lot.Canton, lot.CreatedBy, lot.CreatedAt, lot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lot: %w", err)
	}
	return nil
}

// GetLot retrieves a lot by its ID.
func (r *sqlRepo) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	lot, err := scanLot(r.queryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "lot")
	}
	return lot, nil
}

// UpdateLot overwrites a lot's mutable fields.
func (r *sqlRepo) UpdateLot(ctx context.Context, lot *models.Lot) error {
	result, err := r.exec(ctx,
		`UPDATE lots SET block = ?, number = ?, dimensions = ?, cash_price = ?, status = ?, city = ?, parish = ?, province = ?, canton = ?, updated_at = ? WHERE id = ?`,
		lot.Block, lot.Number, lot.Dimensions, lot.CashPrice, lot.Status, lot.City, lot.Parish, lot.Province, lot.Canton, lot.UpdatedAt, lot.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update lot: %w", err)
	}
	return expectOne(result, "lot")
}

// ListLots returns lots ordered by block and number; an empty status returns all of them.
func (r *sqlRepo) ListLots(ctx context.Context, status models.LotStatus) ([]*models.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	rows, err := r.query(ctx, query+` ORDER BY block, number`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	defer rows.Close()

	var lots []*models.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot row: %w", err)
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// ---- clients

const clientColumns = `id, national_id, first_names, last_names, phone, email, address, seller, registered_at`

func scanClient(s scanner) (*models.Client, error) {
	var c models.Client
	if err := s.Scan(&c.ID, &c.NationalID, &c.FirstNames, &c.LastNames, &c.Phone, &c.Email, &c.Address, &c.Seller, &c.RegisteredAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *sqlRepo) CreateClient(ctx context.Context, c *models.Client) error {
	_, err := r.exec(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.NationalID, c.FirstNames, c.LastNames, c.Phone, c.Email, c.Address, c.Seller, c.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (r *sqlRepo) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	c, err := scanClient(r.queryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "client")
	}
	return c, nil
}

func (r *sqlRepo) ListClients(ctx context.Context) ([]*models.Client, error) {
	rows, err := r.query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY last_names, first_names`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// ---- contracts

const contractColumns = `id, client_id, lot_id, contract_date, cancellation_date, final_price, down_payment, financed_balance, term, state, in_delinquency, created_at, updated_at`

func scanContract(s scanner) (*models.Contract, error) {
	var c models.Contract
	var cancelled sql.NullTime
	err := s.Scan(&c.ID, &c.ClientID, &c.LotID, &c.ContractDate, &cancelled, &c.FinalPrice, &c.DownPayment,
		&c.FinancedBalance, &c.Term, &c.State, &c.InDelinquency, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ContractDate = models.DateOf(c.ContractDate)
	c.CancellationDate = timePtr(cancelled)
	return &c, nil
}

// CreateContract inserts a new contract.
func (r *sqlRepo) CreateContract(ctx context.Context, c *models.Contract) error {
	_, err := r.exec(ctx,
		`INSERT INTO contracts (`+contractColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClientID, c.LotID, c.ContractDate, nullTime(c.CancellationDate), c.FinalPrice, c.DownPayment,
		c.FinancedBalance, c.Term, c.State, c.InDelinquency, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

// GetContract retrieves a contract by its ID.
func (r *sqlRepo) GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	c, err := scanContract(r.queryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "contract")
	}
	return c, nil
}

// GetContractForUpdate is GetContract with a row lock on backends that have one.
func (r *sqlRepo) GetContractForUpdate(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	c, err := scanContract(r.queryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`+r.d.lockClause, id))
	if err != nil {
		return nil, notFound(err, "contract")
	}
	return c, nil
}

// UpdateContract persists lifecycle state. Financial fields are frozen at creation and not written.
func (r *sqlRepo) UpdateContract(ctx context.Context, c *models.Contract) error {
	result, err := r.exec(ctx,
		`UPDATE contracts SET cancellation_date = ?, state = ?, in_delinquency = ?, updated_at = ? WHERE id = ?`,
		nullTime(c.CancellationDate), c.State, c.InDelinquency, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	return expectOne(result, "contract")
}

// ListContracts returns contracts matching filter, newest first.
func (r *sqlRepo) ListContracts(ctx context.Context, f ContractFilter) ([]*models.Contract, error) {
	var where []string
	var args []any
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, f.State)
	}
	if f.InDelinquency != nil {
		where = append(where, "in_delinquency = ?")
		args = append(args, *f.InDelinquency)
	}
	if f.EndedFrom != nil {
		where = append(where, "cancellation_date >= ?")
		args = append(args, models.DateOf(*f.EndedFrom))
	}
	if f.EndedTo != nil {
		where = append(where, "cancellation_date <= ?")
		args = append(args, models.DateOf(*f.EndedTo))
	}

	query := `SELECT ` + contractColumns + ` FROM contracts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract row: %w", err)
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func (r *sqlRepo) CountContracts(ctx context.Context) (int, error) {
	var n int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM contracts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count contracts: %w", err)
	}
	return n, nil
}

// ---- installments

const installmentColumns = `id, contract_id, sequence, due_date, principal, penalty, amount_paid, status, penalty_exempt, last_payment_on`

func scanInstallment(s scanner) (models.Installment, error) {
	var inst models.Installment
	var lastPayment sql.NullTime
	err := s.Scan(&inst.ID, &inst.ContractID, &inst.Sequence, &inst.DueDate, &inst.Principal, &inst.Penalty,
		&inst.AmountPaid, &inst.Status, &inst.PenaltyExempt, &lastPayment)
	if err != nil {
		return inst, err
	}
	inst.DueDate = models.DateOf(inst.DueDate)
	inst.LastPaymentOn = timePtr(lastPayment)
	return inst, nil
}

// ReplaceInstallments deletes the current schedule and bulk-inserts the new one.
func (r *sqlRepo) ReplaceInstallments(ctx context.Context, contractID uuid.UUID, installments []models.Installment) error {
	if _, err := r.exec(ctx, `DELETE FROM installments WHERE contract_id = ?`, contractID); err != nil {
		return fmt.Errorf("failed to delete installments: %w", err)
	}

	for start := 0; start < len(installments); start += insertBatchSize {
		end := min(start+insertBatchSize, len(installments))
		batch := installments[start:end]

		valueStrings := make([]string, 0, len(batch))
		valueArgs := make([]any, 0, len(batch)*10)
		for _, inst := range batch {
			valueStrings = append(valueStrings, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			valueArgs = append(valueArgs,
				inst.ID, contractID, inst.Sequence, inst.DueDate, inst.Principal, inst.Penalty,
				inst.AmountPaid, inst.Status, inst.PenaltyExempt, nullTime(inst.LastPaymentOn),
			)
		}
		stmt := `INSERT INTO installments (` + installmentColumns + `) VALUES ` + strings.Join(valueStrings, ",")
		if _, err := r.exec(ctx, stmt, valueArgs...); err != nil {
			return fmt.Errorf("failed to insert installments: %w", err)
		}
	}
	return nil
}

func (r *sqlRepo) GetInstallment(ctx context.Context, id uuid.UUID) (*models.Installment, error) {
	inst, err := scanInstallment(r.queryRow(ctx, `SELECT `+installmentColumns+` FROM installments WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "installment")
	}
	return &inst, nil
}

func (r *sqlRepo) GetInstallments(ctx context.Context, contractID uuid.UUID) ([]models.Installment, error) {
	rows, err := r.query(ctx, `SELECT `+installmentColumns+` FROM installments WHERE contract_id = ? ORDER BY sequence`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to get installments for contract %s: %w", contractID, err)
	}
	defer rows.Close()

	var installments []models.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		installments = append(installments, inst)
	}
	return installments, rows.Err()
}

// UpdateInstallment writes the accounting state of an installment.
func (r *sqlRepo) UpdateInstallment(ctx context.Context, inst *models.Installment) error {
	result, err := r.exec(ctx,
		`UPDATE installments SET penalty = ?, amount_paid = ?, status = ?, penalty_exempt = ?, last_payment_on = ? WHERE id = ?`,
		inst.Penalty, inst.AmountPaid, inst.Status, inst.PenaltyExempt, nullTime(inst.LastPaymentOn), inst.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	return expectOne(result, "installment")
}

// ---- payments

const paymentColumns = `id, contract_id, amount, paid_on, method, bank_name, bank_account, evidence_ref, note, recorded_by, created_at`

func scanPayment(s scanner) (*models.Payment, error) {
	var p models.Payment
	var bankName, bankAccount sql.NullString
	err := s.Scan(&p.ID, &p.ContractID, &p.Amount, &p.PaidOn, &p.Method, &bankName, &bankAccount,
		&p.EvidenceRef, &p.Note, &p.RecordedBy, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.PaidOn = models.DateOf(p.PaidOn)
	if bankName.Valid || bankAccount.Valid {
		p.Bank = &models.BankDetails{BankName: bankName.String, AccountRef: bankAccount.String}
	}
	return &p, nil
}

// CreatePayment inserts a new payment.
func (r *sqlRepo) CreatePayment(ctx context.Context, p *models.Payment) error {
	var bankName, bankAccount sql.NullString
	if p.Bank != nil {
		bankName = sql.NullString{String: p.Bank.BankName, Valid: true}
		bankAccount = sql.NullString{String: p.Bank.AccountRef, Valid: true}
	}
	_, err := r.exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ContractID, p.Amount, p.PaidOn, p.Method, bankName, bankAccount, p.EvidenceRef, p.Note, p.RecordedBy, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// UpdatePaymentNote is the only mutation a payment allows.
func (r *sqlRepo) UpdatePaymentNote(ctx context.Context, id uuid.UUID, note string) error {
	result, err := r.exec(ctx, `UPDATE payments SET note = ? WHERE id = ?`, note, id)
	if err != nil {
		return fmt.Errorf("failed to update payment note: %w", err)
	}
	return expectOne(result, "payment")
}

func (r *sqlRepo) scanPayments(rows *sql.Rows) ([]*models.Payment, error) {
	defer rows.Close()
	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetPaymentsForContract returns a contract's payments in recording order.
func (r *sqlRepo) GetPaymentsForContract(ctx context.Context, contractID uuid.UUID) ([]*models.Payment, error) {
	rows, err := r.query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE contract_id = ? ORDER BY created_at, id`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for contract %s: %w", contractID, err)
	}
	return r.scanPayments(rows)
}

// ListPaymentsBetween returns payments dated within [from, to].
func (r *sqlRepo) ListPaymentsBetween(ctx context.Context, from, to time.Time) ([]*models.Payment, error) {
	rows, err := r.query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE paid_on >= ? AND paid_on <= ? ORDER BY paid_on, created_at, id`,
		models.DateOf(from), models.DateOf(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return r.scanPayments(rows)
}

func (r *sqlRepo) CreateAllocations(ctx context.Context, allocations []models.PaymentAllocation) error {
	for _, a := range allocations {
		_, err := r.exec(ctx,
			`INSERT INTO payment_allocations (id, payment_id, installment_id, sequence, amount) VALUES (?, ?, ?, ?, ?)`,
			a.ID, a.PaymentID, a.InstallmentID, a.Sequence, a.Amount,
		)
		if err != nil {
			return fmt.Errorf("failed to create payment allocation: %w", err)
		}
	}
	return nil
}

func (r *sqlRepo) GetAllocationsForPayment(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAllocation, error) {
	rows, err := r.query(ctx,
		`SELECT id, payment_id, installment_id, sequence, amount FROM payment_allocations WHERE payment_id = ? ORDER BY sequence`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get allocations for payment %s: %w", paymentID, err)
	}
	defer rows.Close()

	var allocations []models.PaymentAllocation
	for rows.Next() {
		var a models.PaymentAllocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.InstallmentID, &a.Sequence, &a.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan allocation row: %w", err)
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// ---- delinquency policy

const policyID = 1

func (r *sqlRepo) GetPolicy(ctx context.Context) (models.DelinquencyPolicy, error) {
	var p models.DelinquencyPolicy
	err := r.queryRow(ctx,
		`SELECT mode, mild_days, mild_amount, moderate_days, moderate_amount, severe_days, severe_amount, percentage, updated_at
		FROM delinquency_policies WHERE id = ?`, policyID,
	).Scan(&p.Mode, &p.Mild.Days, &p.Mild.Amount, &p.Moderate.Days, &p.Moderate.Amount,
		&p.Severe.Days, &p.Severe.Amount, &p.Percentage, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultPolicy(), nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to get delinquency policy: %w", err)
	}
	return p, nil
}

func (r *sqlRepo) SavePolicy(ctx context.Context, p models.DelinquencyPolicy) error {
	_, err := r.exec(ctx,
		`INSERT INTO delinquency_policies (id, mode, mild_days, mild_amount, moderate_days, moderate_amount, severe_days, severe_amount, percentage, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET mode = excluded.mode, mild_days = excluded.mild_days, mild_amount = excluded.mild_amount,
			moderate_days = excluded.moderate_days, moderate_amount = excluded.moderate_amount,
			severe_days = excluded.severe_days, severe_amount = excluded.severe_amount,
			percentage = excluded.percentage, updated_at = excluded.updated_at`,
		policyID, p.Mode, p.Mild.Days, p.Mild.Amount, p.Moderate.Days, p.Moderate.Amount,
		p.Severe.Days, p.Severe.Amount, p.Percentage, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save delinquency policy: %w", err)
	}
	return nil
}
