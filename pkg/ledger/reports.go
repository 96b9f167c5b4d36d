package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/mcclellann/lotledger/pkg/store"
	"github.com/shopspring/decimal"
)

const recentContracts = 5

// Dashboard is the landing summary.
type Dashboard struct {
	TotalContracts  int                `json:"total_contracts"`
	CollectedToday  decimal.Decimal    `json:"collected_today"`
	RecentContracts []*models.Contract `json:"recent_contracts"`
}

func (l *Ledger) Dashboard(ctx context.Context) (*Dashboard, error) {
	total, err := l.storage.CountContracts(ctx)
	if err != nil {
		return nil, err
	}
	today := l.today()
	payments, err := l.storage.ListPaymentsBetween(ctx, today, today)
	if err != nil {
		return nil, err
	}
	recent, err := l.storage.ListContracts(ctx, store.ContractFilter{Limit: recentContracts})
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		TotalContracts:  total,
		CollectedToday:  sumPayments(payments),
		RecentContracts: recent,
	}, nil
}

type ClientIncome struct {
	ClientID   uuid.UUID       `json:"client_id"`
	ClientName string          `json:"client_name"`
	Amount     decimal.Decimal `json:"amount"`
}

type DelinquentContract struct {
	ContractID   uuid.UUID       `json:"contract_id"`
	ClientName   string          `json:"client_name"`
	OverdueCount int             `json:"overdue_count"`
	Debt         decimal.Decimal `json:"debt"`
}

type ReturnedContract struct {
	ContractID uuid.UUID       `json:"contract_id"`
	ClientName string          `json:"client_name"`
	ReturnedOn time.Time       `json:"returned_on"`
	RefundDue  decimal.Decimal `json:"refund_due"`
}

// MonthlyReport covers the month of AsOf up to and including AsOf.
type MonthlyReport struct {
	From         time.Time            `json:"from"`
	AsOf         time.Time            `json:"as_of"`
	Income       []ClientIncome       `json:"income"`
	Delinquent   []DelinquentContract `json:"delinquent"`
	Returns      []ReturnedContract   `json:"returns"`
	TotalIncome  decimal.Decimal      `json:"total_income"`
	TotalDebt    decimal.Decimal      `json:"total_debt"`
	TotalRefunds decimal.Decimal      `json:"total_refunds"`
	NetIncome    decimal.Decimal      `json:"net_income"`
}

// clientNames caches client lookups while a report is assembled.
type clientNames struct {
	ctx  context.Context
	repo store.Repository
	byID map[uuid.UUID]string
}

func (n *clientNames) of(id uuid.UUID) (string, error) {
	if name, ok := n.byID[id]; ok {
		return name, nil
	}
	c, err := n.repo.GetClient(n.ctx, id)
	if err != nil {
		return "", err
	}
	n.byID[id] = c.FullName()
	return n.byID[id], nil
}

func (l *Ledger) MonthlyReport(ctx context.Context, asOf time.Time) (*MonthlyReport, error) {
	asOf = models.DateOf(asOf)
	from, _ := models.MonthBounds(asOf)
	names := &clientNames{ctx: ctx, repo: l.storage, byID: map[uuid.UUID]string{}}
	rep := &MonthlyReport{From: from, AsOf: asOf}

	payments, err := l.storage.ListPaymentsBetween(ctx, from, asOf)
	if err != nil {
		return nil, err
	}
	contracts := map[uuid.UUID]*models.Contract{}
	income := map[uuid.UUID]decimal.Decimal{}
	for _, p := range payments {
		c, ok := contracts[p.ContractID]
		if !ok {
			if c, err = l.storage.GetContract(ctx, p.ContractID); err != nil {
				return nil, err
			}
			contracts[p.ContractID] = c
		}
		income[c.ClientID] = income[c.ClientID].Add(p.Amount)
	}
	for clientID, amount := range income {
		name, err := names.of(clientID)
		if err != nil {
			return nil, err
		}
		rep.Income = append(rep.Income, ClientIncome{ClientID: clientID, ClientName: name, Amount: amount})
	}
	sort.Slice(rep.Income, func(i, j int) bool { return rep.Income[i].ClientName < rep.Income[j].ClientName })

	delinquent := true
	late, err := l.storage.ListContracts(ctx, store.ContractFilter{State: models.ContractStateActive, InDelinquency: &delinquent})
	if err != nil {
		return nil, err
	}
	for _, c := range late {
		installments, err := l.storage.GetInstallments(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		row := DelinquentContract{ContractID: c.ID, Debt: decimal.Zero}
		for _, inst := range installments {
			if inst.Status == models.InstallmentStatusOverdue {
				row.OverdueCount++
				row.Debt = row.Debt.Add(inst.Remaining())
			}
		}
		if row.ClientName, err = names.of(c.ClientID); err != nil {
			return nil, err
		}
		rep.Delinquent = append(rep.Delinquent, row)
	}

	returned, err := l.storage.ListContracts(ctx, store.ContractFilter{
		State:     models.ContractStateReturned,
		EndedFrom: &from,
		EndedTo:   &asOf,
	})
	if err != nil {
		return nil, err
	}
	for _, c := range returned {
		refund, err := l.totalPaid(ctx, l.storage, c.ID)
		if err != nil {
			return nil, err
		}
		row := ReturnedContract{ContractID: c.ID, RefundDue: refund}
		if c.CancellationDate != nil {
			row.ReturnedOn = *c.CancellationDate
		}
		if row.ClientName, err = names.of(c.ClientID); err != nil {
			return nil, err
		}
		rep.Returns = append(rep.Returns, row)
	}

	rep.TotalIncome = sumPayments(payments)
	rep.TotalDebt = decimal.Zero
	for _, d := range rep.Delinquent {
		rep.TotalDebt = rep.TotalDebt.Add(d.Debt)
	}
	rep.TotalRefunds = decimal.Zero
	for _, r := range rep.Returns {
		rep.TotalRefunds = rep.TotalRefunds.Add(r.RefundDue)
	}
	rep.NetIncome = rep.TotalIncome.Sub(rep.TotalDebt).Sub(rep.TotalRefunds)
	return rep, nil
}

// GeneralRow is one contract's collections, bucketed by the due month of the installments paid.
type GeneralRow struct {
	ContractID uuid.UUID            `json:"contract_id"`
	ClientName string               `json:"client_name"`
	State      models.ContractState `json:"state"`
	Months     []decimal.Decimal    `json:"months"` // aligned with GeneralReport.Months
	Total      decimal.Decimal      `json:"total"`
}

type GeneralReport struct {
	Months                []time.Time       `json:"months"` // first day of each month
	Rows                  []GeneralRow      `json:"rows"`
	MonthTotals           []decimal.Decimal `json:"month_totals"`
	GrandTotal            decimal.Decimal   `json:"grand_total"`
	FirstInstallmentTotal decimal.Decimal   `json:"first_installment_total"`
}

// maxReportMonths bounds the general report to ten years of columns.
const maxReportMonths = 120

// GeneralReport sums installment collections per contract and month between the
// months of from and to. Returned contracts count negatively.
func (l *Ledger) GeneralReport(ctx context.Context, from, to time.Time, activeOnly bool) (*GeneralReport, error) {
	first, _ := models.MonthBounds(from)
	last, _ := models.MonthBounds(to)
	if last.Before(first) {
		return nil, fmt.Errorf("report range ends before it starts: %s > %s", first.Format(time.DateOnly), last.Format(time.DateOnly))
	}

	rep := &GeneralReport{GrandTotal: decimal.Zero, FirstInstallmentTotal: decimal.Zero}
	index := map[time.Time]int{}
	for m := first; !m.After(last); m = models.AddMonths(m, 1) {
		if len(rep.Months) == maxReportMonths {
			return nil, fmt.Errorf("report range exceeds %d months", maxReportMonths)
		}
		index[m] = len(rep.Months)
		rep.Months = append(rep.Months, m)
		rep.MonthTotals = append(rep.MonthTotals, decimal.Zero)
	}

	filter := store.ContractFilter{}
	if activeOnly {
		filter.State = models.ContractStateActive
	}
	contracts, err := l.storage.ListContracts(ctx, filter)
	if err != nil {
		return nil, err
	}
	names := &clientNames{ctx: ctx, repo: l.storage, byID: map[uuid.UUID]string{}}

	for _, c := range contracts {
		installments, err := l.storage.GetInstallments(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		sign := decimal.NewFromInt(1)
		if c.State == models.ContractStateReturned {
			sign = decimal.NewFromInt(-1)
		}

		row := GeneralRow{ContractID: c.ID, State: c.State, Months: make([]decimal.Decimal, len(rep.Months)), Total: decimal.Zero}
		for i := range row.Months {
			row.Months[i] = decimal.Zero
		}
		for _, inst := range installments {
			if inst.Sequence == 1 {
				rep.FirstInstallmentTotal = rep.FirstInstallmentTotal.Add(inst.Principal)
			}
			month, _ := models.MonthBounds(inst.DueDate)
			i, ok := index[month]
			if !ok {
				continue
			}
			amount := inst.AmountPaid.Mul(sign)
			row.Months[i] = row.Months[i].Add(amount)
			row.Total = row.Total.Add(amount)
			rep.MonthTotals[i] = rep.MonthTotals[i].Add(amount)
		}
		if row.ClientName, err = names.of(c.ClientID); err != nil {
			return nil, err
		}
		rep.GrandTotal = rep.GrandTotal.Add(row.Total)
		rep.Rows = append(rep.Rows, row)
	}
	return rep, nil
}

func sumPayments(payments []*models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
