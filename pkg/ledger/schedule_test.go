package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestBuildSchedule_LastInstallmentAbsorbsRemainder(t *testing.T) {
	installments := BuildSchedule(uuid.New(), d("1000.00"), 3, date(2024, time.March, 1))

	want := []string{"333.33", "333.33", "333.34"}
	if len(installments) != len(want) {
		t.Fatalf("Expected %d installments, got %d", len(want), len(installments))
	}
	total := decimal.Zero
	for i, inst := range installments {
		if !inst.Principal.Equal(d(want[i])) {
			t.Errorf("Installment %d: expected principal %s, got %s", i+1, want[i], inst.Principal)
		}
		if inst.Sequence != i+1 {
			t.Errorf("Expected sequence %d, got %d", i+1, inst.Sequence)
		}
		if inst.Status != models.InstallmentStatusPending || !inst.AmountPaid.IsZero() || !inst.Penalty.IsZero() || inst.PenaltyExempt {
			t.Errorf("Installment %d not fresh: %+v", i+1, inst)
		}
		total = total.Add(inst.Principal)
	}
	if !total.Equal(d("1000.00")) {
		t.Errorf("Expected principals to add up to 1000.00, got %s", total)
	}
}

func TestBuildSchedule_TotalsReconcile(t *testing.T) {
	tests := []struct {
		balance string
		term    int
	}{
		{"10000.00", 7},
		{"0.05", 3},
		{"12345.67", 48},
		{"999.99", 1},
		{"100.01", 100},
	}
	for _, tt := range tests {
		installments := BuildSchedule(uuid.New(), d(tt.balance), tt.term, date(2024, time.January, 15))
		total := decimal.Zero
		for _, inst := range installments {
			total = total.Add(inst.Principal)
		}
		if !total.Equal(d(tt.balance)) {
			t.Errorf("%s over %d: principals add up to %s", tt.balance, tt.term, total)
		}
	}
}

func TestBuildSchedule_CalendarMonths(t *testing.T) {
	installments := BuildSchedule(uuid.New(), d("400"), 4, date(2024, time.January, 31))

	want := []time.Time{
		date(2024, time.January, 31),
		date(2024, time.February, 29),
		date(2024, time.March, 31),
		date(2024, time.April, 30),
	}
	for i, inst := range installments {
		if !inst.DueDate.Equal(want[i]) {
			t.Errorf("Installment %d: expected due %s, got %s", i+1, want[i].Format(time.DateOnly), inst.DueDate.Format(time.DateOnly))
		}
	}
}

func TestBuildSchedule_NonPositiveTerm(t *testing.T) {
	for _, term := range []int{0, -3} {
		if got := BuildSchedule(uuid.New(), d("1000"), term, date(2024, time.January, 1)); len(got) != 0 {
			t.Errorf("Term %d: expected no installments, got %d", term, len(got))
		}
	}
}
