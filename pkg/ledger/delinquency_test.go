package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/lotledger/pkg/models"
	"github.com/shopspring/decimal"
)

func TestPenaltyFor_FlatTiers(t *testing.T) {
	policy := models.DefaultPolicy() // 5/10/20 days, 5/10/20 dollars

	tests := []struct {
		daysLate int
		want     string
	}{
		{0, "0"},
		{4, "0"},
		{5, "5"},
		{9, "5"},
		{10, "10"},
		{19, "10"},
		{20, "20"},
		{365, "20"},
	}
	for _, tt := range tests {
		got := PenaltyFor(policy, d("100"), tt.daysLate)
		if !got.Equal(d(tt.want)) {
			t.Errorf("%d days late: expected %s, got %s", tt.daysLate, tt.want, got)
		}
	}
}

func TestPenaltyFor_Percentage(t *testing.T) {
	policy := models.DefaultPolicy()
	policy.Mode = models.PenaltyModePercentage
	policy.Percentage = d("3")

	if got := PenaltyFor(policy, d("333.33"), 4); !got.IsZero() {
		t.Errorf("Expected no penalty inside the grace period, got %s", got)
	}
	if got := PenaltyFor(policy, d("333.33"), 5); !got.Equal(d("10.00")) {
		t.Errorf("Expected 10.00 (3%% of 333.33 rounded), got %s", got)
	}
	if got := PenaltyFor(policy, d("333.33"), 400); !got.Equal(d("10.00")) {
		t.Errorf("Percentage penalty should not escalate, got %s", got)
	}
}

func installment(seq int, principal string, due time.Time) models.Installment {
	return models.Installment{
		ID:         uuid.New(),
		ContractID: uuid.Nil,
		Sequence:   seq,
		DueDate:    due,
		Principal:  d(principal),
		Penalty:    decimal.Zero,
		AmountPaid: decimal.Zero,
		Status:     models.InstallmentStatusPending,
	}
}

func TestAssessDelinquency_SingleOverdueInstallment(t *testing.T) {
	policy := models.DefaultPolicy()
	policy.Mild = models.PenaltyTier{Days: 5, Amount: d("5")}
	policy.Moderate = models.PenaltyTier{Days: 15, Amount: d("10")}
	policy.Severe = models.PenaltyTier{Days: 30, Amount: d("20")}

	today := date(2024, time.March, 20)
	a := AssessDelinquency([]models.Installment{installment(1, "100.00", today.AddDate(0, 0, -10))}, policy, today)

	inst := a.Installments[0]
	if inst.Status != models.InstallmentStatusOverdue {
		t.Errorf("Expected OVERDUE, got %s", inst.Status)
	}
	if !inst.Penalty.Equal(d("5.00")) {
		t.Errorf("Expected penalty 5.00, got %s", inst.Penalty)
	}
	if !a.InDelinquency {
		t.Error("Expected contract to be delinquent")
	}
	if len(a.Changed) != 1 {
		t.Errorf("Expected 1 changed installment, got %d", len(a.Changed))
	}
}

func TestAssessDelinquency_NotYetDue(t *testing.T) {
	today := date(2024, time.March, 20)
	installments := []models.Installment{
		installment(1, "100", today),
		installment(2, "100", today.AddDate(0, 1, 0)),
	}
	a := AssessDelinquency(installments, models.DefaultPolicy(), today)
	if len(a.Changed) != 0 || a.InDelinquency {
		t.Errorf("Installments due today or later must not be touched: %+v", a)
	}
}

func TestAssessDelinquency_LateInsideGraceIsStillOverdue(t *testing.T) {
	today := date(2024, time.March, 20)
	a := AssessDelinquency([]models.Installment{installment(1, "100", today.AddDate(0, 0, -2))}, models.DefaultPolicy(), today)
	if a.Installments[0].Status != models.InstallmentStatusOverdue || !a.Installments[0].Penalty.IsZero() {
		t.Errorf("Expected OVERDUE with no penalty, got %s %s", a.Installments[0].Status, a.Installments[0].Penalty)
	}
}

func TestAssessDelinquency_SkipsSettledInstallments(t *testing.T) {
	today := date(2024, time.March, 20)
	paid := installment(1, "100", today.AddDate(0, 0, -30))
	paid.AmountPaid = d("100")
	paid.Status = models.InstallmentStatusPaid

	a := AssessDelinquency([]models.Installment{paid}, models.DefaultPolicy(), today)
	if len(a.Changed) != 0 || a.Installments[0].Status != models.InstallmentStatusPaid {
		t.Errorf("PAID installments are final, got %+v", a.Installments[0])
	}
}

func TestAssessDelinquency_Idempotent(t *testing.T) {
	today := date(2024, time.March, 20)
	partial := installment(2, "100", today.AddDate(0, 0, -12))
	partial.AmountPaid = d("40")
	partial.Status = models.InstallmentStatusPartial
	exempt := installment(3, "100", today.AddDate(0, 0, -25))
	exempt.PenaltyExempt = true
	installments := []models.Installment{
		installment(1, "100", today.AddDate(0, 0, -40)),
		partial,
		exempt,
		installment(4, "100", today.AddDate(0, 0, 5)),
	}

	first := AssessDelinquency(installments, models.DefaultPolicy(), today)
	second := AssessDelinquency(first.Installments, models.DefaultPolicy(), today)

	if len(second.Changed) != 0 {
		t.Errorf("Expected second sweep to change nothing, changed %v", second.Changed)
	}
	for i := range first.Installments {
		a, b := first.Installments[i], second.Installments[i]
		if a.Status != b.Status || !a.Penalty.Equal(b.Penalty) {
			t.Errorf("Installment %d differs between sweeps: %s/%s vs %s/%s", i+1, a.Status, a.Penalty, b.Status, b.Penalty)
		}
	}
	if first.InDelinquency != second.InDelinquency {
		t.Error("Delinquency flag differs between sweeps")
	}
	if installments[0].Status != models.InstallmentStatusPending {
		t.Error("Input slice must not be modified")
	}
}

func TestAssessInstallment_Exemption(t *testing.T) {
	today := date(2024, time.March, 20)
	policy := models.DefaultPolicy()

	overdue, _ := AssessInstallment(installment(1, "100", today.AddDate(0, 0, -12)), policy, today)
	if !overdue.Penalty.Equal(d("10")) {
		t.Fatalf("Expected penalty 10 before exemption, got %s", overdue.Penalty)
	}

	overdue.PenaltyExempt = true
	exempt, changed := AssessInstallment(overdue, policy, today)
	if !changed || !exempt.Penalty.IsZero() || exempt.Status != models.InstallmentStatusPending {
		t.Errorf("Expected exempt installment to be PENDING with no penalty, got %s %s", exempt.Status, exempt.Penalty)
	}

	exempt.PenaltyExempt = false
	restored, _ := AssessInstallment(exempt, policy, today)
	if restored.Status != models.InstallmentStatusOverdue || !restored.Penalty.Equal(d("10")) {
		t.Errorf("Expected penalty 10 restored, got %s %s", restored.Status, restored.Penalty)
	}
}

func TestAssessInstallment_ExemptPartiallyPaid(t *testing.T) {
	today := date(2024, time.March, 20)
	inst := installment(1, "100", today.AddDate(0, 0, -30))
	inst.PenaltyExempt = true
	inst.AmountPaid = d("30")
	inst.Status = models.InstallmentStatusOverdue
	inst.Penalty = d("20")

	got, _ := AssessInstallment(inst, models.DefaultPolicy(), today)
	if got.Status != models.InstallmentStatusPartial || !got.Penalty.IsZero() {
		t.Errorf("Expected PARTIAL with no penalty, got %s %s", got.Status, got.Penalty)
	}
}

func TestAssessInstallment_CollectedPenaltyIsKept(t *testing.T) {
	today := date(2024, time.March, 20)
	inst := installment(1, "100", today.AddDate(0, 0, -30))
	inst.AmountPaid = d("110")
	inst.Penalty = d("20")
	inst.Status = models.InstallmentStatusPartial
	inst.PenaltyExempt = true

	got, _ := AssessInstallment(inst, models.DefaultPolicy(), today)
	if !got.Penalty.Equal(d("10")) {
		t.Errorf("Expected the 10 already collected to stay as penalty, got %s", got.Penalty)
	}
	if got.AmountPaid.GreaterThan(got.Total().Add(models.CentTolerance)) {
		t.Errorf("amount paid %s exceeds total %s", got.AmountPaid, got.Total())
	}
	if got.Status != models.InstallmentStatusPartial {
		t.Errorf("Expected exempt installment to stay PARTIAL, got %s", got.Status)
	}
}

func TestAssessInstallment_ExemptionOnPaidPrincipalIsReversible(t *testing.T) {
	today := date(2024, time.March, 20)
	policy := models.DefaultPolicy()
	inst := installment(1, "100", today.AddDate(0, 0, -12))
	inst.AmountPaid = d("100")
	inst.Penalty = d("10")
	inst.Status = models.InstallmentStatusOverdue

	inst.PenaltyExempt = true
	exempt, _ := AssessInstallment(inst, policy, today)
	if !exempt.Penalty.IsZero() || exempt.Status != models.InstallmentStatusPartial {
		t.Fatalf("Expected PARTIAL with no penalty, got %s %s", exempt.Status, exempt.Penalty)
	}

	exempt.PenaltyExempt = false
	restored, changed := AssessInstallment(exempt, policy, today)
	if !changed || !restored.Penalty.Equal(d("10")) || restored.Status != models.InstallmentStatusOverdue {
		t.Errorf("Expected OVERDUE with penalty 10 once the exemption is lifted, got %s %s", restored.Status, restored.Penalty)
	}
}
