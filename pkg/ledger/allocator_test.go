package ledger

import (
	"testing"
	"time"

	"github.com/mcclellann/lotledger/pkg/models"
)

func threeInstallments() []models.Installment {
	due := date(2024, time.January, 10)
	return []models.Installment{
		installment(1, "100.00", due),
		installment(2, "100.00", due.AddDate(0, 1, 0)),
		installment(3, "100.00", due.AddDate(0, 2, 0)),
	}
}

func TestAllocate_SettlesEarliestFirst(t *testing.T) {
	paidOn := date(2024, time.March, 1)
	res := Allocate(threeInstallments(), d("100.00"), paidOn)

	if len(res.Installments) != 1 {
		t.Fatalf("Expected only the first installment to be touched, got %d", len(res.Installments))
	}
	first := res.Installments[0]
	if first.Sequence != 1 || first.Status != models.InstallmentStatusPaid || !first.AmountPaid.Equal(d("100")) {
		t.Errorf("Unexpected first installment %+v", first)
	}
	if first.LastPaymentOn == nil || !first.LastPaymentOn.Equal(paidOn) {
		t.Errorf("Expected last payment on %s, got %v", paidOn, first.LastPaymentOn)
	}
	if !res.Surplus.IsZero() {
		t.Errorf("Expected no surplus, got %s", res.Surplus)
	}
}

func TestAllocate_PartialStopsTheSweep(t *testing.T) {
	res := Allocate(threeInstallments(), d("150.00"), date(2024, time.March, 1))

	if len(res.Installments) != 2 {
		t.Fatalf("Expected 2 touched installments, got %d", len(res.Installments))
	}
	if res.Installments[1].Status != models.InstallmentStatusPartial || !res.Installments[1].AmountPaid.Equal(d("50")) {
		t.Errorf("Expected second installment PARTIAL with 50 paid, got %+v", res.Installments[1])
	}
	if !res.Allocations[0].Amount.Equal(d("100")) || !res.Allocations[1].Amount.Equal(d("50")) {
		t.Errorf("Unexpected allocations %+v", res.Allocations)
	}
}

func TestAllocate_IncludesPenalty(t *testing.T) {
	installments := threeInstallments()
	installments[0].Penalty = d("5.00")
	installments[0].Status = models.InstallmentStatusOverdue

	res := Allocate(installments, d("100.00"), date(2024, time.March, 1))
	if res.Installments[0].Status != models.InstallmentStatusPartial {
		t.Errorf("Expected PARTIAL while 5.00 of penalty is owed, got %s", res.Installments[0].Status)
	}
	if !res.Installments[0].Owed().Equal(d("5.00")) {
		t.Errorf("Expected 5.00 still owed, got %s", res.Installments[0].Owed())
	}
}

func TestAllocate_Overpayment(t *testing.T) {
	res := Allocate(threeInstallments(), d("350.00"), date(2024, time.March, 1))

	if len(res.Installments) != 3 {
		t.Fatalf("Expected all installments settled, got %d", len(res.Installments))
	}
	for _, inst := range res.Installments {
		if inst.Status != models.InstallmentStatusPaid {
			t.Errorf("Installment %d: expected PAID, got %s", inst.Sequence, inst.Status)
		}
		if inst.AmountPaid.GreaterThan(inst.Total().Add(models.CentTolerance)) {
			t.Errorf("Installment %d: paid %s exceeds total %s", inst.Sequence, inst.AmountPaid, inst.Total())
		}
	}
	if !res.Surplus.Equal(d("50.00")) {
		t.Errorf("Expected surplus 50.00, got %s", res.Surplus)
	}
	if note := SurplusNote(res.Surplus); note != "Payment processed. Surplus balance: $50.00" {
		t.Errorf("Unexpected note %q", note)
	}
}

func TestAllocate_ResidualCentRows(t *testing.T) {
	installments := threeInstallments()
	installments[0].AmountPaid = d("99.995")
	installments[0].Status = models.InstallmentStatusPartial

	res := Allocate(installments, d("100.00"), date(2024, time.March, 1))

	if res.Installments[0].Status != models.InstallmentStatusPaid || !res.Allocations[0].Amount.IsZero() {
		t.Errorf("Expected residual row PAID without consuming funds, got %+v / %+v", res.Installments[0], res.Allocations[0])
	}
	if res.Installments[1].Status != models.InstallmentStatusPaid || !res.Allocations[1].Amount.Equal(d("100")) {
		t.Errorf("Expected the payment to settle installment 2, got %+v", res.Installments[1])
	}
}

func TestAllocate_NearlyExactPartialCountsAsPaid(t *testing.T) {
	res := Allocate(threeInstallments(), d("99.995"), date(2024, time.March, 1))
	if res.Installments[0].Status != models.InstallmentStatusPaid {
		t.Errorf("Expected PAID when less than a cent remains, got %s", res.Installments[0].Status)
	}
}

func TestAllocate_Deterministic(t *testing.T) {
	a := Allocate(threeInstallments(), d("230.10"), date(2024, time.March, 1))
	b := Allocate(threeInstallments(), d("230.10"), date(2024, time.March, 1))
	if len(a.Allocations) != len(b.Allocations) {
		t.Fatalf("Allocation count differs: %d vs %d", len(a.Allocations), len(b.Allocations))
	}
	for i := range a.Allocations {
		if a.Allocations[i].Sequence != b.Allocations[i].Sequence || !a.Allocations[i].Amount.Equal(b.Allocations[i].Amount) {
			t.Errorf("Allocation %d differs: %+v vs %+v", i, a.Allocations[i], b.Allocations[i])
		}
	}
}

func TestAllocate_NoOutstanding(t *testing.T) {
	res := Allocate(nil, d("20"), date(2024, time.March, 1))
	if len(res.Installments) != 0 || !res.Surplus.Equal(d("20")) {
		t.Errorf("Expected the whole amount as surplus, got %+v", res)
	}
}

func TestAllocate_SkipsSettledExemptRows(t *testing.T) {
	outstanding := threeInstallments()
	outstanding[0].AmountPaid = d("100.00")
	outstanding[0].PenaltyExempt = true
	outstanding[0].Status = models.InstallmentStatusPartial

	res := Allocate(outstanding, d("40.00"), date(2024, time.March, 1))
	if len(res.Installments) != 1 || res.Installments[0].Sequence != 2 {
		t.Fatalf("Expected only installment 2 to be touched, got %+v", res.Installments)
	}
	if res.Installments[0].Status != models.InstallmentStatusPartial || !res.Installments[0].AmountPaid.Equal(d("40")) {
		t.Errorf("Unexpected installment 2 %+v", res.Installments[0])
	}
}
