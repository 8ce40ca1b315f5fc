package negotiation

import (
	"testing"

	"github.com/noah-isme/backend-clinica/internal/pricing"
)

func TestDeriveFinalTotalNeverNegative(t *testing.T) {
	totals := []pricing.Money{0, 1, 50_000, 100_000}
	discounts := []int64{0, 500, 10_000, 200_000, 5_000_000}
	for _, total := range totals {
		for _, d := range discounts {
			for _, mode := range []DiscountMode{DiscountPercent, DiscountFixed} {
				q := Derive(total, State{DiscountMode: mode, Discount: d, Installments: 1})
				if q.FinalTotal < 0 {
					t.Fatalf("final total negative: total=%d mode=%s discount=%d", total, mode, d)
				}
				if q.AmountToFinance < 0 {
					t.Fatalf("amount to finance negative: total=%d mode=%s discount=%d", total, mode, d)
				}
			}
		}
	}
}

func TestDeriveScheduleSumsToFinancedAmount(t *testing.T) {
	for n := 1; n <= MaxInstallments; n++ {
		q := Derive(100_000, State{
			DiscountMode: DiscountFixed,
			Discount:     5_000,
			DownPayment:  10_000,
			Installments: n,
		})
		parts := Schedule(q)
		if len(parts) != n {
			t.Fatalf("expected %d installments, got %d", n, len(parts))
		}
		var sum pricing.Money
		for _, p := range parts {
			sum += p
		}
		if sum != q.AmountToFinance {
			t.Fatalf("schedule of %d installments sums to %d, want %d", n, sum, q.AmountToFinance)
		}
		// Plain division may drop at most n-1 centavos, the schedule puts
		// them back on the first installment.
		if diff := q.AmountToFinance - q.MonthlyValue*pricing.Money(n); diff < 0 || diff >= pricing.Money(n) {
			t.Fatalf("monthly value drift %d out of bounds for n=%d", diff, n)
		}
	}
}

func TestApplyMethodPixForcesDefaults(t *testing.T) {
	priors := []State{
		{},
		{DiscountMode: DiscountFixed, Discount: 30_000, Installments: 12},
		{DiscountMode: DiscountPercent, Discount: 1_000, Installments: 18, DownPayment: 5_000},
	}
	for _, prior := range priors {
		st := ApplyMethod(prior, MethodPix)
		if st.DiscountMode != DiscountPercent || st.Discount != PixDiscountBps || st.Installments != 1 {
			t.Fatalf("PIX did not force defaults: %+v", st)
		}
		// Idempotent: applying again changes nothing.
		if again := ApplyMethod(st, MethodPix); again != st {
			t.Fatalf("PIX application not idempotent: %+v vs %+v", again, st)
		}
	}
}

func TestApplyMethodSinglePaymentKeepsDiscount(t *testing.T) {
	prior := State{DiscountMode: DiscountFixed, Discount: 20_000, Installments: 6}
	for _, m := range []PaymentMethod{MethodCash, MethodDebitCard} {
		st := ApplyMethod(prior, m)
		if st.Installments != 1 {
			t.Fatalf("%s should force one installment, got %d", m, st.Installments)
		}
		if st.DiscountMode != DiscountFixed || st.Discount != 20_000 {
			t.Fatalf("%s must not touch the discount: %+v", m, st)
		}
	}
}

func TestApplyMethodCreditKeepsInstallments(t *testing.T) {
	st := ApplyMethod(State{Installments: 12}, MethodCreditCard)
	if st.Installments != 12 {
		t.Fatalf("credit card should keep installments, got %d", st.Installments)
	}
	st = ApplyMethod(State{Installments: 30}, MethodCreditCard)
	if st.Installments != MaxInstallments {
		t.Fatalf("installments should clamp to %d, got %d", MaxInstallments, st.Installments)
	}
}

func TestDeriveMarginHealthFixtures(t *testing.T) {
	cases := []struct {
		discount int64
		want     pricing.DepthTier
	}{
		{20_000, pricing.DepthCritical},
		{6_000, pricing.DepthWarning},
		{1_000, pricing.DepthHealthy},
	}
	for _, c := range cases {
		q := Derive(100_000, State{DiscountMode: DiscountFixed, Discount: c.discount, Installments: 1})
		if q.MarginHealth != c.want {
			t.Fatalf("discount %d: got %s, want %s", c.discount, q.MarginHealth, c.want)
		}
	}
}

func TestNormalizeSanitizesInput(t *testing.T) {
	st := Normalize(State{Discount: -10, DownPayment: -5, Installments: -3})
	if st.Discount != 0 || st.DownPayment != 0 {
		t.Fatalf("negative magnitudes must collapse to zero: %+v", st)
	}
	if st.Installments != 1 {
		t.Fatalf("installments must clamp to 1, got %d", st.Installments)
	}
	if st.DiscountMode != DiscountPercent {
		t.Fatalf("default mode must be percentage, got %s", st.DiscountMode)
	}
}
