package negotiation

import (
	"github.com/noah-isme/backend-clinica/internal/pricing"
)

// DiscountMode selects how the negotiated discount magnitude is interpreted.
type DiscountMode string

const (
	// DiscountPercent interprets the magnitude as basis points of the total.
	DiscountPercent DiscountMode = "PERCENTAGE"
	// DiscountFixed interprets the magnitude as a fixed amount in centavos.
	DiscountFixed DiscountMode = "FIXED"
)

// PaymentMethod enumerates the payment options offered during negotiation.
type PaymentMethod string

const (
	MethodPix        PaymentMethod = "PIX"
	MethodCreditCard PaymentMethod = "CREDIT_CARD"
	MethodDebitCard  PaymentMethod = "DEBIT_CARD"
	MethodCash       PaymentMethod = "CASH"
	MethodBoleto     PaymentMethod = "BOLETO"
)

// InstantSettlement reports whether the method settles the full amount
// immediately and earns the instant-payment incentive.
func (m PaymentMethod) InstantSettlement() bool {
	return m == MethodPix
}

// SinglePayment reports whether the method admits only one installment.
func (m PaymentMethod) SinglePayment() bool {
	return m == MethodCash || m == MethodDebitCard
}

// Valid reports whether the method is one of the supported values.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodPix, MethodCreditCard, MethodDebitCard, MethodCash, MethodBoleto:
		return true
	}
	return false
}

const (
	// MaxInstallments caps any financing schedule.
	MaxInstallments = 18
	// PixDiscountBps is the percentage forced when PIX is selected.
	PixDiscountBps = 500
)

// State holds the in-progress deal configuration for one budget. It lives
// for the composition session only; just the derived final values are ever
// persisted.
type State struct {
	SalesRepID   string
	PriceTableID string
	DiscountMode DiscountMode
	// Discount is the magnitude: basis points when mode is PERCENTAGE,
	// centavos when FIXED.
	Discount     int64
	DownPayment  pricing.Money
	Installments int
	Method       PaymentMethod
}

// Quote is the derived payload recomputed on every state change. All fields
// are comparable so the emission guard can test structural equality.
type Quote struct {
	TotalValue      pricing.Money     `json:"totalValue"`
	DiscountAmount  pricing.Money     `json:"discountAmount"`
	FinalTotal      pricing.Money     `json:"finalTotal"`
	DownPayment     pricing.Money     `json:"downPayment"`
	AmountToFinance pricing.Money     `json:"amountToFinance"`
	Installments    int               `json:"installments"`
	MonthlyValue    pricing.Money     `json:"monthlyValue"`
	MarginHealth    pricing.DepthTier `json:"marginHealth"`
}

// Normalize sanitizes numeric inputs so derived values are always defined:
// negative magnitudes collapse to zero and the installment count is clamped
// into [1, MaxInstallments]. It never rejects input.
func Normalize(st State) State {
	if st.Discount < 0 {
		st.Discount = 0
	}
	if st.DownPayment < 0 {
		st.DownPayment = 0
	}
	if st.Installments < 1 {
		st.Installments = 1
	}
	if st.Installments > MaxInstallments {
		st.Installments = MaxInstallments
	}
	if st.DiscountMode != DiscountFixed {
		st.DiscountMode = DiscountPercent
	}
	return st
}

// ApplyMethod records the payment method selection and applies its side
// effects. Instant-settlement methods force a fixed default discount and a
// single installment; single-payment methods force one installment only.
// The operation is idempotent.
func ApplyMethod(st State, m PaymentMethod) State {
	st.Method = m
	switch {
	case m.InstantSettlement():
		st.DiscountMode = DiscountPercent
		st.Discount = PixDiscountBps
		st.Installments = 1
	case m.SinglePayment():
		st.Installments = 1
	}
	return Normalize(st)
}

// Derive computes the quote for the provided pre-discount total and state.
// It is a pure function: same inputs, same quote, no side effects.
func Derive(total pricing.Money, st State) Quote {
	st = Normalize(st)
	total = pricing.Floor0(total)

	var discount pricing.Money
	switch st.DiscountMode {
	case DiscountFixed:
		discount = pricing.Floor0(st.Discount)
	default:
		discount = pricing.PercentBps(total, st.Discount)
	}
	if discount > total {
		discount = total
	}
	finalTotal := pricing.Floor0(total - discount)
	toFinance := pricing.Floor0(finalTotal - st.DownPayment)
	var monthly pricing.Money
	if st.Installments > 0 {
		monthly = toFinance / pricing.Money(st.Installments)
	}
	return Quote{
		TotalValue:      total,
		DiscountAmount:  discount,
		FinalTotal:      finalTotal,
		DownPayment:     pricing.Floor0(st.DownPayment),
		AmountToFinance: toFinance,
		Installments:    st.Installments,
		MonthlyValue:    monthly,
		MarginHealth:    pricing.DiscountDepth(discount, total),
	}
}

// Schedule expands a quote into the per-installment amounts. The division
// remainder lands on the first installment so the parts always sum back to
// the financed amount.
func Schedule(q Quote) []pricing.Money {
	return pricing.SplitEven(q.AmountToFinance, q.Installments)
}
