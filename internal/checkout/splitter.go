package checkout

import (
	"github.com/noah-isme/backend-clinica/internal/negotiation"
	"github.com/noah-isme/backend-clinica/internal/pricing"
)

// settleNowDiscountBps is the discount granted when the patient settles the
// full amount immediately (PIX or cash): 5%.
const settleNowDiscountBps = 500

// allowedInstallments are the credit card plans the clinic offers.
var allowedInstallments = []int{1, 2, 3, 4, 5, 6, 10, 12}

// BillableItem is one budget line item selected for charging. Sold items
// are settled history and are skipped by the splitter.
type BillableItem struct {
	InstanceID  string        `json:"instanceId"`
	Description string        `json:"description"`
	Value       pricing.Money `json:"value"`
	Sold        bool          `json:"sold"`
}

// PaymentData is the computed charge breakdown shown to the patient before
// confirming.
type PaymentData struct {
	Method          negotiation.PaymentMethod `json:"method"`
	Installments    int                       `json:"installments"`
	Subtotal        pricing.Money             `json:"subtotal"`
	DiscountApplied pricing.Money             `json:"discountApplied"`
	FinalValue      pricing.Money             `json:"finalValue"`
	PerInstallment  []pricing.Money           `json:"perInstallment"`
}

// ClampInstallments snaps n to the nearest allowed plan. Non-positive or
// unknown values fall back to a single installment; ties resolve downward.
func ClampInstallments(n int) int {
	if n <= 0 {
		return 1
	}
	best := allowedInstallments[0]
	for _, a := range allowedInstallments {
		if abs(a-n) < abs(best-n) {
			best = a
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// settlesNow reports whether the method pays the whole amount at the desk,
// which earns the settle-now discount.
func settlesNow(m negotiation.PaymentMethod) bool {
	return m == negotiation.MethodPix || m == negotiation.MethodCash
}

// Split computes the charge breakdown for the selected items. Sold items
// are ignored; an empty effective selection yields a zero PaymentData and
// no error, the transport layer decides how to reject it. Instant
// settlement methods (PIX, cash) receive the settle-now discount and are
// always charged in full; only credit card spreads over installments.
func Split(items []BillableItem, method negotiation.PaymentMethod, installments int) PaymentData {
	var subtotal pricing.Money
	for _, it := range items {
		if it.Sold {
			continue
		}
		subtotal += pricing.Floor0(it.Value)
	}

	data := PaymentData{Method: method, Installments: 1, Subtotal: subtotal}
	if subtotal == 0 {
		return data
	}

	if settlesNow(method) {
		data.DiscountApplied = pricing.PercentBps(subtotal, settleNowDiscountBps)
	}
	data.FinalValue = subtotal - data.DiscountApplied

	if method == negotiation.MethodCreditCard {
		data.Installments = ClampInstallments(installments)
	}
	data.PerInstallment = pricing.SplitEven(data.FinalValue, data.Installments)
	return data
}
