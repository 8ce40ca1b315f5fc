package negotiation

import (
	"encoding/json"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-clinica/internal/common"
	"github.com/noah-isme/backend-clinica/internal/pricing"
)

// Handler exposes the quote derivation endpoint used by the budget studio
// UI to preview negotiation values before anything is saved.
type Handler struct {
	Validate *validator.Validate
}

type quoteRequest struct {
	TotalValue    int64  `json:"totalValue" validate:"gte=0"`
	DiscountMode  string `json:"discountMode" validate:"omitempty,oneof=PERCENTAGE FIXED"`
	Discount      int64  `json:"discount"`
	DownPayment   int64  `json:"downPayment"`
	Installments  int    `json:"installments"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,oneof=PIX CREDIT_CARD DEBIT_CARD CASH BOLETO"`
	SalesRepID    string `json:"salesRepId"`
	PriceTableID  string `json:"priceTableId"`
}

// Quote derives the negotiation values for the posted state.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid quote request", map[string]any{"error": err.Error()})
			return
		}
	}
	st := State{
		SalesRepID:   req.SalesRepID,
		PriceTableID: req.PriceTableID,
		DiscountMode: DiscountMode(req.DiscountMode),
		Discount:     req.Discount,
		DownPayment:  pricing.Money(req.DownPayment),
		Installments: req.Installments,
	}
	if req.PaymentMethod != "" {
		st = ApplyMethod(st, PaymentMethod(req.PaymentMethod))
	}
	q := Derive(pricing.Money(req.TotalValue), st)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"quote":    q,
			"schedule": Schedule(q),
		},
	})
}
