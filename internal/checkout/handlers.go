package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-clinica/internal/budget"
	"github.com/noah-isme/backend-clinica/internal/common"
	"github.com/noah-isme/backend-clinica/internal/negotiation"
)

// Handler exposes the checkout preview and charge endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

type previewRequest struct {
	BudgetID     string   `json:"budgetId" validate:"required,uuid4"`
	Method       string   `json:"method" validate:"required,oneof=PIX CREDIT_CARD DEBIT_CARD CASH BOLETO"`
	Installments int      `json:"installments" validate:"gte=0"`
	InstanceIDs  []string `json:"instanceIds"`
}

type chargeRequest struct {
	BudgetID       string   `json:"budgetId" validate:"required,uuid4"`
	ProfessionalID string   `json:"professionalId" validate:"required"`
	Pin            string   `json:"pin" validate:"required,min=4"`
	Method         string   `json:"method" validate:"required,oneof=PIX CREDIT_CARD DEBIT_CARD CASH BOLETO"`
	Installments   int      `json:"installments" validate:"gte=0"`
	InstanceIDs    []string `json:"instanceIds"`
}

// Preview returns the payment breakdown for the selection without charging.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid preview request", map[string]any{"error": err.Error()})
			return
		}
	}
	clinicID, _ := common.ClinicID(r.Context())
	payment, err := h.Service.Preview(r.Context(), clinicID, ChargeInput{
		BudgetID:     req.BudgetID,
		Method:       negotiation.PaymentMethod(req.Method),
		Installments: req.Installments,
		InstanceIDs:  req.InstanceIDs,
	})
	if err != nil {
		writeChargeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": payment})
}

// Charge runs the commit sequence for the selection.
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid charge request", map[string]any{"error": err.Error()})
			return
		}
	}
	clinicID, _ := common.ClinicID(r.Context())
	result, err := h.Service.Charge(r.Context(), clinicID, ChargeInput{
		BudgetID:       req.BudgetID,
		ProfessionalID: req.ProfessionalID,
		Pin:            req.Pin,
		Method:         negotiation.PaymentMethod(req.Method),
		Installments:   req.Installments,
		InstanceIDs:    req.InstanceIDs,
	})
	if err != nil {
		writeChargeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func writeChargeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPinMalformed):
		common.JSONError(w, http.StatusBadRequest, "PIN_MALFORMED", "pin must be at least 4 digits", nil)
	case errors.Is(err, ErrPinRejected):
		common.JSONError(w, http.StatusUnauthorized, "PIN_REJECTED", "pin rejected", nil)
	case errors.Is(err, ErrEmptySelection):
		common.JSONError(w, http.StatusBadRequest, "EMPTY_SELECTION", "no billable items selected", nil)
	case errors.Is(err, ErrBadMethod):
		common.JSONError(w, http.StatusBadRequest, "BAD_METHOD", "invalid payment method", nil)
	case errors.Is(err, budget.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "budget not found", nil)
	default:
		common.WriteAppError(w, err)
	}
}
