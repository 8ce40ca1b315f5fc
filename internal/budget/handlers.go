package budget

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-clinica/internal/common"
	"github.com/noah-isme/backend-clinica/internal/negotiation"
	"github.com/noah-isme/backend-clinica/internal/pricing"
)

// Handler exposes the budget persistence endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

func sessionFrom(r *http.Request) Session {
	clinicID, _ := common.ClinicID(r.Context())
	actorID, _ := common.ActorID(r.Context())
	return Session{ClinicID: clinicID, ActorID: actorID}
}

type itemPayload struct {
	InstanceID  string `json:"instanceId"`
	ProcedureID string `json:"procedureId" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Category    string `json:"category"`
	UnitPrice   int64  `json:"unitPrice" validate:"gte=0"`
	Qty         int    `json:"qty" validate:"gte=1"`
	UnitCost    int64  `json:"unitCost" validate:"gte=0"`
	Region      string `json:"region"`
	Tooth       int    `json:"tooth" validate:"gte=0"`
	FinalValue  int64  `json:"finalValue" validate:"gte=0"`
}

type saveRequest struct {
	BudgetID      string        `json:"budgetId"`
	PatientID     string        `json:"patientId" validate:"required"`
	Status        string        `json:"status" validate:"omitempty,oneof=DRAFT PENDING"`
	Items         []itemPayload `json:"items" validate:"dive"`
	DiscountMode  string        `json:"discountMode" validate:"omitempty,oneof=PERCENTAGE FIXED"`
	Discount      int64         `json:"discount"`
	DownPayment   int64         `json:"downPayment"`
	Installments  int           `json:"installments"`
	PaymentMethod string        `json:"paymentMethod" validate:"omitempty,oneof=PIX CREDIT_CARD DEBIT_CARD CASH BOLETO"`
	SalesRepID    string        `json:"salesRepId"`
	PriceTableID  string        `json:"priceTableId"`
}

// Save upserts a budget with its full line-item set.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid budget payload", map[string]any{"error": err.Error()})
			return
		}
	}

	items := make([]Item, 0, len(req.Items))
	for _, p := range req.Items {
		it := Item{
			InstanceID:  p.InstanceID,
			ProcedureID: p.ProcedureID,
			Name:        p.Name,
			Category:    p.Category,
			UnitPrice:   pricing.Money(p.UnitPrice),
			Qty:         p.Qty,
			UnitCost:    pricing.Money(p.UnitCost),
			Region:      p.Region,
			Tooth:       p.Tooth,
			FinalValue:  pricing.Money(p.FinalValue),
		}
		if it.InstanceID == "" {
			it.InstanceID = uuid.NewString()
		}
		if it.FinalValue == 0 {
			it.FinalValue = it.Subtotal()
		}
		items = append(items, it)
	}

	st := negotiation.State{
		SalesRepID:   req.SalesRepID,
		PriceTableID: req.PriceTableID,
		DiscountMode: negotiation.DiscountMode(req.DiscountMode),
		Discount:     req.Discount,
		DownPayment:  pricing.Money(req.DownPayment),
		Installments: req.Installments,
	}
	if req.PaymentMethod != "" {
		st = negotiation.ApplyMethod(st, negotiation.PaymentMethod(req.PaymentMethod))
	}

	saved, err := h.Service.Save(r.Context(), sessionFrom(r), SaveInput{
		BudgetID:  req.BudgetID,
		PatientID: req.PatientID,
		Status:    Status(req.Status),
		Items:     items,
		State:     st,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": saved})
}

// Get returns one budget with its line items.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	header, items, err := h.Service.Get(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"budget": header,
			"items":  items,
		},
	})
}

// List returns budget headers for the clinic, optionally per patient.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := common.ParsePagination(r)
	headers, err := h.Service.List(r.Context(), sessionFrom(r), r.URL.Query().Get("patientId"), page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": headers})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "budget has no line items", nil)
	case errors.Is(err, ErrMissingSession):
		common.JSONError(w, http.StatusBadRequest, "MISSING_SESSION", "clinic, actor and patient are required", nil)
	case errors.Is(err, ErrStatusTransition):
		common.JSONError(w, http.StatusConflict, "STATUS_TRANSITION", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "budget not found", nil)
	default:
		common.WriteAppError(w, err)
	}
}
