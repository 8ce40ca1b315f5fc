package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-clinica/internal/common"
)

// Handler wires catalog reads to HTTP.
type Handler struct {
	Svc *Service
}

func clinicFrom(r *http.Request) (string, bool) {
	return common.ClinicID(r.Context())
}

// Procedures lists the clinic's active procedures.
func (h *Handler) Procedures(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := clinicFrom(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "clinic id required", nil)
		return
	}
	procedures, err := h.Svc.Procedures(r.Context(), clinicID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load procedures", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": procedures})
}

// Procedure returns a single catalog entry.
func (h *Handler) Procedure(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := clinicFrom(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "clinic id required", nil)
		return
	}
	procedure, err := h.Svc.Procedure(r.Context(), clinicID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "procedure not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load procedure", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": procedure})
}

// PriceTables lists the clinic's price tables.
func (h *Handler) PriceTables(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := clinicFrom(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "clinic id required", nil)
		return
	}
	tables, err := h.Svc.PriceTables(r.Context(), clinicID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load price tables", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": tables})
}

// Professionals lists the clinic's active professionals.
func (h *Handler) Professionals(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := clinicFrom(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "clinic id required", nil)
		return
	}
	pros, err := h.Svc.Professionals(r.Context(), clinicID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load professionals", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": pros})
}
