package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/DikshantJangra/hoperxpharma-sub002/composition"
	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
)

// MaxBulkItems caps one bulk composition request.
const MaxBulkItems = 5000

type compositionRequest struct {
	SaltLinks []entities.CompositionLink `json:"saltLinks"`
	entities.MappingInfo
}

type bulkCompositionRequest struct {
	Updates []entities.CompositionUpdate `json:"updates"`
}

type createDrugRequest struct {
	Name         string                     `json:"name"`
	Manufacturer string                     `json:"manufacturer"`
	Form         string                     `json:"form"`
	StoreID      string                     `json:"storeId"`
	SaltLinks    []entities.CompositionLink `json:"saltLinks"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// UpdateComposition serves PUT /drugs/{id}/composition
func (h *HTTPHandlerImpl) UpdateComposition(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFrom(r)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req compositionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	drug, err := h.manager.UpdateComposition(r.Context(), chi.URLParam(r, "id"), req.SaltLinks, req.MappingInfo, actor)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, drug)
}

// BulkUpdateComposition serves POST /drugs/bulk-composition. Partial failure is
// reported in the summary with status 200.
func (h *HTTPHandlerImpl) BulkUpdateComposition(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFrom(r)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req bulkCompositionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Updates) == 0 {
		h.RespondWithError(w, http.StatusBadRequest, "updates must not be empty")
		return
	}
	if len(req.Updates) > MaxBulkItems {
		h.RespondWithError(w, http.StatusBadRequest, "too many updates in one request")
		return
	}

	result := h.manager.BulkUpdate(r.Context(), req.Updates, actor)
	h.RespondWithJSON(w, http.StatusOK, result)
}

// CreateDrug serves POST /drugs
func (h *HTTPHandlerImpl) CreateDrug(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFrom(r)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req createDrugRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	drug, err := h.manager.CreateDrug(r.Context(), entities.Drug{
		Name:         strings.TrimSpace(req.Name),
		Manufacturer: strings.TrimSpace(req.Manufacturer),
		Form:         strings.TrimSpace(req.Form),
		StoreID:      strings.TrimSpace(req.StoreID),
		Links:        req.SaltLinks,
	}, actor)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusCreated, drug)
}

// DeleteDrug serves DELETE /drugs/{id}
func (h *HTTPHandlerImpl) DeleteDrug(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFrom(r)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.manager.DeleteDrug(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		h.respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateDrug serves POST /drugs/{id}/activate
func (h *HTTPHandlerImpl) ActivateDrug(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFrom(r)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	drug, err := h.manager.Activate(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, drug)
}

// ImportMedicines serves POST /drugs/import?storeId with a CSV body.
func (h *HTTPHandlerImpl) ImportMedicines(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFrom(r)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	storeID := strings.TrimSpace(r.URL.Query().Get("storeId"))
	if storeID == "" {
		h.RespondWithError(w, http.StatusBadRequest, "storeId is required")
		return
	}
	if err := h.validator.ValidateID(storeID); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, skipped, err := composition.ParseImportCSV(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.RespondWithError(w, http.StatusRequestEntityTooLarge, "import file too large")
			return
		}
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.manager.ImportMedicines(r.Context(), storeID, records, actor)
	result.Total += len(skipped)
	for _, item := range skipped {
		result.Fail(item)
	}
	h.RespondWithJSON(w, http.StatusOK, result)
}
