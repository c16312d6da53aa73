package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
)

// FindSubstitutes serves GET /substitutes?drugId&storeId&includePartialMatches
func (h *HTTPHandlerImpl) FindSubstitutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	drugID := strings.TrimSpace(q.Get("drugId"))
	storeID := strings.TrimSpace(q.Get("storeId"))
	if drugID == "" || storeID == "" {
		h.RespondWithError(w, http.StatusBadRequest, "drugId and storeId are required")
		return
	}
	if err := h.validateIDs(drugID, storeID); err != nil {
		logging.Warn("Unusual user input", "drugId", drugID, "storeId", storeID)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	includePartial := false
	if raw := q.Get("includePartialMatches"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			logging.Warn("Unusual user input", "includePartialMatches", raw)
			h.RespondWithError(w, http.StatusBadRequest, "includePartialMatches must be true or false")
			return
		}
		includePartial = v
	}

	subs, err := h.finder.FindSubstitutes(r.Context(), drugID, storeID, includePartial)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, subs)
}

// SubstituteStats serves GET /substitutes/stats?storeId
func (h *HTTPHandlerImpl) SubstituteStats(w http.ResponseWriter, r *http.Request) {
	storeID := strings.TrimSpace(r.URL.Query().Get("storeId"))
	if storeID == "" {
		h.RespondWithError(w, http.StatusBadRequest, "storeId is required")
		return
	}
	if err := h.validateIDs(storeID); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.finder.Stats(r.Context(), storeID)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, stats)
}

type invalidateRequest struct {
	DrugID  string `json:"drugId"`
	StoreID string `json:"storeId"`
}

// InvalidateSubstitutes serves POST /substitutes/invalidate with {drugId} or {storeId}.
// When both are given both scopes are dropped.
func (h *HTTPHandlerImpl) InvalidateSubstitutes(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DrugID == "" && req.StoreID == "" {
		h.RespondWithError(w, http.StatusBadRequest, "drugId or storeId is required")
		return
	}
	if err := h.validateIDs(req.DrugID, req.StoreID); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.DrugID != "" {
		if err := h.finder.InvalidateCache(r.Context(), req.DrugID); err != nil {
			h.respondWithAppError(w, r, err)
			return
		}
	}
	if req.StoreID != "" {
		if err := h.finder.InvalidateStoreCache(r.Context(), req.StoreID); err != nil {
			h.respondWithAppError(w, r, err)
			return
		}
	}

	h.RespondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// validateIDs checks every non-empty id.
func (h *HTTPHandlerImpl) validateIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := h.validator.ValidateID(id); err != nil {
			return err
		}
	}
	return nil
}
