package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
)

const dateOnly = "2006-01-02"

// parseAuditFilter reads the audit query parameters. Dates are RFC 3339 or
// YYYY-MM-DD; a date-only end date covers the whole day.
func (h *HTTPHandlerImpl) parseAuditFilter(q url.Values) (entities.AuditFilter, error) {
	f := entities.AuditFilter{
		DrugID:  q.Get("drugId"),
		UserID:  q.Get("userId"),
		BatchID: q.Get("batchId"),
	}

	for name, id := range map[string]string{"drugId": f.DrugID, "userId": f.UserID, "batchId": f.BatchID} {
		if id == "" {
			continue
		}
		if err := h.validator.ValidateID(id); err != nil {
			return entities.AuditFilter{}, fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if action := q.Get("action"); action != "" {
		switch a := entities.AuditAction(action); a {
		case entities.AuditCreated, entities.AuditUpdated, entities.AuditDeleted:
			f.Action = a
		default:
			return entities.AuditFilter{}, fmt.Errorf("invalid action %q", action)
		}
	}

	if raw := q.Get("startDate"); raw != "" {
		t, _, err := parseDate(raw)
		if err != nil {
			return entities.AuditFilter{}, fmt.Errorf("invalid startDate: %w", err)
		}
		f.StartDate = &t
	}
	if raw := q.Get("endDate"); raw != "" {
		t, wholeDay, err := parseDate(raw)
		if err != nil {
			return entities.AuditFilter{}, fmt.Errorf("invalid endDate: %w", err)
		}
		if wholeDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		f.EndDate = &t
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return entities.AuditFilter{}, fmt.Errorf("endDate is before startDate")
	}

	var err error
	if f.Limit, err = parseNonNegative(q.Get("limit")); err != nil {
		return entities.AuditFilter{}, fmt.Errorf("invalid limit: %w", err)
	}
	if f.Offset, err = parseNonNegative(q.Get("offset")); err != nil {
		return entities.AuditFilter{}, fmt.Errorf("invalid offset: %w", err)
	}
	return f, nil
}

func parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(dateOnly, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", raw)
	}
	return t, true, nil
}

func parseNonNegative(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", raw)
	}
	return n, nil
}

// QueryAudit serves GET /salt-intelligence/audit
func (h *HTTPHandlerImpl) QueryAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseAuditFilter(r.URL.Query())
	if err != nil {
		logging.Warn("Unusual user input", "query", r.URL.RawQuery, "error", err)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, page)
}

// ExportAudit serves GET /salt-intelligence/audit/export as a CSV attachment.
func (h *HTTPHandlerImpl) ExportAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseAuditFilter(r.URL.Query())
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := h.audit.ExportCSV(r.Context(), filter)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}

	filename := fmt.Sprintf("salt-audit-%s.csv", h.clock.Now().UTC().Format(dateOnly))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logging.Warn("Failed to write audit export", "error", err)
	}
}

// AuditStatistics serves GET /salt-intelligence/audit/stats
func (h *HTTPHandlerImpl) AuditStatistics(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseAuditFilter(r.URL.Query())
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.audit.Statistics(r.Context(), filter)
	if err != nil {
		h.respondWithAppError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, stats)
}
