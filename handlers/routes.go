package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

// RegisterRoutes mounts every API route on r.
func RegisterRoutes(r chi.Router, h interfaces.HTTPHandler) {
	r.Route("/substitutes", func(r chi.Router) {
		r.Get("/", h.FindSubstitutes)
		r.Get("/stats", h.SubstituteStats)
		r.Post("/invalidate", h.InvalidateSubstitutes)
	})

	r.Route("/salt-intelligence/audit", func(r chi.Router) {
		r.Get("/", h.QueryAudit)
		r.Get("/export", h.ExportAudit)
		r.Get("/stats", h.AuditStatistics)
	})

	r.Route("/drugs", func(r chi.Router) {
		r.Post("/", h.CreateDrug)
		r.Post("/bulk-composition", h.BulkUpdateComposition)
		r.Post("/import", h.ImportMedicines)
		r.Put("/{id}/composition", h.UpdateComposition)
		r.Post("/{id}/activate", h.ActivateDrug)
		r.Delete("/{id}", h.DeleteDrug)
	})

	r.Get("/health", h.HealthCheck)
}
