package handlers

import (
	"net/http"
	"strconv"

	"github.com/Dosada05/result-integrity/services"
)

const defaultAuditLimit = 100

type AuditHandler struct {
	auditService services.AuditService
}

func NewAuditHandler(auditService services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) ListByTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuidParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	entries, err := h.auditService.ListByTournament(r.Context(), tournamentID, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"audit": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AuditHandler) ListByResult(w http.ResponseWriter, r *http.Request) {
	resultID, err := uuidParam(r, "resultID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entries, err := h.auditService.ListByResult(r.Context(), resultID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"audit": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
