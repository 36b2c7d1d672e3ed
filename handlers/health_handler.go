package handlers

import (
	"database/sql"
	"net/http"
)

type HealthHandler struct {
	db *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbStatus := "ok"
	if err := h.db.PingContext(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = "unavailable"
	}

	_ = writeJSON(w, status, jsonResponse{
		"status":   "up",
		"database": dbStatus,
	}, nil)
}
