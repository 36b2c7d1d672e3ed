package handlers

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Dosada05/result-integrity/middleware"
	"github.com/Dosada05/result-integrity/models"
	"github.com/Dosada05/result-integrity/services"
	"github.com/google/uuid"
)

// Лимит на multipart-форму с доказательствами: 20MB.
const maxEvidenceFormSize = 20 << 20

type ResultHandler struct {
	resultService services.ResultService
	coordinator   *services.Coordinator
}

func NewResultHandler(resultService services.ResultService, coordinator *services.Coordinator) *ResultHandler {
	return &ResultHandler{
		resultService: resultService,
		coordinator:   coordinator,
	}
}

type submitResultRequest struct {
	MatchID    uuid.UUID `json:"match_id"`
	WinnerID   uuid.UUID `json:"winner_id"`
	LoserID    uuid.UUID `json:"loser_id"`
	Score      string    `json:"score"`
	GameScores []string  `json:"game_scores"`
	Importance string    `json:"importance"`
}

// Submit принимает результат как JSON или как multipart-форму: поле payload
// с тем же JSON плюс файлы evidence.
func (h *ResultHandler) Submit(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuidParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var req submitResultRequest
	var evidence []services.EvidenceUpload
	var openFiles []multipart.File
	defer func() {
		for _, f := range openFiles {
			f.Close()
		}
	}()

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxEvidenceFormSize); err != nil {
			badRequestResponse(w, r, errors.New("failed to parse multipart form"))
			return
		}
		payload := r.FormValue("payload")
		if payload == "" {
			badRequestResponse(w, r, errors.New("payload field is required"))
			return
		}
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			badRequestResponse(w, r, errors.New("payload contains badly-formed JSON"))
			return
		}

		for _, header := range r.MultipartForm.File["evidence"] {
			file, err := header.Open()
			if err != nil {
				badRequestResponse(w, r, errors.New("failed to read evidence file"))
				return
			}
			openFiles = append(openFiles, file)
			evidence = append(evidence, services.EvidenceUpload{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Reader:      file,
			})
		}
	} else {
		if err := readJSON(w, r, &req); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}

	result, err := h.resultService.Submit(r.Context(), services.SubmitResultInput{
		MatchID:      req.MatchID,
		TournamentID: tournamentID,
		WinnerID:     req.WinnerID,
		LoserID:      req.LoserID,
		Score:        req.Score,
		GameScores:   req.GameScores,
		Importance:   models.MatchImportance(req.Importance),
		SubmittedBy:  user.Email,
		Evidence:     evidence,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ResultHandler) Get(w http.ResponseWriter, r *http.Request) {
	resultID, err := uuidParam(r, "resultID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.resultService.GetByID(r.Context(), resultID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ResultHandler) List(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuidParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var status *models.ResultStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.ResultStatus(raw)
		switch s {
		case models.ResultStatusPending, models.ResultStatusPendingReview,
			models.ResultStatusApproved, models.ResultStatusRejected, models.ResultStatusDisputed:
			status = &s
		default:
			badRequestResponse(w, r, errors.New("unknown status filter"))
			return
		}
	}

	results, err := h.resultService.ListByTournament(r.Context(), tournamentID, status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"results": results}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type reviewRequest struct {
	Notes  string `json:"notes,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *ResultHandler) Approve(w http.ResponseWriter, r *http.Request) {
	resultID, err := uuidParam(r, "resultID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var req reviewRequest
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &req); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}

	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}

	result, err := h.coordinator.Approve(r.Context(), resultID, user, notes)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ResultHandler) Reject(w http.ResponseWriter, r *http.Request) {
	resultID, err := uuidParam(r, "resultID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var req reviewRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.resultService.Reject(r.Context(), resultID, user, req.Reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ResultHandler) RequestInfo(w http.ResponseWriter, r *http.Request) {
	resultID, err := uuidParam(r, "resultID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var req reviewRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.Notes == "" {
		badRequestResponse(w, r, errors.New("notes are required"))
		return
	}

	result, err := h.resultService.RequestInfo(r.Context(), resultID, user, req.Notes)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ResultHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	resultID, err := uuidParam(r, "resultID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var req reviewRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.Reason == "" {
		badRequestResponse(w, r, errors.New("dispute reason is required"))
		return
	}

	result, err := h.resultService.Dispute(r.Context(), resultID, user.Email, req.Reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ResultHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	resultID, err := uuidParam(r, "resultID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	result, err := h.resultService.Reopen(r.Context(), resultID, user)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type batchApproveRequest struct {
	ResultIDs []uuid.UUID `json:"result_ids"`
}

func (h *ResultHandler) BatchApprove(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuidParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var req batchApproveRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(req.ResultIDs) == 0 {
		badRequestResponse(w, r, errors.New("result_ids must not be empty"))
		return
	}

	outcome, err := h.coordinator.BatchApprove(r.Context(), tournamentID, req.ResultIDs, user)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"batch": outcome}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
