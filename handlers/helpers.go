package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Dosada05/result-integrity/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type jsonResponse map[string]interface{}

// apiError — тело ошибки: машинный код + человекочитаемое сообщение.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // Ошибка программиста: в dst передан не указатель
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	env := jsonResponse{"error": apiError{Code: code, Message: message}}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.Error("failed to write error response",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	errorResponse(w, r, http.StatusInternalServerError, "INTERNAL_ERROR",
		"the server encountered a problem and could not process your request")
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request) {
	errorResponse(w, r, http.StatusNotFound, "NOT_FOUND", "the requested resource could not be found")
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// mapServiceErrorToHTTP переводит ошибку сервисного слоя в HTTP-статус,
// сохраняя машинный код из services.ErrorCode.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	code := services.ErrorCode(err)

	switch {
	case errors.Is(err, services.ErrResultNotFound),
		errors.Is(err, services.ErrTournamentNotFound),
		errors.Is(err, services.ErrTeamNotFound),
		errors.Is(err, services.ErrSnapshotNotFound):
		notFoundResponse(w, r)

	case errors.Is(err, services.ErrResultAlreadySubmitted),
		errors.Is(err, services.ErrApprovalConflict),
		errors.Is(err, services.ErrRatingConflict),
		errors.Is(err, services.ErrAuthEmailTaken):
		errorResponse(w, r, http.StatusConflict, code, err.Error())

	// Подмена данных — отдельный статус: это не ошибка ввода клиента,
	// а отказ пайплайна обрабатывать скомпрометированную запись.
	case errors.Is(err, services.ErrResultTampered):
		errorResponse(w, r, http.StatusUnprocessableEntity, code, err.Error())

	case errors.Is(err, services.ErrRatingOutOfRange):
		errorResponse(w, r, http.StatusUnprocessableEntity, code, err.Error())

	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrResultFieldsRequired),
		errors.Is(err, services.ErrResultScoreInvalid),
		errors.Is(err, services.ErrResultSameTeams),
		errors.Is(err, services.ErrResultImportance),
		errors.Is(err, services.ErrRejectReasonRequired),
		errors.Is(err, services.ErrResultNotReviewable),
		errors.Is(err, services.ErrResultNotDisputable),
		errors.Is(err, services.ErrDisputeWindowClosed),
		errors.Is(err, services.ErrPasswordTooShort):
		errorResponse(w, r, http.StatusBadRequest, code, err.Error())

	case errors.Is(err, services.ErrAuthInvalidCredentials):
		unauthorizedResponse(w, r, err.Error())

	case errors.Is(err, services.ErrDependencyUnavailable):
		errorResponse(w, r, http.StatusServiceUnavailable, code, err.Error())

	default:
		serverErrorResponse(w, r, err)
	}
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: must be a UUID", name)
	}
	return id, nil
}
