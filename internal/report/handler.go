package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"testdesk/internal/app/apiresp"
	"testdesk/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc reportService
}

type reportService interface {
	SummarizeAttempts(ctx context.Context, studentID, testID int64) ([]AttemptSummary, error)
	DetailedAttempt(ctx context.Context, studentID, testID, attemptID int64) ([]AttemptDetailRow, error)
	ListAttemptedTests(ctx context.Context, studentID int64) ([]AttemptedTest, error)
	ExportSummaryExcel(ctx context.Context, studentID, testID int64) ([]byte, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "studentID", "invalid student id")
	if !ok {
		return
	}
	testID, ok := pathID(w, r, "testID", "invalid test id")
	if !ok {
		return
	}
	h.writeSummary(w, r, studentID, testID)
}

func (h *Handler) GetAttemptDetail(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "studentID", "invalid student id")
	if !ok {
		return
	}
	testID, ok := pathID(w, r, "testID", "invalid test id")
	if !ok {
		return
	}
	attemptID, ok := pathID(w, r, "attemptID", "invalid attempt id")
	if !ok {
		return
	}
	h.writeDetail(w, r, studentID, testID, attemptID)
}

func (h *Handler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "studentID", "invalid student id")
	if !ok {
		return
	}
	testID, ok := pathID(w, r, "testID", "invalid test id")
	if !ok {
		return
	}

	data, err := h.svc.ExportSummaryExcel(r.Context(), studentID, testID)
	if err != nil {
		writeReportError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"summary_s%d_t%d.xlsx\"", studentID, testID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Student-facing views below resolve the student from the session.

func (h *Handler) GetMySummary(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	testID, ok := pathID(w, r, "id", "invalid test id")
	if !ok {
		return
	}
	h.writeSummary(w, r, user.ID, testID)
}

func (h *Handler) GetMyAttemptDetail(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	testID, ok := pathID(w, r, "id", "invalid test id")
	if !ok {
		return
	}
	attemptID, ok := pathID(w, r, "attemptID", "invalid attempt id")
	if !ok {
		return
	}
	h.writeDetail(w, r, user.ID, testID, attemptID)
}

func (h *Handler) ListMyAttemptedTests(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	items, err := h.svc.ListAttemptedTests(r.Context(), user.ID)
	if err != nil {
		writeReportError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) writeSummary(w http.ResponseWriter, r *http.Request, studentID, testID int64) {
	items, err := h.svc.SummarizeAttempts(r.Context(), studentID, testID)
	if err != nil {
		writeReportError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) writeDetail(w http.ResponseWriter, r *http.Request, studentID, testID, attemptID int64) {
	items, err := h.svc.DetailedAttempt(r.Context(), studentID, testID, attemptID)
	if err != nil {
		writeReportError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func writeReportError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrAttemptNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name, message string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: message})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
