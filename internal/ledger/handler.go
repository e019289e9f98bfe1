package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"testdesk/internal/app/apiresp"
	"testdesk/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	svc ledgerService
}

type ledgerService interface {
	AssignToStudent(ctx context.Context, studentID, testID, assignerID int64) error
	AssignToGroup(ctx context.Context, groupID, testID, assignerID int64) (int64, error)
	RevokeFromStudent(ctx context.Context, studentID, testID int64) error
	RevokeFromGroup(ctx context.Context, groupID, testID int64) error
	RemainingAttempts(ctx context.Context, studentID, testID int64) (int, error)
	ListAssignmentsForStudent(ctx context.Context, studentID int64) ([]Assignment, error)
	ListAssignedTests(ctx context.Context, studentID int64) ([]AssignedTest, error)
	RecordAttempt(ctx context.Context, in RecordAttemptInput) (*AttemptReceipt, error)
}

var validate = validator.New()

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type assignStudentRequest struct {
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
	TestID    int64 `json:"test_id" validate:"required,gt=0"`
}

type assignGroupRequest struct {
	GroupID int64 `json:"group_id" validate:"required,gt=0"`
	TestID  int64 `json:"test_id" validate:"required,gt=0"`
}

type submitAttemptRequest struct {
	Responses []questionResponse `json:"responses" validate:"dive"`
}

type questionResponse struct {
	QuestionID        int64   `json:"question_id" validate:"required,gt=0"`
	SelectedAnswerIDs []int64 `json:"selected_answer_ids"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) AssignToStudent(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req assignStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "student_id and test_id are required and must be positive"})
		return
	}

	if err := h.svc.AssignToStudent(r.Context(), req.StudentID, req.TestID, user.ID); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "assigned"}})
}

func (h *Handler) AssignToGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req assignGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "group_id and test_id are required and must be positive"})
		return
	}

	assigned, err := h.svc.AssignToGroup(r.Context(), req.GroupID, req.TestID, user.ID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]int64{"assigned": assigned}})
}

func (h *Handler) RevokeFromStudent(w http.ResponseWriter, r *http.Request) {
	var req assignStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "student_id and test_id are required and must be positive"})
		return
	}

	if err := h.svc.RevokeFromStudent(r.Context(), req.StudentID, req.TestID); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "revoked"}})
}

func (h *Handler) RevokeFromGroup(w http.ResponseWriter, r *http.Request) {
	var req assignGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "group_id and test_id are required and must be positive"})
		return
	}

	if err := h.svc.RevokeFromGroup(r.Context(), req.GroupID, req.TestID); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "revoked"}})
}

func (h *Handler) GetRemainingAttempts(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "studentID", "invalid student id")
	if !ok {
		return
	}
	testID, ok := pathID(w, r, "testID", "invalid test id")
	if !ok {
		return
	}

	remaining, err := h.svc.RemainingAttempts(r.Context(), studentID, testID)
	if err != nil {
		// A lookup on a missing assignment is a 404, not a conflict.
		if errors.Is(err, ErrNotAssigned) {
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]int{"remaining_attempts": remaining}})
}

func (h *Handler) ListStudentAssignments(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "id", "invalid student id")
	if !ok {
		return
	}

	items, err := h.svc.ListAssignmentsForStudent(r.Context(), studentID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

// ListMyTests serves the authenticated student's dashboard.
func (h *Handler) ListMyTests(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	items, err := h.svc.ListAssignedTests(r.Context(), user.ID)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

// SubmitAttempt records a finished attempt for the authenticated
// student against the test in the path.
func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	testID, ok := pathID(w, r, "id", "invalid test id")
	if !ok {
		return
	}

	var req submitAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "each response needs a positive question_id"})
		return
	}

	responses := make([]QuestionResponse, 0, len(req.Responses))
	for _, resp := range req.Responses {
		responses = append(responses, QuestionResponse{
			QuestionID:        resp.QuestionID,
			SelectedAnswerIDs: resp.SelectedAnswerIDs,
		})
	}

	receipt, err := h.svc.RecordAttempt(r.Context(), RecordAttemptInput{
		StudentID: user.ID,
		TestID:    testID,
		Responses: responses,
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: receipt})
}

func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrTestNotFound), errors.Is(err, ErrStudentNotFound), errors.Is(err, ErrGroupNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrNotAssigned), errors.Is(err, ErrNoAttemptsLeft):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrInvalidSelection):
		writeJSON(w, r, http.StatusUnprocessableEntity, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrStoreBusy):
		writeJSON(w, r, http.StatusServiceUnavailable, apiResponse{OK: false, Error: "store busy, try again"})
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
