package catalog

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
	svc catalogService
}

type catalogService interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*User, error)
	GetUser(ctx context.Context, userID int64) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, userID int64, in UpdateUserInput) (*User, error)
	DeleteUser(ctx context.Context, userID int64) error
	ListStudents(ctx context.Context) ([]StudentRosterItem, error)
	CreateGroup(ctx context.Context, name string) (*Group, error)
	DeleteGroup(ctx context.Context, groupID int64) error
	ListGroups(ctx context.Context) ([]Group, error)
	SetStudentGroup(ctx context.Context, studentID, groupID int64) error
	GroupOfStudent(ctx context.Context, studentID int64) (*Group, error)
	MembersOfGroup(ctx context.Context, groupID int64) ([]User, error)
	CreateTest(ctx context.Context, in CreateTestInput) (int64, error)
	ListTests(ctx context.Context) ([]TestListItem, error)
	ListTestsByCreator(ctx context.Context, creatorID int64) ([]TestListItem, error)
	UpdateTestDescription(ctx context.Context, testID int64, description string) error
	DeleteTest(ctx context.Context, testID int64) error
	TestTree(ctx context.Context, testID int64) (*TestTree, error)
}

var validate = validator.New()

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type userRequest struct {
	Name     string `json:"name" validate:"required"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT admin teacher student"`
}

type createGroupRequest struct {
	Name string `json:"name" validate:"required"`
}

type setGroupRequest struct {
	GroupID int64 `json:"group_id" validate:"required,gt=0"`
}

type createTestRequest struct {
	Name        string                  `json:"name" validate:"required"`
	Description string                  `json:"description"`
	TotalMarks  int                     `json:"total_marks" validate:"gte=0"`
	Attempts    int                     `json:"attempts" validate:"required,gt=0"`
	Questions   []createQuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

type createQuestionRequest struct {
	Text    string                `json:"text" validate:"required"`
	Type    string                `json:"type" validate:"required"`
	Answers []createAnswerRequest `json:"answers" validate:"required,min=2,dive"`
}

type createAnswerRequest struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

type updateDescriptionRequest struct {
	Description string `json:"description"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "name, username, password and a valid role are required"})
		return
	}

	item, err := h.svc.CreateUser(r.Context(), CreateUserInput{
		Name:     req.Name,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrUsernameTaken):
			writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id", "invalid user id")
	if !ok {
		return
	}

	item, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListUsers(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id", "invalid user id")
	if !ok {
		return
	}

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "name, username, password and a valid role are required"})
		return
	}

	item, err := h.svc.UpdateUser(r.Context(), userID, UpdateUserInput{
		Name:     req.Name,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrUserNotFound):
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id", "invalid user id")
	if !ok {
		return
	}

	if err := h.svc.DeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListStudents(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "group name is required"})
		return
	}

	item, err := h.svc.CreateGroup(r.Context(), req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrGroupNameTaken):
			writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "id", "invalid group id")
	if !ok {
		return
	}

	if err := h.svc.DeleteGroup(r.Context(), groupID); err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListGroups(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) ListGroupMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "id", "invalid group id")
	if !ok {
		return
	}

	items, err := h.svc.MembersOfGroup(r.Context(), groupID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) SetStudentGroup(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "id", "invalid student id")
	if !ok {
		return
	}

	var req setGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "group_id is required and must be positive"})
		return
	}

	if err := h.svc.SetStudentGroup(r.Context(), studentID, req.GroupID); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrGroupNotFound):
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
		case errors.Is(err, ErrNotAStudent):
			writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "member"}})
}

func (h *Handler) GetStudentGroup(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "id", "invalid student id")
	if !ok {
		return
	}

	item, err := h.svc.GroupOfStudent(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, ErrStudentNoGroup) {
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) CreateTest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req createTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "test name, positive attempts and at least one question with two answers are required"})
		return
	}

	in := CreateTestInput{
		Name:        req.Name,
		Description: req.Description,
		TotalMarks:  req.TotalMarks,
		Attempts:    req.Attempts,
		CreatorID:   user.ID,
	}
	for _, q := range req.Questions {
		qin := CreateQuestionInput{Text: q.Text, Type: q.Type}
		for _, a := range q.Answers {
			qin.Answers = append(qin.Answers, CreateAnswerInput{Text: a.Text, IsCorrect: a.IsCorrect})
		}
		in.Questions = append(in.Questions, qin)
	}

	testID, err := h.svc.CreateTest(r.Context(), in)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: map[string]int64{"id": testID}})
}

func (h *Handler) ListTests(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var items []TestListItem
	var err error
	if user.Role == RoleTeacher {
		items, err = h.svc.ListTestsByCreator(r.Context(), user.ID)
	} else {
		items, err = h.svc.ListTests(r.Context())
	}
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) UpdateTestDescription(w http.ResponseWriter, r *http.Request) {
	testID, ok := pathID(w, r, "id", "invalid test id")
	if !ok {
		return
	}

	var req updateDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	if err := h.svc.UpdateTestDescription(r.Context(), testID, req.Description); err != nil {
		if errors.Is(err, ErrTestNotFound) {
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "updated"}})
}

func (h *Handler) DeleteTest(w http.ResponseWriter, r *http.Request) {
	testID, ok := pathID(w, r, "id", "invalid test id")
	if !ok {
		return
	}

	if err := h.svc.DeleteTest(r.Context(), testID); err != nil {
		if errors.Is(err, ErrTestNotFound) {
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) GetTestTree(w http.ResponseWriter, r *http.Request) {
	testID, ok := pathID(w, r, "id", "invalid test id")
	if !ok {
		return
	}

	item, err := h.svc.TestTree(r.Context(), testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
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
