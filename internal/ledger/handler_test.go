package ledger

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"testdesk/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockLedgerService struct {
	assignToStudentFn           func(ctx context.Context, studentID, testID, assignerID int64) error
	assignToGroupFn             func(ctx context.Context, groupID, testID, assignerID int64) (int64, error)
	revokeFromStudentFn         func(ctx context.Context, studentID, testID int64) error
	revokeFromGroupFn           func(ctx context.Context, groupID, testID int64) error
	remainingAttemptsFn         func(ctx context.Context, studentID, testID int64) (int, error)
	listAssignmentsForStudentFn func(ctx context.Context, studentID int64) ([]Assignment, error)
	listAssignedTestsFn         func(ctx context.Context, studentID int64) ([]AssignedTest, error)
	recordAttemptFn             func(ctx context.Context, in RecordAttemptInput) (*AttemptReceipt, error)
}

func (m *mockLedgerService) AssignToStudent(ctx context.Context, studentID, testID, assignerID int64) error {
	if m.assignToStudentFn == nil {
		return errors.New("not implemented")
	}
	return m.assignToStudentFn(ctx, studentID, testID, assignerID)
}

func (m *mockLedgerService) AssignToGroup(ctx context.Context, groupID, testID, assignerID int64) (int64, error) {
	if m.assignToGroupFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.assignToGroupFn(ctx, groupID, testID, assignerID)
}

func (m *mockLedgerService) RevokeFromStudent(ctx context.Context, studentID, testID int64) error {
	if m.revokeFromStudentFn == nil {
		return errors.New("not implemented")
	}
	return m.revokeFromStudentFn(ctx, studentID, testID)
}

func (m *mockLedgerService) RevokeFromGroup(ctx context.Context, groupID, testID int64) error {
	if m.revokeFromGroupFn == nil {
		return errors.New("not implemented")
	}
	return m.revokeFromGroupFn(ctx, groupID, testID)
}

func (m *mockLedgerService) RemainingAttempts(ctx context.Context, studentID, testID int64) (int, error) {
	if m.remainingAttemptsFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.remainingAttemptsFn(ctx, studentID, testID)
}

func (m *mockLedgerService) ListAssignmentsForStudent(ctx context.Context, studentID int64) ([]Assignment, error) {
	if m.listAssignmentsForStudentFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listAssignmentsForStudentFn(ctx, studentID)
}

func (m *mockLedgerService) ListAssignedTests(ctx context.Context, studentID int64) ([]AssignedTest, error) {
	if m.listAssignedTestsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listAssignedTestsFn(ctx, studentID)
}

func (m *mockLedgerService) RecordAttempt(ctx context.Context, in RecordAttemptInput) (*AttemptReceipt, error) {
	if m.recordAttemptFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.recordAttemptFn(ctx, in)
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/assignments/students", h.AssignToStudent)
	r.Post("/assignments/groups", h.AssignToGroup)
	r.Get("/assignments/students/{studentID}/tests/{testID}/remaining", h.GetRemainingAttempts)
	r.Get("/my/tests", h.ListMyTests)
	r.Post("/my/tests/{id}/attempts", h.SubmitAttempt)
	return r
}

func asUser(r *http.Request, id int64, role string) *http.Request {
	user := &auth.User{ID: id, Name: "U", Username: "u", Role: role}
	return r.WithContext(auth.ContextWithUser(r.Context(), user))
}

func TestAssignToStudentUsesSessionAssigner(t *testing.T) {
	var gotAssigner int64
	h := &Handler{svc: &mockLedgerService{
		assignToStudentFn: func(ctx context.Context, studentID, testID, assignerID int64) error {
			gotAssigner = assignerID
			return nil
		},
	}}
	router := newTestRouter(h)

	body := bytes.NewBufferString(`{"student_id":3,"test_id":5}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/assignments/students", body), 7, "TEACHER")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotAssigner != 7 {
		t.Fatalf("expected assigner from session, got %d", gotAssigner)
	}
}

func TestAssignToStudentTestNotFound(t *testing.T) {
	h := &Handler{svc: &mockLedgerService{
		assignToStudentFn: func(ctx context.Context, studentID, testID, assignerID int64) error {
			return ErrTestNotFound
		},
	}}
	router := newTestRouter(h)

	body := bytes.NewBufferString(`{"student_id":3,"test_id":99}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/assignments/students", body), 7, "TEACHER")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAssignToGroupReportsCount(t *testing.T) {
	h := &Handler{svc: &mockLedgerService{
		assignToGroupFn: func(ctx context.Context, groupID, testID, assignerID int64) (int64, error) {
			return 4, nil
		},
	}}
	router := newTestRouter(h)

	body := bytes.NewBufferString(`{"group_id":2,"test_id":5}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/assignments/groups", body), 7, "TEACHER")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"assigned":4`)) {
		t.Fatalf("expected assigned count in body, got %s", rec.Body.String())
	}
}

func TestGetRemainingAttemptsNotAssigned(t *testing.T) {
	h := &Handler{svc: &mockLedgerService{
		remainingAttemptsFn: func(ctx context.Context, studentID, testID int64) (int, error) {
			return 0, ErrNotAssigned
		},
	}}
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/assignments/students/3/tests/5/remaining", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSubmitAttemptErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not assigned", ErrNotAssigned, http.StatusConflict},
		{"no attempts left", ErrNoAttemptsLeft, http.StatusConflict},
		{"invalid selection", ErrInvalidSelection, http.StatusUnprocessableEntity},
		{"store busy", ErrStoreBusy, http.StatusServiceUnavailable},
		{"test missing", ErrTestNotFound, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{svc: &mockLedgerService{
				recordAttemptFn: func(ctx context.Context, in RecordAttemptInput) (*AttemptReceipt, error) {
					return nil, tc.err
				},
			}}
			router := newTestRouter(h)

			body := bytes.NewBufferString(`{"responses":[{"question_id":10,"selected_answer_ids":[100]}]}`)
			req := asUser(httptest.NewRequest(http.MethodPost, "/my/tests/5/attempts", body), 3, "STUDENT")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestSubmitAttemptUsesSessionStudent(t *testing.T) {
	var captured RecordAttemptInput
	h := &Handler{svc: &mockLedgerService{
		recordAttemptFn: func(ctx context.Context, in RecordAttemptInput) (*AttemptReceipt, error) {
			captured = in
			return &AttemptReceipt{AttemptID: 1, TestID: in.TestID, RemainingAttempts: 1}, nil
		},
	}}
	router := newTestRouter(h)

	body := bytes.NewBufferString(`{"responses":[{"question_id":10,"selected_answer_ids":[100]}]}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/my/tests/5/attempts", body), 3, "STUDENT")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.StudentID != 3 || captured.TestID != 5 {
		t.Fatalf("unexpected input: %+v", captured)
	}
	if len(captured.Responses) != 1 || captured.Responses[0].QuestionID != 10 {
		t.Fatalf("unexpected responses: %+v", captured.Responses)
	}
}

func TestSubmitAttemptRejectsAnonymous(t *testing.T) {
	h := &Handler{svc: &mockLedgerService{}}
	router := newTestRouter(h)

	body := bytes.NewBufferString(`{"responses":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/my/tests/5/attempts", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
