package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"testdesk/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockCatalogService struct {
	createUserFn            func(ctx context.Context, in CreateUserInput) (*User, error)
	getUserFn               func(ctx context.Context, userID int64) (*User, error)
	listUsersFn             func(ctx context.Context) ([]User, error)
	updateUserFn            func(ctx context.Context, userID int64, in UpdateUserInput) (*User, error)
	deleteUserFn            func(ctx context.Context, userID int64) error
	listStudentsFn          func(ctx context.Context) ([]StudentRosterItem, error)
	createGroupFn           func(ctx context.Context, name string) (*Group, error)
	deleteGroupFn           func(ctx context.Context, groupID int64) error
	listGroupsFn            func(ctx context.Context) ([]Group, error)
	setStudentGroupFn       func(ctx context.Context, studentID, groupID int64) error
	groupOfStudentFn        func(ctx context.Context, studentID int64) (*Group, error)
	membersOfGroupFn        func(ctx context.Context, groupID int64) ([]User, error)
	createTestFn            func(ctx context.Context, in CreateTestInput) (int64, error)
	listTestsFn             func(ctx context.Context) ([]TestListItem, error)
	listTestsByCreatorFn    func(ctx context.Context, creatorID int64) ([]TestListItem, error)
	updateTestDescriptionFn func(ctx context.Context, testID int64, description string) error
	deleteTestFn            func(ctx context.Context, testID int64) error
	testTreeFn              func(ctx context.Context, testID int64) (*TestTree, error)
}

func (m *mockCatalogService) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	if m.createUserFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createUserFn(ctx, in)
}

func (m *mockCatalogService) GetUser(ctx context.Context, userID int64) (*User, error) {
	if m.getUserFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getUserFn(ctx, userID)
}

func (m *mockCatalogService) ListUsers(ctx context.Context) ([]User, error) {
	if m.listUsersFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listUsersFn(ctx)
}

func (m *mockCatalogService) UpdateUser(ctx context.Context, userID int64, in UpdateUserInput) (*User, error) {
	if m.updateUserFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateUserFn(ctx, userID, in)
}

func (m *mockCatalogService) DeleteUser(ctx context.Context, userID int64) error {
	if m.deleteUserFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteUserFn(ctx, userID)
}

func (m *mockCatalogService) ListStudents(ctx context.Context) ([]StudentRosterItem, error) {
	if m.listStudentsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listStudentsFn(ctx)
}

func (m *mockCatalogService) CreateGroup(ctx context.Context, name string) (*Group, error) {
	if m.createGroupFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createGroupFn(ctx, name)
}

func (m *mockCatalogService) DeleteGroup(ctx context.Context, groupID int64) error {
	if m.deleteGroupFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteGroupFn(ctx, groupID)
}

func (m *mockCatalogService) ListGroups(ctx context.Context) ([]Group, error) {
	if m.listGroupsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listGroupsFn(ctx)
}

func (m *mockCatalogService) SetStudentGroup(ctx context.Context, studentID, groupID int64) error {
	if m.setStudentGroupFn == nil {
		return errors.New("not implemented")
	}
	return m.setStudentGroupFn(ctx, studentID, groupID)
}

func (m *mockCatalogService) GroupOfStudent(ctx context.Context, studentID int64) (*Group, error) {
	if m.groupOfStudentFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.groupOfStudentFn(ctx, studentID)
}

func (m *mockCatalogService) MembersOfGroup(ctx context.Context, groupID int64) ([]User, error) {
	if m.membersOfGroupFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.membersOfGroupFn(ctx, groupID)
}

func (m *mockCatalogService) CreateTest(ctx context.Context, in CreateTestInput) (int64, error) {
	if m.createTestFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.createTestFn(ctx, in)
}

func (m *mockCatalogService) ListTests(ctx context.Context) ([]TestListItem, error) {
	if m.listTestsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listTestsFn(ctx)
}

func (m *mockCatalogService) ListTestsByCreator(ctx context.Context, creatorID int64) ([]TestListItem, error) {
	if m.listTestsByCreatorFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listTestsByCreatorFn(ctx, creatorID)
}

func (m *mockCatalogService) UpdateTestDescription(ctx context.Context, testID int64, description string) error {
	if m.updateTestDescriptionFn == nil {
		return errors.New("not implemented")
	}
	return m.updateTestDescriptionFn(ctx, testID, description)
}

func (m *mockCatalogService) DeleteTest(ctx context.Context, testID int64) error {
	if m.deleteTestFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteTestFn(ctx, testID)
}

func (m *mockCatalogService) TestTree(ctx context.Context, testID int64) (*TestTree, error) {
	if m.testTreeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.testTreeFn(ctx, testID)
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/users", h.CreateUser)
	r.Get("/users/{id}", h.GetUser)
	r.Delete("/users/{id}", h.DeleteUser)
	r.Post("/groups", h.CreateGroup)
	r.Put("/students/{id}/group", h.SetStudentGroup)
	r.Post("/tests", h.CreateTest)
	r.Get("/tests", h.ListTests)
	r.Get("/tests/{id}/tree", h.GetTestTree)
	return r
}

func asStaff(r *http.Request, role string) *http.Request {
	user := &auth.User{ID: 7, Name: "Staff", Username: "staff", Role: role}
	return r.WithContext(auth.ContextWithUser(r.Context(), user))
}

func TestCreateUserHandlerValidation(t *testing.T) {
	h := &Handler{svc: &mockCatalogService{}}
	router := newTestRouter(h)

	body := bytes.NewBufferString(`{"name":"X","username":"x","password":"","role":"STUDENT"}`)
	req := httptest.NewRequest(http.MethodPost, "/users", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateUserHandlerConflict(t *testing.T) {
	h := &Handler{svc: &mockCatalogService{
		createUserFn: func(ctx context.Context, in CreateUserInput) (*User, error) {
			return nil, ErrUsernameTaken
		},
	}}
	router := newTestRouter(h)

	body := bytes.NewBufferString(`{"name":"X","username":"x","password":"p","role":"STUDENT"}`)
	req := httptest.NewRequest(http.MethodPost, "/users", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestGetUserHandlerNotFound(t *testing.T) {
	h := &Handler{svc: &mockCatalogService{
		getUserFn: func(ctx context.Context, userID int64) (*User, error) {
			return nil, ErrUserNotFound
		},
	}}
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/users/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSetStudentGroupHandlerNotAStudent(t *testing.T) {
	h := &Handler{svc: &mockCatalogService{
		setStudentGroupFn: func(ctx context.Context, studentID, groupID int64) error {
			return ErrNotAStudent
		},
	}}
	router := newTestRouter(h)

	body := bytes.NewBufferString(`{"group_id":3}`)
	req := httptest.NewRequest(http.MethodPut, "/students/5/group", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCreateTestHandlerUsesSessionCreator(t *testing.T) {
	var captured CreateTestInput
	h := &Handler{svc: &mockCatalogService{
		createTestFn: func(ctx context.Context, in CreateTestInput) (int64, error) {
			captured = in
			return 11, nil
		},
	}}
	router := newTestRouter(h)

	payload := map[string]any{
		"name":     "Quiz1",
		"attempts": 2,
		"questions": []map[string]any{
			{
				"text": "2+2?",
				"type": "SINGLE",
				"answers": []map[string]any{
					{"text": "3"},
					{"text": "4", "is_correct": true},
				},
			},
		},
	}
	raw, _ := json.Marshal(payload)
	req := asStaff(httptest.NewRequest(http.MethodPost, "/tests", bytes.NewReader(raw)), RoleTeacher)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.CreatorID != 7 {
		t.Fatalf("expected creator from session, got %d", captured.CreatorID)
	}
	if len(captured.Questions) != 1 || len(captured.Questions[0].Answers) != 2 {
		t.Fatalf("unexpected payload mapping: %+v", captured)
	}
}

func TestCreateTestHandlerRejectsAnonymous(t *testing.T) {
	h := &Handler{svc: &mockCatalogService{}}
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/tests", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListTestsHandlerScopesTeacher(t *testing.T) {
	listedByCreator := false
	h := &Handler{svc: &mockCatalogService{
		listTestsByCreatorFn: func(ctx context.Context, creatorID int64) ([]TestListItem, error) {
			listedByCreator = true
			if creatorID != 7 {
				t.Fatalf("expected creator 7, got %d", creatorID)
			}
			return []TestListItem{}, nil
		},
	}}
	router := newTestRouter(h)

	req := asStaff(httptest.NewRequest(http.MethodGet, "/tests", nil), RoleTeacher)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !listedByCreator {
		t.Fatal("expected teacher listing to scope by creator")
	}
}

func TestGetTestTreeHandlerNotFound(t *testing.T) {
	h := &Handler{svc: &mockCatalogService{
		testTreeFn: func(ctx context.Context, testID int64) (*TestTree, error) {
			return nil, ErrTestNotFound
		},
	}}
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/tests/99/tree", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
