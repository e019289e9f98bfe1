package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrUserNotFound   = errors.New("user not found")
	ErrGroupNotFound  = errors.New("group not found")
	ErrTestNotFound   = errors.New("test not found")
	ErrUsernameTaken  = errors.New("username already taken")
	ErrGroupNameTaken = errors.New("group name already taken")
	ErrNotAStudent    = errors.New("user is not a student")
	ErrStudentNoGroup = errors.New("student has no group")
)

const (
	RoleAdmin   = "ADMIN"
	RoleTeacher = "TEACHER"
	RoleStudent = "STUDENT"
)

const (
	QuestionSingle = "SINGLE"
	QuestionMulti  = "MULTI"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role"`
}

type CreateUserInput struct {
	Name     string
	Username string
	Password string
	Role     string
}

type UpdateUserInput struct {
	Name     string
	Username string
	Password string
	Role     string
}

type StudentRosterItem struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Username  string  `json:"username"`
	GroupName *string `json:"group_name,omitempty"`
	TestNames *string `json:"test_names,omitempty"`
}

type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func isValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Role = strings.ToUpper(strings.TrimSpace(in.Role))
	if in.Name == "" || in.Username == "" || in.Password == "" || !isValidRole(in.Role) {
		return nil, ErrInvalidInput
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)
	`, in.Username).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	var u User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, username, password, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, username, role
	`, in.Name, in.Username, in.Password, in.Role).Scan(&u.ID, &u.Name, &u.Username, &u.Role)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *Service) GetUser(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, username, password, role
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.Username, &u.Password, &u.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, username, role
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *Service) UpdateUser(ctx context.Context, userID int64, in UpdateUserInput) (*User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Role = strings.ToUpper(strings.TrimSpace(in.Role))
	if in.Name == "" || in.Username == "" || in.Password == "" || !isValidRole(in.Role) {
		return nil, ErrInvalidInput
	}

	var u User
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = $2, username = $3, password = $4, role = $5
		WHERE id = $1
		RETURNING id, name, username, role
	`, userID, in.Name, in.Username, in.Password, in.Role).Scan(&u.ID, &u.Name, &u.Username, &u.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return &u, nil
}

func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListStudents returns the student roster with the group name and the
// aggregated names of assigned tests, matching the admin roster view.
func (s *Service) ListStudents(ctx context.Context) ([]StudentRosterItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.username, g.name AS group_name,
			string_agg(DISTINCT t.name, ', ' ORDER BY t.name) AS test_names
		FROM users u
		LEFT JOIN group_members gm ON gm.user_id = u.id
		LEFT JOIN groups g ON g.id = gm.group_id
		LEFT JOIN assignments a ON a.student_id = u.id
		LEFT JOIN tests t ON t.id = a.test_id
		WHERE u.role = 'STUDENT'
		GROUP BY u.id, u.name, u.username, g.name
		ORDER BY u.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	items := make([]StudentRosterItem, 0)
	for rows.Next() {
		var it StudentRosterItem
		var groupName, testNames sql.NullString
		if err := rows.Scan(&it.ID, &it.Name, &it.Username, &groupName, &testNames); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		if groupName.Valid {
			it.GroupName = &groupName.String
		}
		if testNames.Valid {
			it.TestNames = &testNames.String
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return items, nil
}

func (s *Service) CreateGroup(ctx context.Context, name string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM groups WHERE name = $1)
	`, name).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check group name: %w", err)
	}
	if exists {
		return nil, ErrGroupNameTaken
	}

	var g Group
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO groups (name) VALUES ($1)
		RETURNING id, name
	`, name).Scan(&g.ID, &g.Name)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return &g, nil
}

func (s *Service) DeleteGroup(ctx context.Context, groupID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete group rows: %w", err)
	}
	if n == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	items := make([]Group, 0)
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		items = append(items, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return items, nil
}

func (s *Service) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	var g Group
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name FROM groups WHERE name = $1
	`, strings.TrimSpace(name)).Scan(&g.ID, &g.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("load group: %w", err)
	}
	return &g, nil
}

// SetStudentGroup places a student into a group, replacing any prior
// membership. A student belongs to at most one group.
func (s *Service) SetStudentGroup(ctx context.Context, studentID, groupID int64) error {
	var role string
	if err := s.db.QueryRowContext(ctx, `
		SELECT role FROM users WHERE id = $1
	`, studentID).Scan(&role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load student: %w", err)
	}
	if role != RoleStudent {
		return ErrNotAStudent
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)
	`, groupID).Scan(&exists); err != nil {
		return fmt.Errorf("check group: %w", err)
	}
	if !exists {
		return ErrGroupNotFound
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (user_id, group_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET group_id = EXCLUDED.group_id
	`, studentID, groupID)
	if err != nil {
		return fmt.Errorf("set student group: %w", err)
	}
	return nil
}

func (s *Service) GroupOfStudent(ctx context.Context, studentID int64) (*Group, error) {
	var g Group
	err := s.db.QueryRowContext(ctx, `
		SELECT g.id, g.name
		FROM group_members gm
		JOIN groups g ON g.id = gm.group_id
		WHERE gm.user_id = $1
	`, studentID).Scan(&g.ID, &g.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNoGroup
		}
		return nil, fmt.Errorf("load student group: %w", err)
	}
	return &g, nil
}

func (s *Service) MembersOfGroup(ctx context.Context, groupID int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.username, u.role
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY u.id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.Role); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group members: %w", err)
	}
	return items, nil
}
