package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Assignment is one student/test entitlement row.
type Assignment struct {
	StudentID         int64 `json:"student_id"`
	TestID            int64 `json:"test_id"`
	RemainingAttempts int   `json:"remaining_attempts"`
	AssignerID        int64 `json:"assigner_id"`
}

// AssignedTest is the student-facing view of an assignment.
type AssignedTest struct {
	TestID            int64   `json:"test_id"`
	Name              string  `json:"name"`
	Description       *string `json:"description,omitempty"`
	CreatorName       *string `json:"creator_name,omitempty"`
	AssignerName      *string `json:"assigner_name,omitempty"`
	RemainingAttempts int     `json:"remaining_attempts"`
	MaxAttempts       int     `json:"max_attempts"`
}

// AssignToStudent grants a student the test's configured attempt
// allowance. Re-assigning an already assigned test resets the
// remaining attempts back to the allowance.
func (s *Service) AssignToStudent(ctx context.Context, studentID, testID, assignerID int64) error {
	if studentID <= 0 || testID <= 0 {
		return ErrInvalidInput
	}

	return s.withRetry(ctx, func(ctx context.Context) error {
		allowance, err := s.testAllowance(ctx, s.db, testID)
		if err != nil {
			return err
		}
		if err := s.checkStudent(ctx, studentID); err != nil {
			return err
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO assignments (student_id, test_id, remaining_attempts, assigner_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (student_id, test_id) DO UPDATE
			SET remaining_attempts = EXCLUDED.remaining_attempts,
			    assigner_id = EXCLUDED.assigner_id
		`, studentID, testID, allowance, assignerID)
		if err != nil {
			return fmt.Errorf("upsert assignment: %w", err)
		}
		return nil
	})
}

// AssignToGroup grants every current member of the group the test's
// attempt allowance in a single statement. Members added to the group
// later are not affected. Returns the number of students assigned.
func (s *Service) AssignToGroup(ctx context.Context, groupID, testID, assignerID int64) (int64, error) {
	if groupID <= 0 || testID <= 0 {
		return 0, ErrInvalidInput
	}

	var assigned int64
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin group assign tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		allowance, err := s.testAllowance(ctx, tx, testID)
		if err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)
		`, groupID).Scan(&exists); err != nil {
			return fmt.Errorf("check group: %w", err)
		}
		if !exists {
			return ErrGroupNotFound
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO assignments (student_id, test_id, remaining_attempts, assigner_id)
			SELECT gm.user_id, $2, $3, $4
			FROM group_members gm
			WHERE gm.group_id = $1
			ON CONFLICT (student_id, test_id) DO UPDATE
			SET remaining_attempts = EXCLUDED.remaining_attempts,
			    assigner_id = EXCLUDED.assigner_id
		`, groupID, testID, allowance, assignerID)
		if err != nil {
			return fmt.Errorf("group assign: %w", err)
		}
		assigned, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("group assign rows: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

// RevokeFromStudent removes the assignment if present. Revoking an
// absent assignment is a no-op.
func (s *Service) RevokeFromStudent(ctx context.Context, studentID, testID int64) error {
	if studentID <= 0 || testID <= 0 {
		return ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM assignments WHERE student_id = $1 AND test_id = $2
	`, studentID, testID)
	if err != nil {
		return fmt.Errorf("revoke assignment: %w", err)
	}
	return nil
}

// RevokeFromGroup removes the assignment from every current member of
// the group. Members without the assignment are skipped silently.
func (s *Service) RevokeFromGroup(ctx context.Context, groupID, testID int64) error {
	if groupID <= 0 || testID <= 0 {
		return ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM assignments a
		USING group_members gm
		WHERE gm.group_id = $1 AND a.student_id = gm.user_id AND a.test_id = $2
	`, groupID, testID)
	if err != nil {
		return fmt.Errorf("revoke group assignment: %w", err)
	}
	return nil
}

func (s *Service) RemainingAttempts(ctx context.Context, studentID, testID int64) (int, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx, `
		SELECT remaining_attempts FROM assignments
		WHERE student_id = $1 AND test_id = $2
	`, studentID, testID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotAssigned
		}
		return 0, fmt.Errorf("load remaining attempts: %w", err)
	}
	return remaining, nil
}

func (s *Service) ListAssignmentsForStudent(ctx context.Context, studentID int64) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, test_id, remaining_attempts, assigner_id
		FROM assignments
		WHERE student_id = $1
		ORDER BY test_id
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	items := make([]Assignment, 0)
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.StudentID, &a.TestID, &a.RemainingAttempts, &a.AssignerID); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return items, nil
}

// ListAssignedTests returns the tests a student can see on their
// dashboard, with attempt counters.
func (s *Service) ListAssignedTests(ctx context.Context, studentID int64) ([]AssignedTest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.description, creator.name, assigner.name,
		       a.remaining_attempts, t.attempts
		FROM assignments a
		JOIN tests t ON t.id = a.test_id
		LEFT JOIN users creator ON creator.id = t.creator_id
		LEFT JOIN users assigner ON assigner.id = a.assigner_id
		WHERE a.student_id = $1
		ORDER BY t.id
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query assigned tests: %w", err)
	}
	defer rows.Close()

	items := make([]AssignedTest, 0)
	for rows.Next() {
		var it AssignedTest
		var desc, creator, assigner sql.NullString
		if err := rows.Scan(&it.TestID, &it.Name, &desc, &creator, &assigner, &it.RemainingAttempts, &it.MaxAttempts); err != nil {
			return nil, fmt.Errorf("scan assigned test: %w", err)
		}
		if desc.Valid {
			it.Description = &desc.String
		}
		if creator.Valid {
			it.CreatorName = &creator.String
		}
		if assigner.Valid {
			it.AssignerName = &assigner.String
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assigned tests: %w", err)
	}
	return items, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Service) testAllowance(ctx context.Context, q queryRower, testID int64) (int, error) {
	var allowance int
	err := q.QueryRowContext(ctx, `
		SELECT attempts FROM tests WHERE id = $1
	`, testID).Scan(&allowance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTestNotFound
		}
		return 0, fmt.Errorf("load test allowance: %w", err)
	}
	return allowance, nil
}

func (s *Service) checkStudent(ctx context.Context, studentID int64) error {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM users WHERE id = $1
	`, studentID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("load student: %w", err)
	}
	if role != "STUDENT" {
		return fmt.Errorf("%w: user %d is not a student", ErrInvalidInput, studentID)
	}
	return nil
}
