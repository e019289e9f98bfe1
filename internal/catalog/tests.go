package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type CreateTestInput struct {
	Name        string
	Description string
	TotalMarks  int
	Attempts    int
	CreatorID   int64
	Questions   []CreateQuestionInput
}

type CreateQuestionInput struct {
	Text    string
	Type    string
	Answers []CreateAnswerInput
}

type CreateAnswerInput struct {
	Text      string
	IsCorrect bool
}

type TestListItem struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	TotalMarks  *int    `json:"total_marks,omitempty"`
	Attempts    int     `json:"attempts"`
	CreatedBy   *string `json:"created_by,omitempty"`
}

func normalizeQuestionType(v string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case QuestionSingle:
		return QuestionSingle
	case QuestionMulti:
		return QuestionMulti
	default:
		return ""
	}
}

func validateTestInput(in CreateTestInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: test name is required", ErrInvalidInput)
	}
	if in.Attempts <= 0 {
		return fmt.Errorf("%w: attempts must be greater than zero", ErrInvalidInput)
	}
	if len(in.Questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrInvalidInput)
	}
	for i, q := range in.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", ErrInvalidInput, i+1)
		}
		if normalizeQuestionType(q.Type) == "" {
			return fmt.Errorf("%w: question %d has invalid type", ErrInvalidInput, i+1)
		}
		if len(q.Answers) < 2 {
			return fmt.Errorf("%w: question %d needs at least two answers", ErrInvalidInput, i+1)
		}
		anyCorrect := false
		for j, a := range q.Answers {
			if strings.TrimSpace(a.Text) == "" {
				return fmt.Errorf("%w: question %d answer %d has no text", ErrInvalidInput, i+1, j+1)
			}
			if a.IsCorrect {
				anyCorrect = true
			}
		}
		if !anyCorrect {
			return fmt.Errorf("%w: question %d has no correct answer", ErrInvalidInput, i+1)
		}
	}
	return nil
}

// CreateTest persists the test together with its questions and answers
// in a single transaction.
func (s *Service) CreateTest(ctx context.Context, in CreateTestInput) (int64, error) {
	if err := validateTestInput(in); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create test tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var testID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tests (name, description, total_marks, attempts, creator_id)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, 0), $4, $5)
		RETURNING id
	`, strings.TrimSpace(in.Name), strings.TrimSpace(in.Description), in.TotalMarks, in.Attempts, in.CreatorID).Scan(&testID)
	if err != nil {
		return 0, fmt.Errorf("insert test: %w", err)
	}

	for _, q := range in.Questions {
		var questionID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO questions (test_id, text, type)
			VALUES ($1, $2, $3)
			RETURNING id
		`, testID, strings.TrimSpace(q.Text), normalizeQuestionType(q.Type)).Scan(&questionID)
		if err != nil {
			return 0, fmt.Errorf("insert question: %w", err)
		}

		for _, a := range q.Answers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO answers (question_id, text, is_correct)
				VALUES ($1, $2, $3)
			`, questionID, strings.TrimSpace(a.Text), a.IsCorrect); err != nil {
				return 0, fmt.Errorf("insert answer: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create test: %w", err)
	}
	return testID, nil
}

func (s *Service) ListTests(ctx context.Context) ([]TestListItem, error) {
	return s.listTests(ctx, 0)
}

func (s *Service) ListTestsByCreator(ctx context.Context, creatorID int64) ([]TestListItem, error) {
	if creatorID <= 0 {
		return nil, ErrInvalidInput
	}
	return s.listTests(ctx, creatorID)
}

func (s *Service) listTests(ctx context.Context, creatorID int64) ([]TestListItem, error) {
	query := `
		SELECT t.id, t.name, t.description, t.total_marks, t.attempts, u.name AS created_by
		FROM tests t
		LEFT JOIN users u ON u.id = t.creator_id
	`
	args := make([]any, 0, 1)
	if creatorID > 0 {
		query += ` WHERE t.creator_id = $1`
		args = append(args, creatorID)
	}
	query += ` ORDER BY t.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	items := make([]TestListItem, 0)
	for rows.Next() {
		var it TestListItem
		var desc, createdBy sql.NullString
		var marks sql.NullInt64
		if err := rows.Scan(&it.ID, &it.Name, &desc, &marks, &it.Attempts, &createdBy); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		if desc.Valid {
			it.Description = &desc.String
		}
		if marks.Valid {
			m := int(marks.Int64)
			it.TotalMarks = &m
		}
		if createdBy.Valid {
			it.CreatedBy = &createdBy.String
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}
	return items, nil
}

func (s *Service) UpdateTestDescription(ctx context.Context, testID int64, description string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tests SET description = NULLIF($2, '') WHERE id = $1
	`, testID, strings.TrimSpace(description))
	if err != nil {
		return fmt.Errorf("update test description: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update test description rows: %w", err)
	}
	if n == 0 {
		return ErrTestNotFound
	}
	return nil
}

func (s *Service) DeleteTest(ctx context.Context, testID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tests WHERE id = $1`, testID)
	if err != nil {
		return fmt.Errorf("delete test: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete test rows: %w", err)
	}
	if n == 0 {
		return ErrTestNotFound
	}
	return nil
}
