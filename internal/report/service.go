package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrAttemptNotFound = errors.New("attempt not found")
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// AttemptSummary is one row of the per-test history: how many of the
// recorded answers were correct out of the total recorded. Ordinal
// numbers attempts chronologically starting at 1.
type AttemptSummary struct {
	Ordinal   int       `json:"ordinal"`
	AttemptID int64     `json:"attempt_id"`
	CreatedAt time.Time `json:"created_at"`
	Correct   int       `json:"correct"`
	Total     int       `json:"total"`
}

// AttemptDetailRow shows one recorded answer next to the correct one.
// StudentAnswer is nil when the question was left blank.
type AttemptDetailRow struct {
	QuestionID    int64   `json:"question_id"`
	QuestionText  string  `json:"question_text"`
	StudentAnswer *string `json:"student_answer"`
	CorrectAnswer string  `json:"correct_answer"`
	IsCorrect     bool    `json:"is_correct"`
}

type AttemptedTest struct {
	TestID       int64  `json:"test_id"`
	Name         string `json:"name"`
	AttemptCount int    `json:"attempt_count"`
}

// SummarizeAttempts returns the student's attempt history for one
// test, oldest first. Blank answers count toward the total but never
// toward the correct tally.
func (s *Service) SummarizeAttempts(ctx context.Context, studentID, testID int64) ([]AttemptSummary, error) {
	if studentID <= 0 || testID <= 0 {
		return nil, ErrInvalidInput
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT at.id, at.created_at,
		       COUNT(*) FILTER (WHERE a.is_correct) AS correct,
		       COUNT(sa.id) AS total
		FROM attempts at
		JOIN student_answers sa ON sa.attempt_id = at.id
		LEFT JOIN answers a ON a.id = sa.selected_answer_id
		WHERE at.student_id = $1 AND at.test_id = $2
		GROUP BY at.id, at.created_at
		ORDER BY at.created_at, at.id
	`, studentID, testID)
	if err != nil {
		return nil, fmt.Errorf("query attempt summaries: %w", err)
	}
	defer rows.Close()

	items := make([]AttemptSummary, 0)
	for rows.Next() {
		var it AttemptSummary
		if err := rows.Scan(&it.AttemptID, &it.CreatedAt, &it.Correct, &it.Total); err != nil {
			return nil, fmt.Errorf("scan attempt summary: %w", err)
		}
		it.Ordinal = len(items) + 1
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt summaries: %w", err)
	}
	return items, nil
}

// DetailedAttempt returns every recorded answer of one attempt with
// the question text and the correct answer alongside, in question
// order. The attempt must belong to the given student and test.
func (s *Service) DetailedAttempt(ctx context.Context, studentID, testID, attemptID int64) ([]AttemptDetailRow, error) {
	if studentID <= 0 || testID <= 0 || attemptID <= 0 {
		return nil, ErrInvalidInput
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM attempts
			WHERE id = $1 AND student_id = $2 AND test_id = $3
		)
	`, attemptID, studentID, testID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check attempt: %w", err)
	}
	if !exists {
		return nil, ErrAttemptNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.text,
		       chosen.text AS student_answer,
		       COALESCE(chosen.is_correct, false) AS is_correct,
		       (
			SELECT string_agg(ca.text, ', ' ORDER BY ca.id)
			FROM answers ca
			WHERE ca.question_id = q.id AND ca.is_correct
		       ) AS correct_answer
		FROM student_answers sa
		JOIN questions q ON q.id = sa.question_id
		LEFT JOIN answers chosen ON chosen.id = sa.selected_answer_id
		WHERE sa.attempt_id = $1
		ORDER BY q.id, sa.id
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query attempt detail: %w", err)
	}
	defer rows.Close()

	items := make([]AttemptDetailRow, 0)
	for rows.Next() {
		var it AttemptDetailRow
		var studentAnswer, correctAnswer sql.NullString
		if err := rows.Scan(&it.QuestionID, &it.QuestionText, &studentAnswer, &it.IsCorrect, &correctAnswer); err != nil {
			return nil, fmt.Errorf("scan attempt detail: %w", err)
		}
		if studentAnswer.Valid {
			it.StudentAnswer = &studentAnswer.String
		}
		it.CorrectAnswer = correctAnswer.String
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt detail: %w", err)
	}
	return items, nil
}

// ListAttemptedTests returns the tests a student has at least one
// recorded attempt on.
func (s *Service) ListAttemptedTests(ctx context.Context, studentID int64) ([]AttemptedTest, error) {
	if studentID <= 0 {
		return nil, ErrInvalidInput
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, COUNT(at.id) AS attempt_count
		FROM attempts at
		JOIN tests t ON t.id = at.test_id
		WHERE at.student_id = $1
		GROUP BY t.id, t.name
		ORDER BY t.id
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query attempted tests: %w", err)
	}
	defer rows.Close()

	items := make([]AttemptedTest, 0)
	for rows.Next() {
		var it AttemptedTest
		if err := rows.Scan(&it.TestID, &it.Name, &it.AttemptCount); err != nil {
			return nil, fmt.Errorf("scan attempted test: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempted tests: %w", err)
	}
	return items, nil
}
