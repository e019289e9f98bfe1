package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// QuestionResponse carries the answers a student picked for one
// question. An empty selection means the question was left blank.
type QuestionResponse struct {
	QuestionID        int64   `json:"question_id"`
	SelectedAnswerIDs []int64 `json:"selected_answer_ids"`
}

type RecordAttemptInput struct {
	StudentID int64
	TestID    int64
	Responses []QuestionResponse
}

type AttemptReceipt struct {
	AttemptID         int64     `json:"attempt_id"`
	TestID            int64     `json:"test_id"`
	RemainingAttempts int       `json:"remaining_attempts"`
	CreatedAt         time.Time `json:"created_at"`
}

// RecordAttempt persists one finished attempt. The whole operation is
// a single transaction: the attempt counter is decremented with a
// guarded update so two concurrent submissions can never push it
// below zero, then the attempt and every answer row are written.
// Questions the student skipped get a single row with a null answer
// so the attempt always covers the full question set.
func (s *Service) RecordAttempt(ctx context.Context, in RecordAttemptInput) (*AttemptReceipt, error) {
	if in.StudentID <= 0 || in.TestID <= 0 {
		return nil, ErrInvalidInput
	}

	var receipt *AttemptReceipt
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin attempt tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `
			UPDATE assignments
			SET remaining_attempts = remaining_attempts - 1
			WHERE student_id = $1 AND test_id = $2 AND remaining_attempts > 0
		`, in.StudentID, in.TestID)
		if err != nil {
			return fmt.Errorf("decrement attempts: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("decrement attempts rows: %w", err)
		}
		if n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `
				SELECT EXISTS(
					SELECT 1 FROM assignments
					WHERE student_id = $1 AND test_id = $2
				)
			`, in.StudentID, in.TestID).Scan(&exists); err != nil {
				return fmt.Errorf("check assignment: %w", err)
			}
			if exists {
				return ErrNoAttemptsLeft
			}
			return ErrNotAssigned
		}

		questionTypes, answerOwner, err := loadTestShape(ctx, tx, in.TestID)
		if err != nil {
			return err
		}
		selected, err := validateResponses(in.Responses, questionTypes, answerOwner)
		if err != nil {
			return err
		}

		var attemptID int64
		var createdAt time.Time
		err = tx.QueryRowContext(ctx, `
			INSERT INTO attempts (student_id, test_id)
			VALUES ($1, $2)
			RETURNING id, created_at
		`, in.StudentID, in.TestID).Scan(&attemptID, &createdAt)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}

		questionIDs := make([]int64, 0, len(questionTypes))
		for qid := range questionTypes {
			questionIDs = append(questionIDs, qid)
		}
		sort.Slice(questionIDs, func(i, j int) bool { return questionIDs[i] < questionIDs[j] })

		for _, qid := range questionIDs {
			answerIDs := selected[qid]
			if len(answerIDs) == 0 {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO student_answers (attempt_id, question_id, selected_answer_id)
					VALUES ($1, $2, NULL)
				`, attemptID, qid); err != nil {
					return fmt.Errorf("insert blank answer: %w", err)
				}
				continue
			}
			for _, aid := range answerIDs {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO student_answers (attempt_id, question_id, selected_answer_id)
					VALUES ($1, $2, $3)
				`, attemptID, qid, aid); err != nil {
					return fmt.Errorf("insert answer: %w", err)
				}
			}
		}

		var remaining int
		if err := tx.QueryRowContext(ctx, `
			SELECT remaining_attempts FROM assignments
			WHERE student_id = $1 AND test_id = $2
		`, in.StudentID, in.TestID).Scan(&remaining); err != nil {
			return fmt.Errorf("load remaining after attempt: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit attempt: %w", err)
		}
		receipt = &AttemptReceipt{
			AttemptID:         attemptID,
			TestID:            in.TestID,
			RemainingAttempts: remaining,
			CreatedAt:         createdAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// loadTestShape loads the question types and the answer ownership map
// for one test, used to validate submitted selections.
func loadTestShape(ctx context.Context, tx *sql.Tx, testID int64) (map[int64]string, map[int64]int64, error) {
	questionTypes := make(map[int64]string)
	qrows, err := tx.QueryContext(ctx, `
		SELECT id, type FROM questions WHERE test_id = $1
	`, testID)
	if err != nil {
		return nil, nil, fmt.Errorf("query test questions: %w", err)
	}
	defer qrows.Close()
	for qrows.Next() {
		var id int64
		var qtype string
		if err := qrows.Scan(&id, &qtype); err != nil {
			return nil, nil, fmt.Errorf("scan test question: %w", err)
		}
		questionTypes[id] = qtype
	}
	if err := qrows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate test questions: %w", err)
	}

	answerOwner := make(map[int64]int64)
	arows, err := tx.QueryContext(ctx, `
		SELECT a.id, a.question_id
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE q.test_id = $1
	`, testID)
	if err != nil {
		return nil, nil, fmt.Errorf("query test answers: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var answerID, questionID int64
		if err := arows.Scan(&answerID, &questionID); err != nil {
			return nil, nil, fmt.Errorf("scan test answer: %w", err)
		}
		answerOwner[answerID] = questionID
	}
	if err := arows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate test answers: %w", err)
	}

	return questionTypes, answerOwner, nil
}

// validateResponses rejects selections that point outside the test:
// unknown questions, answers belonging to other questions, duplicate
// question entries, or multiple picks on a single-choice question.
func validateResponses(responses []QuestionResponse, questionTypes map[int64]string, answerOwner map[int64]int64) (map[int64][]int64, error) {
	selected := make(map[int64][]int64, len(responses))
	for _, resp := range responses {
		qtype, ok := questionTypes[resp.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: question %d", ErrInvalidSelection, resp.QuestionID)
		}
		if _, dup := selected[resp.QuestionID]; dup {
			return nil, fmt.Errorf("%w: duplicate question %d", ErrInvalidSelection, resp.QuestionID)
		}
		if qtype == "SINGLE" && len(resp.SelectedAnswerIDs) > 1 {
			return nil, fmt.Errorf("%w: multiple answers for single-choice question %d", ErrInvalidSelection, resp.QuestionID)
		}

		seen := make(map[int64]struct{}, len(resp.SelectedAnswerIDs))
		for _, aid := range resp.SelectedAnswerIDs {
			owner, ok := answerOwner[aid]
			if !ok || owner != resp.QuestionID {
				return nil, fmt.Errorf("%w: answer %d", ErrInvalidSelection, aid)
			}
			if _, dup := seen[aid]; dup {
				return nil, fmt.Errorf("%w: duplicate answer %d", ErrInvalidSelection, aid)
			}
			seen[aid] = struct{}{}
		}
		selected[resp.QuestionID] = resp.SelectedAnswerIDs
	}
	return selected, nil
}
