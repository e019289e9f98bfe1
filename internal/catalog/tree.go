package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// TestTree is the full nested view of one test: every question with
// its answers, in stable id order.
type TestTree struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Attempts  int            `json:"attempts"`
	CreatorID int64          `json:"creator_id"`
	Questions []TreeQuestion `json:"questions"`
}

type TreeQuestion struct {
	ID      int64        `json:"id"`
	Text    string       `json:"text"`
	Type    string       `json:"type"`
	Answers []TreeAnswer `json:"answers"`
}

type TreeAnswer struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// treeRow is one flattened row of the test/question/answer join.
// Question and answer columns are nullable because the join keeps
// tests with no questions and questions with no answers.
type treeRow struct {
	TestID          int64
	TestName        string
	Attempts        int
	CreatorID       int64
	QuestionID      sql.NullInt64
	QuestionText    sql.NullString
	QuestionType    sql.NullString
	AnswerID        sql.NullInt64
	AnswerText      sql.NullString
	AnswerIsCorrect sql.NullBool
}

// TestTree loads a test with all of its questions and answers in a
// single query and folds the flat rows into the nested shape.
func (s *Service) TestTree(ctx context.Context, testID int64) (*TestTree, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.attempts, t.creator_id,
		       q.id, q.text, q.type,
		       a.id, a.text, a.is_correct
		FROM tests t
		LEFT JOIN questions q ON q.test_id = t.id
		LEFT JOIN answers a ON a.question_id = q.id
		WHERE t.id = $1
		ORDER BY q.id, a.id
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query test tree: %w", err)
	}
	defer rows.Close()

	flat := make([]treeRow, 0)
	for rows.Next() {
		var r treeRow
		if err := rows.Scan(
			&r.TestID, &r.TestName, &r.Attempts, &r.CreatorID,
			&r.QuestionID, &r.QuestionText, &r.QuestionType,
			&r.AnswerID, &r.AnswerText, &r.AnswerIsCorrect,
		); err != nil {
			return nil, fmt.Errorf("scan test tree row: %w", err)
		}
		flat = append(flat, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test tree: %w", err)
	}
	if len(flat) == 0 {
		return nil, ErrTestNotFound
	}

	return mergeTreeRows(flat), nil
}

// mergeTreeRows folds ordered join rows into a TestTree. The input is
// expected to be ordered by question id then answer id, all rows
// belonging to one test.
func mergeTreeRows(rows []treeRow) *TestTree {
	tree := &TestTree{
		ID:        rows[0].TestID,
		Name:      rows[0].TestName,
		Attempts:  rows[0].Attempts,
		CreatorID: rows[0].CreatorID,
		Questions: make([]TreeQuestion, 0),
	}

	var current *TreeQuestion
	for _, r := range rows {
		if !r.QuestionID.Valid {
			continue
		}
		if current == nil || current.ID != r.QuestionID.Int64 {
			tree.Questions = append(tree.Questions, TreeQuestion{
				ID:      r.QuestionID.Int64,
				Text:    r.QuestionText.String,
				Type:    r.QuestionType.String,
				Answers: make([]TreeAnswer, 0),
			})
			current = &tree.Questions[len(tree.Questions)-1]
		}
		if r.AnswerID.Valid {
			current.Answers = append(current.Answers, TreeAnswer{
				ID:        r.AnswerID.Int64,
				Text:      r.AnswerText.String,
				IsCorrect: r.AnswerIsCorrect.Bool,
			})
		}
	}
	return tree
}
