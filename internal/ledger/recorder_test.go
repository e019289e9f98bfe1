package ledger

import (
	"errors"
	"testing"
)

func testShape() (map[int64]string, map[int64]int64) {
	questionTypes := map[int64]string{
		10: "SINGLE",
		11: "MULTI",
	}
	answerOwner := map[int64]int64{
		100: 10,
		101: 10,
		102: 11,
		103: 11,
		104: 11,
	}
	return questionTypes, answerOwner
}

func TestValidateResponsesAccepted(t *testing.T) {
	questionTypes, answerOwner := testShape()

	selected, err := validateResponses([]QuestionResponse{
		{QuestionID: 10, SelectedAnswerIDs: []int64{101}},
		{QuestionID: 11, SelectedAnswerIDs: []int64{102, 104}},
	}, questionTypes, answerOwner)
	if err != nil {
		t.Fatalf("valid responses rejected: %v", err)
	}
	if len(selected[11]) != 2 {
		t.Fatalf("expected both multi picks kept, got %v", selected[11])
	}
}

func TestValidateResponsesBlankSelectionAllowed(t *testing.T) {
	questionTypes, answerOwner := testShape()

	selected, err := validateResponses([]QuestionResponse{
		{QuestionID: 10},
	}, questionTypes, answerOwner)
	if err != nil {
		t.Fatalf("blank selection rejected: %v", err)
	}
	if len(selected[10]) != 0 {
		t.Fatalf("expected no picks recorded, got %v", selected[10])
	}
}

func TestValidateResponsesRejections(t *testing.T) {
	questionTypes, answerOwner := testShape()

	cases := []struct {
		name      string
		responses []QuestionResponse
	}{
		{"unknown question", []QuestionResponse{{QuestionID: 99, SelectedAnswerIDs: []int64{100}}}},
		{"answer from other question", []QuestionResponse{{QuestionID: 10, SelectedAnswerIDs: []int64{102}}}},
		{"unknown answer", []QuestionResponse{{QuestionID: 10, SelectedAnswerIDs: []int64{999}}}},
		{"duplicate question", []QuestionResponse{
			{QuestionID: 10, SelectedAnswerIDs: []int64{100}},
			{QuestionID: 10, SelectedAnswerIDs: []int64{101}},
		}},
		{"duplicate answer", []QuestionResponse{{QuestionID: 11, SelectedAnswerIDs: []int64{102, 102}}}},
		{"multiple picks on single", []QuestionResponse{{QuestionID: 10, SelectedAnswerIDs: []int64{100, 101}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := validateResponses(tc.responses, questionTypes, answerOwner); !errors.Is(err, ErrInvalidSelection) {
				t.Fatalf("expected ErrInvalidSelection, got %v", err)
			}
		})
	}
}
