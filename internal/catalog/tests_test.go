package catalog

import (
	"errors"
	"testing"
)

func validQuestion() CreateQuestionInput {
	return CreateQuestionInput{
		Text: "2+2?",
		Type: "SINGLE",
		Answers: []CreateAnswerInput{
			{Text: "3"},
			{Text: "4", IsCorrect: true},
		},
	}
}

func TestValidateTestInput(t *testing.T) {
	base := CreateTestInput{
		Name:      "Quiz1",
		Attempts:  2,
		CreatorID: 1,
		Questions: []CreateQuestionInput{validQuestion()},
	}

	if err := validateTestInput(base); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(in *CreateTestInput)
	}{
		{"empty name", func(in *CreateTestInput) { in.Name = "  " }},
		{"zero attempts", func(in *CreateTestInput) { in.Attempts = 0 }},
		{"no questions", func(in *CreateTestInput) { in.Questions = nil }},
		{"blank question text", func(in *CreateTestInput) { in.Questions[0].Text = "" }},
		{"bad question type", func(in *CreateTestInput) { in.Questions[0].Type = "ESSAY" }},
		{"one answer only", func(in *CreateTestInput) {
			in.Questions[0].Answers = in.Questions[0].Answers[:1]
		}},
		{"blank answer text", func(in *CreateTestInput) { in.Questions[0].Answers[0].Text = "" }},
		{"no correct answer", func(in *CreateTestInput) {
			for i := range in.Questions[0].Answers {
				in.Questions[0].Answers[i].IsCorrect = false
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := CreateTestInput{
				Name:      base.Name,
				Attempts:  base.Attempts,
				CreatorID: base.CreatorID,
				Questions: []CreateQuestionInput{validQuestion()},
			}
			tc.mutate(&in)
			if err := validateTestInput(in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestNormalizeQuestionType(t *testing.T) {
	cases := map[string]string{
		"SINGLE":  "SINGLE",
		"single":  "SINGLE",
		" multi ": "MULTI",
		"MULTI":   "MULTI",
		"essay":   "",
		"":        "",
	}
	for in, want := range cases {
		if got := normalizeQuestionType(in); got != want {
			t.Errorf("normalizeQuestionType(%q) = %q, want %q", in, got, want)
		}
	}
}
