package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuestion_IsCorrect(t *testing.T) {
	mc := Question{ID: "q1", Kind: KindMultipleChoice, Options: []string{"A", "B", "C", "D"}, CorrectOption: "B", Points: 5}
	tf := Question{ID: "q2", Kind: KindTrueFalse, Options: []string{"true", "false"}, CorrectOption: "false", Points: 10}
	sa := Question{ID: "q3", Kind: KindShortAnswer, ExpectedAnswer: "Paris", Points: 10}

	tests := []struct {
		name   string
		q      Question
		answer string
		want   bool
	}{
		{name: "mc correct", q: mc, answer: "B", want: true},
		{name: "mc wrong", q: mc, answer: "A", want: false},
		{name: "mc case sensitive", q: mc, answer: "b", want: false},
		{name: "mc surrounding whitespace", q: mc, answer: "  B\n", want: true},
		{name: "mc empty", q: mc, answer: "", want: false},
		{name: "tf correct", q: tf, answer: "false", want: true},
		{name: "tf wrong", q: tf, answer: "true", want: false},
		{name: "short answer exact", q: sa, answer: "Paris", want: true},
		{name: "short answer different case", q: sa, answer: "paris", want: false},
		{name: "short answer partial", q: sa, answer: "Par", want: false},
		{name: "short answer inner whitespace collapsed", q: Question{Kind: KindShortAnswer, ExpectedAnswer: "New York"}, answer: "New   York", want: true},
		{name: "mc without options", q: Question{Kind: KindMultipleChoice, CorrectOption: "B"}, answer: "B", want: false},
		{name: "mc correct option not listed", q: Question{Kind: KindMultipleChoice, Options: []string{"A", "C"}, CorrectOption: "B"}, answer: "B", want: false},
		{name: "short answer without expected", q: Question{Kind: KindShortAnswer}, answer: "", want: false},
		{name: "unknown kind", q: Question{Kind: "essay", ExpectedAnswer: "x"}, answer: "x", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.IsCorrect(tt.answer))
		})
	}
}

func TestQuestion_Validate(t *testing.T) {
	tests := []struct {
		name    string
		q       Question
		wantErr bool
	}{
		{name: "valid mc", q: Question{ID: "1", Kind: KindMultipleChoice, Options: []string{"A", "B"}, CorrectOption: "A", Points: 10}},
		{name: "valid short", q: Question{ID: "2", Kind: KindShortAnswer, ExpectedAnswer: "x", Points: 1}},
		{name: "missing id", q: Question{Kind: KindShortAnswer, ExpectedAnswer: "x", Points: 1}, wantErr: true},
		{name: "zero points", q: Question{ID: "3", Kind: KindShortAnswer, ExpectedAnswer: "x"}, wantErr: true},
		{name: "too few options", q: Question{ID: "4", Kind: KindTrueFalse, Options: []string{"true"}, CorrectOption: "true", Points: 1}, wantErr: true},
		{name: "too many options", q: Question{ID: "5", Kind: KindMultipleChoice, Options: []string{"A", "B", "C", "D", "E"}, CorrectOption: "A", Points: 1}, wantErr: true},
		{name: "correct not in options", q: Question{ID: "6", Kind: KindMultipleChoice, Options: []string{"A", "B"}, CorrectOption: "C", Points: 1}, wantErr: true},
		{name: "short answer with options", q: Question{ID: "7", Kind: KindShortAnswer, Options: []string{"A"}, ExpectedAnswer: "A", Points: 1}, wantErr: true},
		{name: "unknown kind", q: Question{ID: "8", Kind: "essay", Points: 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
