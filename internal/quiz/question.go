package quiz

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindMultipleChoice Kind = "multiple_choice"
	KindTrueFalse      Kind = "true_false"
	KindShortAnswer    Kind = "short_answer"
)

const (
	DefaultPoints = 10
	MinOptions    = 2
	MaxOptions    = 4
)

func (k Kind) Valid() bool {
	switch k {
	case KindMultipleChoice, KindTrueFalse, KindShortAnswer:
		return true
	}
	return false
}

// Question 单道题目。Options/CorrectOption 只对选择类题型有意义，ExpectedAnswer 只对简答题有意义。
type Question struct {
	ID             string   `json:"id"`
	Prompt         string   `json:"prompt"`
	Kind           Kind     `json:"kind"`
	Options        []string `json:"options,omitempty"`
	CorrectOption  string   `json:"correctOption,omitempty"`
	ExpectedAnswer string   `json:"expectedAnswer,omitempty"`
	Points         int      `json:"points"`
}

// IsCorrect 按精确匹配判定答案，只做空白规范化，区分大小写。
// 题目本身数据不完整时一律判为错误。
func (q Question) IsCorrect(answer string) bool {
	given := NormalizeAnswer(answer)
	if given == "" {
		return false
	}

	switch q.Kind {
	case KindMultipleChoice, KindTrueFalse:
		correct := NormalizeAnswer(q.CorrectOption)
		if correct == "" || !q.hasOption(correct) {
			return false
		}
		return given == correct
	case KindShortAnswer:
		expected := NormalizeAnswer(q.ExpectedAnswer)
		return expected != "" && given == expected
	default:
		return false
	}
}

func (q Question) hasOption(normalized string) bool {
	for _, o := range q.Options {
		if NormalizeAnswer(o) == normalized {
			return true
		}
	}
	return false
}

// Validate 供出题流程使用，判题时不会调用
func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return errors.New("question id is required")
	}
	if q.Points <= 0 {
		return fmt.Errorf("question %s: points must be positive", q.ID)
	}

	switch q.Kind {
	case KindMultipleChoice, KindTrueFalse:
		if len(q.Options) < MinOptions || len(q.Options) > MaxOptions {
			return fmt.Errorf("question %s: needs %d-%d options, got %d", q.ID, MinOptions, MaxOptions, len(q.Options))
		}
		if !q.hasOption(NormalizeAnswer(q.CorrectOption)) || NormalizeAnswer(q.CorrectOption) == "" {
			return fmt.Errorf("question %s: correct option must be one of the options", q.ID)
		}
	case KindShortAnswer:
		if len(q.Options) > 0 {
			return fmt.Errorf("question %s: short answer questions take no options", q.ID)
		}
		if NormalizeAnswer(q.ExpectedAnswer) == "" {
			return fmt.Errorf("question %s: expected answer is required", q.ID)
		}
	default:
		return fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
	}
	return nil
}

// NormalizeAnswer 去掉首尾空白并把连续空白压缩为一个空格
func NormalizeAnswer(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
