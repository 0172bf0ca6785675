package quiz

import (
	"errors"
	"fmt"
	"time"
)

// Assessment 一份限时测验。开始作答后不可再修改。
type Assessment struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	CourseID        string     `json:"courseId"`
	Questions       []Question `json:"questions"`
	DurationMinutes int        `json:"durationMinutes"`
	PassingScore    *float64   `json:"passingScore,omitempty"`
	MaxAttempts     int        `json:"maxAttempts"` // 0 表示不限次数
	AvailableFrom   *time.Time `json:"availableFrom,omitempty"`
	AvailableUntil  *time.Time `json:"availableUntil,omitempty"`
}

func (a Assessment) Question(id string) (Question, bool) {
	for _, q := range a.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

func (a Assessment) TotalPoints() int {
	total := 0
	for _, q := range a.Questions {
		if q.Points > 0 {
			total += q.Points
		}
	}
	return total
}

func (a Assessment) Validate() error {
	if a.Title == "" {
		return errors.New("title is required")
	}
	if a.DurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if len(a.Questions) == 0 {
		return errors.New("assessment needs at least one question")
	}
	if a.PassingScore != nil && (*a.PassingScore < 0 || *a.PassingScore > 100) {
		return fmt.Errorf("passing score %.1f out of range 0-100", *a.PassingScore)
	}
	if a.MaxAttempts < 0 {
		return errors.New("max attempts cannot be negative")
	}
	if a.AvailableFrom != nil && a.AvailableUntil != nil && !a.AvailableUntil.After(*a.AvailableFrom) {
		return errors.New("availability window closes before it opens")
	}

	seen := make(map[string]bool, len(a.Questions))
	for _, q := range a.Questions {
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id %s", q.ID)
		}
		seen[q.ID] = true
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CheckAvailable 判断 now 是否落在测验开放时间内
func (a Assessment) CheckAvailable(now time.Time) error {
	if a.AvailableFrom != nil && now.Before(*a.AvailableFrom) {
		return ErrAssessmentNotYetAvailable
	}
	if a.AvailableUntil != nil && !now.Before(*a.AvailableUntil) {
		return ErrAssessmentClosed
	}
	return nil
}

type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateSubmitted  State = "submitted"
)

type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerExpiry Trigger = "expiry"
)

// Attempt 考生对一份测验的一次作答
type Attempt struct {
	ID             string            `json:"id"`
	AssessmentID   string            `json:"assessmentId"`
	ExamineeID     string            `json:"examineeId"`
	State          State             `json:"state"`
	Trigger        Trigger           `json:"trigger,omitempty"`
	Answers        map[string]string `json:"answers"`
	ElapsedSeconds int               `json:"elapsedSeconds"`
	Score          *float64          `json:"score,omitempty"`
	Result         *Result           `json:"result,omitempty"`
	StartedAt      time.Time         `json:"startedAt"`
	SubmittedAt    *time.Time        `json:"submittedAt,omitempty"`
}

func (a Attempt) clone() Attempt {
	out := a
	out.Answers = make(map[string]string, len(a.Answers))
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	if a.Score != nil {
		s := *a.Score
		out.Score = &s
	}
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		out.SubmittedAt = &t
	}
	if a.Result != nil {
		r := *a.Result
		r.PerQuestion = append([]QuestionResult(nil), a.Result.PerQuestion...)
		out.Result = &r
	}
	return out
}

// CountSubmitted 统计某考生已提交的作答次数
func CountSubmitted(attempts []Attempt, examineeID string) int {
	n := 0
	for _, a := range attempts {
		if a.ExamineeID == examineeID && a.State == StateSubmitted {
			n++
		}
	}
	return n
}
