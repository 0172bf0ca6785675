package model

import "time"

const (
	AttemptStateInProgress = "in_progress"
	AttemptStateSubmitted  = "submitted"
)

// swagger:model QuizAttempt
type QuizAttempt struct {
	UUIDBase
	AssessmentID   string     `gorm:"index;type:varchar(36)" json:"assessmentId"`
	ExamineeID     string     `gorm:"index;size:64" json:"examineeId"`
	State          string     `gorm:"size:20;default:'submitted'" json:"state"`
	Trigger        string     `gorm:"size:20" json:"trigger"` // manual, expiry
	ElapsedSeconds int        `gorm:"default:0" json:"elapsedSeconds"`
	Score          *float64   `json:"score,omitempty"`
	EarnedPoints   int        `gorm:"default:0" json:"earnedPoints"`
	TotalPoints    int        `gorm:"default:0" json:"totalPoints"`
	StartedAt      time.Time  `json:"startedAt"`
	SubmittedAt    *time.Time `gorm:"index" json:"submittedAt,omitempty"`

	Answers []QuizAttemptAnswer `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// QuizAttemptAnswer 每题的作答与判分结果，用于回看
type QuizAttemptAnswer struct {
	BaseModel
	AttemptID      string `gorm:"index;type:varchar(36)" json:"attemptId"`
	QuestionID     string `gorm:"type:varchar(36)" json:"questionId"`
	Kind           string `gorm:"size:30" json:"kind"`
	Answer         string `gorm:"type:text" json:"answer"`
	IsCorrect      bool   `gorm:"default:false" json:"isCorrect"`
	PointsEarned   int    `gorm:"default:0" json:"pointsEarned"`
	PointsPossible int    `gorm:"default:0" json:"pointsPossible"`
}

func (QuizAttemptAnswer) TableName() string {
	return "quiz_attempt_answers"
}
