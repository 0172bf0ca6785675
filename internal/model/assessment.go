package model

import (
	"time"

	"gorm.io/datatypes"
)

// swagger:model Assessment
type Assessment struct {
	UUIDBase
	Title           string     `gorm:"size:255;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	CourseID        string     `gorm:"size:64;index" json:"courseId"`
	CreatorID       uint       `gorm:"index" json:"creatorId"`
	DurationMinutes int        `gorm:"not null" json:"durationMinutes"`
	PassingScore    *float64   `json:"passingScore,omitempty"` // 为空时使用系统默认及格线
	MaxAttempts     int        `gorm:"default:0" json:"maxAttempts"` // 0 表示不限
	AvailableFrom   *time.Time `json:"availableFrom,omitempty"`
	AvailableUntil  *time.Time `json:"availableUntil,omitempty"`
	IsPublished     bool       `gorm:"default:false" json:"isPublished"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`

	Questions []AssessmentQuestion `gorm:"foreignKey:AssessmentID" json:"questions,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// swagger:model AssessmentQuestion
type AssessmentQuestion struct {
	UUIDBase
	AssessmentID   string                      `gorm:"index;type:varchar(36)" json:"assessmentId"`
	Kind           string                      `gorm:"size:30;not null" json:"kind"` // multiple_choice, true_false, short_answer
	Prompt         string                      `gorm:"type:text;not null" json:"prompt"`
	Options        datatypes.JSONSlice[string] `gorm:"type:json" json:"options,omitempty"`
	CorrectOption  string                      `gorm:"size:255" json:"correctOption,omitempty"`
	ExpectedAnswer string                      `gorm:"type:text" json:"expectedAnswer,omitempty"`
	Points         int                         `gorm:"default:10" json:"points"`
	Explanation    string                      `gorm:"type:text" json:"explanation"`
	Order          int                         `gorm:"default:0" json:"order"`
}

func (AssessmentQuestion) TableName() string {
	return "assessment_questions"
}
