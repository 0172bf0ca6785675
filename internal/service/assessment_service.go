package service

import (
	"context"
	"errors"
	"fmt"
	"school_dashboard_backend/internal/model"
	"school_dashboard_backend/internal/quiz"
	"school_dashboard_backend/internal/repository"
	"school_dashboard_backend/internal/util"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssessmentStore 测验的持久化
type AssessmentStore interface {
	Create(ctx context.Context, a *model.Assessment) error
	FindByID(ctx context.Context, id string) (*model.Assessment, error)
	List(ctx context.Context, page, limit int, publishedOnly bool) ([]model.Assessment, int64, error)
	Update(ctx context.Context, a *model.Assessment, questions []model.AssessmentQuestion) error
}

// AttemptCounter 用于判断测验是否已有人作答
type AttemptCounter interface {
	CountByAssessment(ctx context.Context, assessmentID string) (int64, error)
}

// LiveAttempts 尚未落库的作答，由 QuizService 提供
type LiveAttempts interface {
	HasLiveAttempts(assessmentID string) bool
}

type AssessmentService struct {
	Repo     AssessmentStore
	Attempts AttemptCounter
	Live     LiveAttempts
	now      func() time.Time
}

func NewAssessmentService(repo AssessmentStore, attempts AttemptCounter) *AssessmentService {
	return &AssessmentService{Repo: repo, Attempts: attempts, now: time.Now}
}

type AssessmentQuestionReq struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind" binding:"required,oneof=multiple_choice true_false short_answer"`
	Prompt         string   `json:"prompt" binding:"required"`
	Options        []string `json:"options"`
	CorrectOption  string   `json:"correctOption"`
	ExpectedAnswer string   `json:"expectedAnswer"`
	Points         int      `json:"points" binding:"gte=0"`
	Explanation    string   `json:"explanation"`
	Order          int      `json:"order"`
}

type AssessmentReq struct {
	Title           *string                  `json:"title"`
	Description     *string                  `json:"description"`
	CourseID        *string                  `json:"courseId"`
	DurationMinutes *int                     `json:"durationMinutes"`
	PassingScore    *float64                 `json:"passingScore" binding:"omitempty,gte=0,lte=100"`
	MaxAttempts     *int                     `json:"maxAttempts" binding:"omitempty,gte=0"`
	AvailableFrom   *time.Time               `json:"availableFrom"`
	AvailableUntil  *time.Time               `json:"availableUntil"`
	IsPublished     *bool                    `json:"isPublished"`
	Questions       *[]AssessmentQuestionReq `json:"questions" binding:"omitempty,dive"`
}

// onlyPublishToggle 已有作答时只允许修改发布状态
func (r AssessmentReq) onlyPublishToggle() bool {
	return r.Title == nil && r.Description == nil && r.CourseID == nil &&
		r.DurationMinutes == nil && r.PassingScore == nil && r.MaxAttempts == nil &&
		r.AvailableFrom == nil && r.AvailableUntil == nil && r.Questions == nil
}

func (s *AssessmentService) CreateAssessment(ctx context.Context, creatorID uint, req AssessmentReq) (*model.Assessment, error) {
	if req.Title == nil || *req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", util.ErrInvalidAssessment)
	}

	a := &model.Assessment{CreatorID: creatorID}
	a.ID = model.GenerateUUID()
	s.applyFields(a, req)
	if req.Questions != nil {
		a.Questions = buildQuestions(a.ID, *req.Questions)
	}

	if err := repository.ToQuizAssessment(a).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrInvalidAssessment, err)
	}

	if err := s.Repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateAssessment 更新测验；一旦有人开始作答，内容不可再改
func (s *AssessmentService) UpdateAssessment(ctx context.Context, id string, req AssessmentReq) (*model.Assessment, error) {
	a, err := s.Repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, quiz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !req.onlyPublishToggle() {
		locked, err := s.HasAttempts(ctx, id)
		if err != nil {
			return nil, err
		}
		if locked {
			return nil, util.ErrAssessmentLocked
		}
	}

	s.applyFields(a, req)
	var questions []model.AssessmentQuestion
	if req.Questions != nil {
		questions = buildQuestions(a.ID, *req.Questions)
		a.Questions = questions
	}

	if err := repository.ToQuizAssessment(a).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrInvalidAssessment, err)
	}

	if err := s.Repo.Update(ctx, a, questions); err != nil {
		return nil, err
	}
	return a, nil
}

// HasAttempts 已落库的作答和内存中进行中的作答都算
func (s *AssessmentService) HasAttempts(ctx context.Context, id string) (bool, error) {
	if s.Live != nil && s.Live.HasLiveAttempts(id) {
		return true, nil
	}
	n, err := s.Attempts.CountByAssessment(ctx, id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *AssessmentService) applyFields(a *model.Assessment, req AssessmentReq) {
	if req.Title != nil {
		a.Title = *req.Title
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.CourseID != nil {
		a.CourseID = *req.CourseID
	}
	if req.DurationMinutes != nil {
		a.DurationMinutes = *req.DurationMinutes
	}
	if req.PassingScore != nil {
		p := *req.PassingScore
		a.PassingScore = &p
	}
	if req.MaxAttempts != nil {
		a.MaxAttempts = *req.MaxAttempts
	}
	if req.AvailableFrom != nil {
		a.AvailableFrom = req.AvailableFrom
	}
	if req.AvailableUntil != nil {
		a.AvailableUntil = req.AvailableUntil
	}
	if req.IsPublished != nil {
		if *req.IsPublished && !a.IsPublished {
			now := s.now()
			a.PublishedAt = &now
		}
		a.IsPublished = *req.IsPublished
	}
}

func buildQuestions(assessmentID string, reqs []AssessmentQuestionReq) []model.AssessmentQuestion {
	questions := make([]model.AssessmentQuestion, 0, len(reqs))
	for i, qReq := range reqs {
		q := model.AssessmentQuestion{
			AssessmentID:   assessmentID,
			Kind:           qReq.Kind,
			Prompt:         qReq.Prompt,
			Options:        datatypes.JSONSlice[string](qReq.Options),
			CorrectOption:  qReq.CorrectOption,
			ExpectedAnswer: qReq.ExpectedAnswer,
			Points:         qReq.Points,
			Explanation:    qReq.Explanation,
			Order:          qReq.Order,
		}
		// 判断题固定两个选项
		if quiz.Kind(q.Kind) == quiz.KindTrueFalse && len(q.Options) == 0 {
			q.Options = datatypes.JSONSlice[string]{"True", "False"}
		}
		if q.Points == 0 {
			q.Points = quiz.DefaultPoints
		}
		if q.Order == 0 {
			q.Order = i + 1
		}
		q.ID = qReq.ID
		if q.ID == "" {
			q.ID = model.GenerateUUID()
		}
		questions = append(questions, q)
	}
	return questions
}

func (s *AssessmentService) GetAssessment(ctx context.Context, id string) (*model.Assessment, error) {
	a, err := s.Repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, quiz.ErrNotFound
	}
	return a, err
}

func (s *AssessmentService) ListAssessments(ctx context.Context, page, limit int, publishedOnly bool) ([]model.Assessment, int64, error) {
	return s.Repo.List(ctx, page, limit, publishedOnly)
}

// GetAssessmentByID 只返回已发布的测验，供作答使用
func (s *AssessmentService) GetAssessmentByID(ctx context.Context, id string) (quiz.Assessment, error) {
	a, err := s.GetAssessment(ctx, id)
	if err != nil {
		return quiz.Assessment{}, err
	}
	if !a.IsPublished {
		return quiz.Assessment{}, quiz.ErrNotFound
	}
	return repository.ToQuizAssessment(a), nil
}

type StudentQuestion struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Points  int      `json:"points"`
	Order   int      `json:"order"`
}

// StudentAssessmentView 学生看到的测验，不含答案
type StudentAssessmentView struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	CourseID        string            `json:"courseId"`
	DurationMinutes int               `json:"durationMinutes"`
	PassingScore    *float64          `json:"passingScore,omitempty"`
	MaxAttempts     int               `json:"maxAttempts"`
	AvailableFrom   *time.Time        `json:"availableFrom,omitempty"`
	AvailableUntil  *time.Time        `json:"availableUntil,omitempty"`
	QuestionCount   int               `json:"questionCount"`
	TotalPoints     int               `json:"totalPoints"`
	Questions       []StudentQuestion `json:"questions"`
}

func (s *AssessmentService) GetStudentView(ctx context.Context, id string) (*StudentAssessmentView, error) {
	a, err := s.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsPublished {
		return nil, quiz.ErrNotFound
	}

	view := &StudentAssessmentView{
		ID:              a.ID,
		Title:           a.Title,
		Description:     a.Description,
		CourseID:        a.CourseID,
		DurationMinutes: a.DurationMinutes,
		PassingScore:    a.PassingScore,
		MaxAttempts:     a.MaxAttempts,
		AvailableFrom:   a.AvailableFrom,
		AvailableUntil:  a.AvailableUntil,
		QuestionCount:   len(a.Questions),
		TotalPoints:     repository.ToQuizAssessment(a).TotalPoints(),
		Questions:       make([]StudentQuestion, 0, len(a.Questions)),
	}
	for _, q := range a.Questions {
		view.Questions = append(view.Questions, StudentQuestion{
			ID:      q.ID,
			Kind:    q.Kind,
			Prompt:  q.Prompt,
			Options: []string(q.Options),
			Points:  q.Points,
			Order:   q.Order,
		})
	}
	return view, nil
}
