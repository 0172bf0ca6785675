package repository

import (
	"context"
	"errors"
	"school_dashboard_backend/internal/model"
	"school_dashboard_backend/internal/quiz"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func questionOrder(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "order"}}).Order("created_at asc")
}

func (r *AssessmentRepository) Create(ctx context.Context, a *model.Assessment) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.WithContext(ctx).Preload("Questions", questionOrder).First(&a, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAssessmentByID 返回判题用的测验，不存在时返回 quiz.ErrNotFound
func (r *AssessmentRepository) GetAssessmentByID(ctx context.Context, id string) (quiz.Assessment, error) {
	a, err := r.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return quiz.Assessment{}, quiz.ErrNotFound
	}
	if err != nil {
		return quiz.Assessment{}, err
	}
	return ToQuizAssessment(a), nil
}

func (r *AssessmentRepository) List(ctx context.Context, page, limit int, publishedOnly bool) ([]model.Assessment, int64, error) {
	var as []model.Assessment
	var total int64
	query := r.DB.WithContext(ctx).Model(&model.Assessment{})
	if publishedOnly {
		query = query.Where("is_published = ?", true)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&as).Error
	return as, total, err
}

// Update 保存测验并整体替换题目
func (r *AssessmentRepository) Update(ctx context.Context, a *model.Assessment, questions []model.AssessmentQuestion) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Questions").Save(a).Error; err != nil {
			return err
		}
		if questions == nil {
			return nil
		}
		// 硬删除，重新提交的题目可能沿用原来的 ID
		if err := tx.Unscoped().Where("assessment_id = ?", a.ID).Delete(&model.AssessmentQuestion{}).Error; err != nil {
			return err
		}
		for i := range questions {
			questions[i].AssessmentID = a.ID
		}
		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return err
			}
		}
		a.Questions = questions
		return nil
	})
}

func ToQuizAssessment(a *model.Assessment) quiz.Assessment {
	qa := quiz.Assessment{
		ID:              a.ID,
		Title:           a.Title,
		CourseID:        a.CourseID,
		DurationMinutes: a.DurationMinutes,
		PassingScore:    a.PassingScore,
		MaxAttempts:     a.MaxAttempts,
		AvailableFrom:   a.AvailableFrom,
		AvailableUntil:  a.AvailableUntil,
		Questions:       make([]quiz.Question, 0, len(a.Questions)),
	}
	for _, q := range a.Questions {
		qa.Questions = append(qa.Questions, quiz.Question{
			ID:             q.ID,
			Prompt:         q.Prompt,
			Kind:           quiz.Kind(q.Kind),
			Options:        []string(q.Options),
			CorrectOption:  q.CorrectOption,
			ExpectedAnswer: q.ExpectedAnswer,
			Points:         q.Points,
		})
	}
	return qa
}
