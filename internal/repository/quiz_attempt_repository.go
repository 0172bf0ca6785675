package repository

import (
	"context"
	"errors"
	"school_dashboard_backend/internal/model"
	"school_dashboard_backend/internal/quiz"

	"gorm.io/gorm"
)

// QuizAttemptRepository 作答记录仓储，实现 quiz.Repository
type QuizAttemptRepository struct {
	DB *gorm.DB
}

func NewQuizAttemptRepository(db *gorm.DB) *QuizAttemptRepository {
	return &QuizAttemptRepository{DB: db}
}

func answerOrder(db *gorm.DB) *gorm.DB {
	return db.Order("id asc")
}

// SaveAttempt 按 ID 创建或覆盖作答及其每题结果
func (r *QuizAttemptRepository) SaveAttempt(ctx context.Context, attempt quiz.Attempt) (quiz.Attempt, error) {
	row, answers := fromQuizAttempt(attempt)

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.QuizAttempt
		err := tx.Unscoped().Select("id", "created_at").Where("id = ?", row.ID).Take(&existing).Error
		switch {
		case err == nil:
			row.CreatedAt = existing.CreatedAt
			if err := tx.Unscoped().Omit("Answers").Save(row).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Omit("Answers").Create(row).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if err := tx.Unscoped().Where("attempt_id = ?", row.ID).Delete(&model.QuizAttemptAnswer{}).Error; err != nil {
			return err
		}
		if len(answers) > 0 {
			return tx.Create(&answers).Error
		}
		return nil
	})
	if err != nil {
		return quiz.Attempt{}, err
	}
	return attempt, nil
}

// ListAttemptsByAssessment 按提交时间倒序
func (r *QuizAttemptRepository) ListAttemptsByAssessment(ctx context.Context, assessmentID string) ([]quiz.Attempt, error) {
	var rows []model.QuizAttempt
	err := r.DB.WithContext(ctx).
		Preload("Answers", answerOrder).
		Where("assessment_id = ?", assessmentID).
		Order("submitted_at desc").Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toQuizAttempts(rows), nil
}

// ListAttemptsByExaminee assessmentID 为空时返回该考生全部作答
func (r *QuizAttemptRepository) ListAttemptsByExaminee(ctx context.Context, examineeID, assessmentID string) ([]quiz.Attempt, error) {
	var rows []model.QuizAttempt
	query := r.DB.WithContext(ctx).Preload("Answers", answerOrder).Where("examinee_id = ?", examineeID)
	if assessmentID != "" {
		query = query.Where("assessment_id = ?", assessmentID)
	}
	if err := query.Order("submitted_at desc").Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toQuizAttempts(rows), nil
}

func (r *QuizAttemptRepository) FindAttemptByID(ctx context.Context, id string) (quiz.Attempt, error) {
	var row model.QuizAttempt
	err := r.DB.WithContext(ctx).Preload("Answers", answerOrder).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return quiz.Attempt{}, quiz.ErrNotFound
	}
	if err != nil {
		return quiz.Attempt{}, err
	}
	return toQuizAttempt(row), nil
}

func (r *QuizAttemptRepository) CountByAssessment(ctx context.Context, assessmentID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.QuizAttempt{}).Where("assessment_id = ?", assessmentID).Count(&count).Error
	return count, err
}

func fromQuizAttempt(a quiz.Attempt) (*model.QuizAttempt, []model.QuizAttemptAnswer) {
	row := &model.QuizAttempt{
		AssessmentID:   a.AssessmentID,
		ExamineeID:     a.ExamineeID,
		State:          string(a.State),
		Trigger:        string(a.Trigger),
		ElapsedSeconds: a.ElapsedSeconds,
		Score:          a.Score,
		StartedAt:      a.StartedAt,
		SubmittedAt:    a.SubmittedAt,
	}
	row.ID = a.ID

	var answers []model.QuizAttemptAnswer
	if a.Result != nil {
		row.EarnedPoints = a.Result.EarnedPoints
		row.TotalPoints = a.Result.TotalPoints
		for _, qr := range a.Result.PerQuestion {
			answers = append(answers, model.QuizAttemptAnswer{
				AttemptID:      a.ID,
				QuestionID:     qr.QuestionID,
				Kind:           string(qr.Kind),
				Answer:         qr.Answer,
				IsCorrect:      qr.Correct,
				PointsEarned:   qr.PointsEarned,
				PointsPossible: qr.PointsPossible,
			})
		}
		return row, answers
	}

	for qid, v := range a.Answers {
		answers = append(answers, model.QuizAttemptAnswer{AttemptID: a.ID, QuestionID: qid, Answer: v})
	}
	return row, answers
}

func toQuizAttempt(row model.QuizAttempt) quiz.Attempt {
	a := quiz.Attempt{
		ID:             row.ID,
		AssessmentID:   row.AssessmentID,
		ExamineeID:     row.ExamineeID,
		State:          quiz.State(row.State),
		Trigger:        quiz.Trigger(row.Trigger),
		Answers:        make(map[string]string, len(row.Answers)),
		ElapsedSeconds: row.ElapsedSeconds,
		Score:          row.Score,
		StartedAt:      row.StartedAt,
		SubmittedAt:    row.SubmittedAt,
	}

	res := quiz.Result{
		EarnedPoints: row.EarnedPoints,
		TotalPoints:  row.TotalPoints,
		PerQuestion:  make([]quiz.QuestionResult, 0, len(row.Answers)),
	}
	if row.Score != nil {
		res.Percentage = *row.Score
	}
	for _, ans := range row.Answers {
		a.Answers[ans.QuestionID] = ans.Answer
		res.PerQuestion = append(res.PerQuestion, quiz.QuestionResult{
			QuestionID:     ans.QuestionID,
			Kind:           quiz.Kind(ans.Kind),
			Answer:         ans.Answer,
			Correct:        ans.IsCorrect,
			PointsEarned:   ans.PointsEarned,
			PointsPossible: ans.PointsPossible,
		})
	}
	if a.State == quiz.StateSubmitted {
		a.Result = &res
	}
	return a
}

func toQuizAttempts(rows []model.QuizAttempt) []quiz.Attempt {
	out := make([]quiz.Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, toQuizAttempt(row))
	}
	return out
}
