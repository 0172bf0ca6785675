package quiz

// DefaultPassingScore 测验未配置及格线时使用的系统默认值（百分比）
const DefaultPassingScore = 60.0

type QuestionResult struct {
	QuestionID     string `json:"questionId"`
	Kind           Kind   `json:"kind"`
	Answer         string `json:"answer"`
	Correct        bool   `json:"correct"`
	PointsEarned   int    `json:"pointsEarned"`
	PointsPossible int    `json:"pointsPossible"`
}

type Result struct {
	Percentage   float64          `json:"percentage"`
	EarnedPoints int              `json:"earnedPoints"`
	TotalPoints  int              `json:"totalPoints"`
	PerQuestion  []QuestionResult `json:"perQuestion"`
}

// Score 计算得分百分比及每题结果。未作答视为空字符串；总分为 0 时百分比为 0。
// 非正分值的题目按 0 分计入，保证结果落在 [0, 100]。
func Score(questions []Question, answers map[string]string) Result {
	res := Result{PerQuestion: make([]QuestionResult, 0, len(questions))}

	for _, q := range questions {
		points := q.Points
		if points < 0 {
			points = 0
		}
		answer := answers[q.ID]

		qr := QuestionResult{
			QuestionID:     q.ID,
			Kind:           q.Kind,
			Answer:         answer,
			PointsPossible: points,
		}

		qr.Correct = q.IsCorrect(answer)
		if qr.Correct {
			qr.PointsEarned = points
			res.EarnedPoints += points
		}
		res.TotalPoints += points
		res.PerQuestion = append(res.PerQuestion, qr)
	}

	if res.TotalPoints > 0 {
		res.Percentage = 100 * float64(res.EarnedPoints) / float64(res.TotalPoints)
	}
	return res
}

// PassedWithDefault 百分比不低于及格线即通过，passingScore 为 nil 时用 fallback
func PassedWithDefault(percentage float64, passingScore *float64, fallback float64) bool {
	threshold := fallback
	if passingScore != nil {
		threshold = *passingScore
	}
	return percentage >= threshold
}
