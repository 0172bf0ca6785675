package quiz

import "errors"

// 使用错误：调用方在错误的生命周期阶段调用了操作，不可重试
var (
	ErrInvalidState    = errors.New("operation not allowed in current attempt state")
	ErrInvalidDuration = errors.New("duration must be a positive number of minutes")
	ErrUnknownQuestion = errors.New("question does not belong to this assessment")
)

// 业务规则拒绝：在创建 Attempt 之前返回给考生
var (
	ErrAttemptLimitExceeded      = errors.New("attempt limit exceeded")
	ErrAssessmentNotYetAvailable = errors.New("assessment not yet available")
	ErrAssessmentClosed          = errors.New("assessment no longer available")
)

var (
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("attempt could not be persisted")
)
