package controller

import (
	"errors"
	"net/http"
	"school_dashboard_backend/internal/quiz"
	"school_dashboard_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// respondError 把领域错误映射为统一响应
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, quiz.ErrNotFound), errors.Is(err, util.ErrAttemptNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, quiz.ErrAttemptLimitExceeded),
		errors.Is(err, quiz.ErrAssessmentNotYetAvailable),
		errors.Is(err, quiz.ErrAssessmentClosed):
		util.ForbiddenWithReason(ctx, err.Error())
	case errors.Is(err, quiz.ErrInvalidState), errors.Is(err, util.ErrAssessmentLocked):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, quiz.ErrInvalidDuration), errors.Is(err, quiz.ErrUnknownQuestion),
		errors.Is(err, util.ErrInvalidAssessment):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, quiz.ErrPersistence):
		util.Error(ctx, http.StatusServiceUnavailable, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
