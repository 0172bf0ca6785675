package controller

import (
	"io"
	"net/http"
	"school_dashboard_backend/internal/model"
	"school_dashboard_backend/internal/quiz"
	"school_dashboard_backend/internal/service"
	"school_dashboard_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	Service   *service.QuizService
	Heartbeat time.Duration
}

func NewQuizController(svc *service.QuizService) *QuizController {
	return &QuizController{Service: svc, Heartbeat: 15 * time.Second}
}

type AnswerReq struct {
	Value string `json:"value"`
}

type NavigateReq struct {
	Index *int `json:"index" binding:"required"`
}

func isPrivileged(user *util.Claims) bool {
	return user.Role == model.Teacher || user.Role == model.Admin
}

// @Summary 开始作答
// @Description 已有进行中的作答时返回该作答（resumed=true）
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 201 {object} util.Response{data=service.AttemptView}
// @Success 200 {object} util.Response{data=service.AttemptView} "恢复进行中的作答"
// @Failure 403 {object} util.Response "次数用尽或不在开放时间内"
// @Failure 404 {object} util.Response
// @Router /api/assessments/{id}/attempts [post]
func (c *QuizController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.Service.Start(ctx.Request.Context(), user.ExamineeID(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	if view.Resumed {
		util.Success(ctx, view)
		return
	}
	util.Created(ctx, view)
}

// @Summary 作答详情
// @Description 作答中返回剩余时间与进度，提交后返回每题结果
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptView}
// @Router /api/attempts/{id} [get]
func (c *QuizController) GetAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.Service.GetAttempt(ctx.Request.Context(), user.ExamineeID(), ctx.Param("id"), isPrivileged(user))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 保存答案
// @Tags 作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Param questionId path string true "题目ID"
// @Param body body AnswerReq true "答案"
// @Success 200 {object} util.Response{data=quiz.Progress}
// @Failure 409 {object} util.Response "作答已提交"
// @Router /api/attempts/{id}/answers/{questionId} [put]
func (c *QuizController) Answer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req AnswerReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	progress, err := c.Service.Answer(user.ExamineeID(), ctx.Param("id"), ctx.Param("questionId"), req.Value)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary 切换题目
// @Tags 作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Param body body NavigateReq true "题目序号，从 0 开始"
// @Success 200 {object} util.Response{data=quiz.Progress}
// @Router /api/attempts/{id}/navigate [post]
func (c *QuizController) Navigate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req NavigateReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	progress, err := c.Service.Navigate(user.ExamineeID(), ctx.Param("id"), *req.Index)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary 提交作答
// @Description 重复提交返回第一次的结果。persistStatus 为 failed 时结果未能保存
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptView}
// @Router /api/attempts/{id}/submit [post]
func (c *QuizController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.Service.Submit(ctx.Request.Context(), user.ExamineeID(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 倒计时事件流
// @Description Server-Sent Events：state、tick、expired、submitted、ping。EventSource 可用 ?token= 传递令牌
// @Tags 作答
// @Produce text/event-stream
// @Security BearerAuth
// @Param id path string true "作答ID"
// @Router /api/attempts/{id}/events [get]
func (c *QuizController) Events(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	attemptID := ctx.Param("id")

	events, cancel, err := c.Service.Subscribe(user.ExamineeID(), attemptID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	defer cancel()

	view, err := c.Service.GetAttempt(ctx.Request.Context(), user.ExamineeID(), attemptID, false)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.Status(http.StatusOK)
	ctx.SSEvent("state", view)
	if view.State == quiz.StateSubmitted {
		ctx.Writer.Flush()
		return
	}

	heartbeat := time.NewTicker(c.Heartbeat)
	defer heartbeat.Stop()

	ctx.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Request.Context().Done():
			return false
		case ev := <-events:
			ctx.SSEvent(string(ev.Kind), ev)
			return ev.Kind != service.StreamSubmitted
		case <-heartbeat.C:
			ctx.SSEvent("ping", gin.H{"at": time.Now().Unix()})
			return true
		}
	})
}

// @Summary 我的作答记录
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param assessmentId query string false "测验ID"
// @Success 200 {object} util.Response
// @Router /api/me/attempts [get]
func (c *QuizController) ListMyAttempts(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	attempts, err := c.Service.ListMyAttempts(ctx.Request.Context(), user.ExamineeID(), ctx.Query("assessmentId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"items": attempts, "total": len(attempts)})
}
