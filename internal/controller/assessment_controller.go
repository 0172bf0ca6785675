package controller

import (
	"school_dashboard_backend/internal/service"
	"school_dashboard_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AssessmentController struct {
	Service     *service.AssessmentService
	QuizService *service.QuizService
}

func NewAssessmentController(svc *service.AssessmentService, quizSvc *service.QuizService) *AssessmentController {
	return &AssessmentController{Service: svc, QuizService: quizSvc}
}

// @Summary 创建测验
// @Tags 测验管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.AssessmentReq true "测验信息"
// @Success 201 {object} util.Response{data=model.Assessment}
// @Failure 400 {object} util.Response
// @Router /api/teacher/assessments [post]
func (c *AssessmentController) CreateAssessment(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.AssessmentReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.Service.CreateAssessment(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Created(ctx, a)
}

// @Summary 更新测验
// @Description 已有学生作答的测验只能修改发布状态
// @Tags 测验管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param body body service.AssessmentReq true "测验信息"
// @Success 200 {object} util.Response{data=model.Assessment}
// @Failure 409 {object} util.Response "测验已被作答"
// @Router /api/teacher/assessments/{id} [put]
func (c *AssessmentController) UpdateAssessment(ctx *gin.Context) {
	var req service.AssessmentReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.Service.UpdateAssessment(ctx.Request.Context(), ctx.Param("id"), req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, a)
}

// @Summary 获取测验详情（含答案）
// @Tags 测验管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response{data=model.Assessment}
// @Router /api/teacher/assessments/{id} [get]
func (c *AssessmentController) GetAssessment(ctx *gin.Context) {
	a, err := c.Service.GetAssessment(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// @Summary 测验列表（教师）
// @Tags 测验管理
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/teacher/assessments [get]
func (c *AssessmentController) ListAllAssessments(ctx *gin.Context) {
	c.list(ctx, false)
}

// @Summary 已发布的测验列表
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/assessments [get]
func (c *AssessmentController) ListAssessments(ctx *gin.Context) {
	c.list(ctx, true)
}

func (c *AssessmentController) list(ctx *gin.Context, publishedOnly bool) {
	page, limit := util.ParsePage(ctx.Query("page"), ctx.Query("limit"))

	items, total, err := c.Service.ListAssessments(ctx.Request.Context(), page, limit, publishedOnly)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: items, Total: total, Page: page, Limit: limit})
}

// @Summary 学生查看测验（不含答案）
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response{data=service.StudentAssessmentView}
// @Router /api/assessments/{id} [get]
func (c *AssessmentController) GetStudentAssessment(ctx *gin.Context) {
	view, err := c.Service.GetStudentView(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 测验的全部作答记录
// @Tags 测验管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments/{id}/attempts [get]
func (c *AssessmentController) ListAttempts(ctx *gin.Context) {
	attempts, err := c.QuizService.ListAssessmentAttempts(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"items": attempts, "total": len(attempts)})
}
