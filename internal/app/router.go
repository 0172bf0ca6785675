package app

import (
	"school_dashboard_backend/docs"
	"school_dashboard_backend/internal/config"
	"school_dashboard_backend/internal/middleware"
	"school_dashboard_backend/internal/model"
	"school_dashboard_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerTeacherRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/assessments", c.assessment.ListAssessments)
	group.GET("/assessments/:id", c.assessment.GetStudentAssessment)
	group.POST("/assessments/:id/attempts", c.quiz.StartAttempt)

	attempts := group.Group("/attempts")
	{
		attempts.GET("/:id", c.quiz.GetAttempt)
		attempts.PUT("/:id/answers/:questionId", c.quiz.Answer)
		attempts.POST("/:id/navigate", c.quiz.Navigate)
		attempts.POST("/:id/submit", c.quiz.Submit)
		attempts.GET("/:id/events", c.quiz.Events)
	}

	group.GET("/me/attempts", c.quiz.ListMyAttempts)
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.GET("/assessments", c.assessment.ListAllAssessments)
		teacher.POST("/assessments", c.assessment.CreateAssessment)
		teacher.GET("/assessments/:id", c.assessment.GetAssessment)
		teacher.PUT("/assessments/:id", c.assessment.UpdateAssessment)
		teacher.GET("/assessments/:id/attempts", c.assessment.ListAttempts)
	}
}
