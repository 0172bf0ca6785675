package app

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"school_dashboard_backend/internal/config"
	"school_dashboard_backend/internal/controller"
	"school_dashboard_backend/internal/repository"
	"school_dashboard_backend/internal/service"
	"school_dashboard_backend/pkg/configwatcher"
	"school_dashboard_backend/pkg/database"
	"school_dashboard_backend/pkg/logger"
	"school_dashboard_backend/pkg/monitoring"
	"school_dashboard_backend/pkg/security"
	"school_dashboard_backend/pkg/tracing"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigFile      string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []configwatcher.Reloader
}

type repositories struct {
	user       *repository.UserRepository
	assessment *repository.AssessmentRepository
	attempt    *repository.QuizAttemptRepository
	draft      *repository.DraftRepository
}

type services struct {
	auth       *service.AuthService
	assessment *service.AssessmentService
	quiz       *service.QuizService
	archive    *service.ResultArchive
}

type controllers struct {
	auth       *controller.AuthController
	assessment *controller.AssessmentController
	quiz       *controller.QuizController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback configwatcher.Reloader) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	repos := &repositories{
		user:       repository.NewUserRepository(db),
		assessment: repository.NewAssessmentRepository(db),
		attempt:    repository.NewQuizAttemptRepository(db),
	}
	if rdb != nil {
		repos.draft = repository.NewDraftRepository(rdb)
	}
	return repos
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.assessment = service.NewAssessmentService(repos.assessment, repos.attempt)

	provider, err := service.NewStorageProvider(&cfg.Storage)
	if err != nil {
		logger.Log.Warn("result archive disabled", zap.Error(err))
	} else {
		if mp, ok := provider.(*service.MinioStorageProvider); ok {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := mp.EnsureBucket(ctx); err != nil {
				logger.Log.Warn("failed to prepare archive bucket", zap.Error(err))
			}
			cancel()
		}
		s.archive = service.NewResultArchive(provider)
	}

	// 接口字段不能接收 nil 指针
	var drafts service.DraftStore
	if repos.draft != nil {
		drafts = repos.draft
	}
	var archive service.ResultArchiver
	if s.archive != nil {
		archive = s.archive
	}
	s.quiz = service.NewQuizService(s.assessment, repos.attempt, drafts, archive, cfg.Quiz)
	s.assessment.Live = s.quiz
	a.RegisterConfigCallback(s.quiz.Reload)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		assessment: controller.NewAssessmentController(s.assessment, s.quiz),
		quiz:       controller.NewQuizController(s.quiz),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config, configFile string) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	app := &App{
		Config:     cfg,
		ConfigFile: configFile,
		DB:         db,
	}
	if cfg.MigrateOnly {
		return app
	}

	// Redis 只用于保存作答草稿，不可用时降级运行
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, answer drafts disabled", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("school-dashboard", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/archive", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 配置文件热更新
	if a.ConfigFile != "" {
		watcher := configwatcher.New(a.ConfigFile, a.configCallbacks...)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Log.Error("config watcher stopped", zap.Error(err))
			}
		}()
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.services != nil && a.services.quiz != nil {
		logger.Log.Info("in-progress attempts dropped on shutdown", zap.Int("count", a.services.quiz.ActiveCount()))
	}

	logger.Log.Info("Server exiting")
}

// ConfigPath 配置目录下的配置文件
func ConfigPath(dir string) string {
	return filepath.Join(dir, "config.yaml")
}
