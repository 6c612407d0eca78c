package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proofly_backend/internal/config"
	"proofly_backend/internal/controller"
	"proofly_backend/internal/repository"
	"proofly_backend/internal/service"
	"proofly_backend/internal/util"
	"proofly_backend/pkg/database"
	"proofly_backend/pkg/logger"
	"proofly_backend/pkg/monitoring"
	"proofly_backend/pkg/security"
	"proofly_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	task       *repository.TaskRepository
	submission *repository.SubmissionRepository
	decision   *repository.DecisionRepository
	trust      *repository.TrustRepository
	defense    *repository.DefenseRepository
	receipt    *repository.ReceiptRepository
}

type services struct {
	auth      *service.AuthService
	storage   *service.StorageService
	task      *service.TaskService
	trust     *service.TrustService
	receipt   *service.ReceiptService
	defense   *service.DefenseService
	review    *service.ReviewService
	portfolio *service.PortfolioService
}

type controllers struct {
	auth      *controller.AuthController
	task      *controller.TaskController
	review    *controller.ReviewController
	defense   *controller.DefenseController
	trust     *controller.TrustController
	receipt   *controller.ReceiptController
	portfolio *controller.PortfolioController
	health    *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig pushes a reloaded configuration into the running engine.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Config = cfg
	if a.services != nil && a.services.trust != nil {
		a.services.trust.UpdateEngineConfig(cfg.Engine)
	}
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		task:       repository.NewTaskRepository(db),
		submission: repository.NewSubmissionRepository(db),
		decision:   repository.NewDecisionRepository(db),
		trust:      repository.NewTrustRepository(db),
		defense:    repository.NewDefenseRepository(db),
		receipt:    repository.NewReceiptRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	// 评审和答辩必须共用同一把提交级别的锁
	locks := util.NewKeyMutex()

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.task = service.NewTaskService(repos.task, nil)
	s.trust = service.NewTrustService(repos.trust, db, rdb, cfg.Engine)
	s.receipt = service.NewReceiptService(repos.receipt, repos.user, repos.task, s.storage, db, cfg.Engine)
	s.defense = service.NewDefenseService(repos.defense, repos.submission, s.receipt, s.trust, db, cfg.Engine, locks)
	s.review = service.NewReviewService(repos.submission, repos.decision, repos.task, s.trust, s.receipt, s.defense, db, cfg.Engine, locks)
	s.portfolio = service.NewPortfolioService(repos.user, repos.receipt, s.trust)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		task:      controller.NewTaskController(s.task),
		review:    controller.NewReviewController(s.review),
		defense:   controller.NewDefenseController(s.defense),
		trust:     controller.NewTrustController(s.trust),
		receipt:   controller.NewReceiptController(s.receipt),
		portfolio: controller.NewPortfolioController(s.portfolio),
		health:    controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 10000
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("trust-engine", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/exports", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
