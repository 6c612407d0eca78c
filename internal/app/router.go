package app

import (
	"proofly_backend/docs"
	"proofly_backend/internal/config"
	"proofly_backend/internal/middleware"
	"proofly_backend/internal/model"
	"proofly_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c, repos)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerReviewerRoutes(authGroup, c)
		a.registerRecruiterRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers, repos *repositories) {
	public := router.Group("/api")
	public.Use(middleware.ActivityMiddleware(repos.user))
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)

		// 回执和作品集可公开分享，登录后可见私有内容
		public.GET("/receipts/:id", middleware.TryAuthMiddleware(a.Config), c.receipt.Get)
		public.GET("/portfolio/:id", middleware.TryAuthMiddleware(a.Config), c.portfolio.Get)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)

	// 任务模板与变体
	rg.GET("/tasks/templates", c.task.ListTemplates)
	rg.POST("/tasks/templates/:id/variants", middleware.RoleMiddleware(model.Student), c.task.StartVariant)
	rg.GET("/tasks/variants/:id", c.task.GetVariant)

	// 提交与申诉
	rg.POST("/submissions", middleware.RoleMiddleware(model.Student), c.review.Submit)
	rg.GET("/submissions/:id", c.review.GetSubmission)
	rg.POST("/submissions/:id/explanation", middleware.RoleMiddleware(model.Student), c.review.AddExplanation)
	rg.POST("/submissions/:id/appeal", middleware.RoleMiddleware(model.Student), c.review.Appeal)

	// 信任分
	rg.GET("/trust/score", c.trust.GetScore)
	rg.GET("/trust/center", c.trust.TrustCenter)

	// 技能回执
	rg.GET("/receipts", middleware.RoleMiddleware(model.Student), c.receipt.ListMine)

	// 答辩(学生作答,评审员推进)
	rg.GET("/defense-sessions/:id", c.defense.Get)
}

func (a *App) registerReviewerRoutes(rg *gin.RouterGroup, c *controllers) {
	reviewer := rg.Group("/")
	reviewer.Use(middleware.RoleMiddleware(model.Reviewer))
	{
		reviewer.GET("/reviewer/queue", c.review.ReviewQueue)
		reviewer.POST("/submissions/:id/evaluation", c.review.RecordEvaluation)
		reviewer.POST("/submissions/:id/decision", c.review.Decide)
		reviewer.GET("/submissions/:id/decisions", c.review.DecisionLog)

		reviewer.POST("/defense-sessions/:id/start", c.defense.Start)
		reviewer.POST("/defense-sessions/:id/advance", c.defense.Advance)
		reviewer.POST("/defense-sessions/:id/complete", c.defense.Complete)

		reviewer.POST("/receipts/:id/annotations", c.receipt.Annotate)
		reviewer.POST("/tasks/templates", c.task.CreateTemplate)
		reviewer.PUT("/tasks/templates/:id/active", c.task.SetTemplateActive)
	}
}

func (a *App) registerRecruiterRoutes(rg *gin.RouterGroup, c *controllers) {
	recruiter := rg.Group("/")
	recruiter.Use(middleware.RoleMiddleware(model.Recruiter))
	{
		recruiter.GET("/recruiter/candidates", c.portfolio.Candidates)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.POST("/trust/:id/recompute", c.trust.Recompute)
	}
}
