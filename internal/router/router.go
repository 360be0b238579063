package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Attempt    *handler.AttemptHandler
	Proctoring *handler.ProctoringHandler
	Review     *handler.ReviewHandler
	Exam       *handler.ExamHandler
	WS         *handler.WSHandler
	Monitor    *handler.MonitorHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the background cleanup of the rate limiters.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)
	router.GET("/health/ready", handlers.System.Ready)

	// Client-reported events arrive in bursts; cap them per student.
	eventLimiter := middleware.NewRateLimiter(ctx, cfg.EventRatePerMinute, time.Minute, middleware.ByUser)

	// ─── 1. Student Group (JWT, never cached) ──────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.NoStore(),
	)
	{
		studentAPI.GET("/me", handlers.Auth.WhoAmI)
		studentAPI.POST("/exams/:exam_id/attempts", handlers.Attempt.StartAttempt)

		attempt := studentAPI.Group("/attempts/:attempt_id")
		attempt.GET("", handlers.Attempt.GetSession)
		attempt.POST("/resume", handlers.Attempt.ResumeAttempt)
		attempt.POST("/pause", handlers.Attempt.PauseAttempt)
		attempt.PUT("/answers/:question_id", handlers.Attempt.SaveAnswer)
		attempt.PATCH("/progress", handlers.Attempt.UpdateProgress)
		attempt.POST("/submit", handlers.Attempt.SubmitAttempt)
		attempt.GET("/result", handlers.Attempt.GetResult)

		proctoring := attempt.Group("", eventLimiter.Middleware())
		proctoring.POST("/events", handlers.Proctoring.LogEvent)
		proctoring.POST("/heartbeat", handlers.Proctoring.Heartbeat)
		proctoring.POST("/connection/lost", handlers.Proctoring.ConnectionLost)
		proctoring.POST("/connection/restored", handlers.Proctoring.ConnectionRestored)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Staff Group (JWT + RBAC) ───────────────────────────────────
	staffAPI := router.Group("/api/v1/staff")
	staffAPI.Use(middleware.RequireStaffJWT(authService))
	{
		staffAPI.GET("/me", handlers.Auth.WhoAmI)

		// Exams
		staffAPI.GET("/exams/:exam_id",
			middleware.RequireAnyPermission(model.PermissionExamsManage, model.PermissionAttemptsRead),
			handlers.Exam.GetExam,
		)
		staffAPI.POST("/exams/:exam_id/cache/refresh",
			middleware.RequirePermission(model.PermissionExamsManage),
			handlers.Exam.RefreshExamCache,
		)
		staffAPI.GET("/exams/:exam_id/monitor",
			middleware.RequirePermission(model.PermissionProctoringRead),
			handlers.Monitor.MonitorExamSSE,
		)

		// Intervention
		staffAPI.POST("/attempts/:attempt_id/terminate",
			middleware.RequirePermission(model.PermissionAttemptsTerminate),
			handlers.Review.TerminateAttempt,
		)
		staffAPI.POST("/attempts/:attempt_id/flag",
			middleware.RequirePermission(model.PermissionAttemptsTerminate),
			handlers.Review.FlagAttempt,
		)

		// Proctoring logs
		staffAPI.GET("/attempts/:attempt_id/proctoring",
			middleware.RequirePermission(model.PermissionProctoringRead),
			handlers.Proctoring.GetSessionStats,
		)
		staffAPI.GET("/attempts/:attempt_id/proctoring/events",
			middleware.RequirePermission(model.PermissionProctoringRead),
			handlers.Proctoring.ListEvents,
		)

		// Grading and results
		staffAPI.GET("/attempts/:attempt_id/result",
			middleware.RequireAnyPermission(model.PermissionAttemptsRead, model.PermissionResultsGrade),
			handlers.Review.GetResult,
		)
		staffAPI.POST("/attempts/:attempt_id/result/recompute",
			middleware.RequirePermission(model.PermissionResultsGrade),
			handlers.Review.RecomputeResult,
		)
		staffAPI.PUT("/answers/:answer_id/grade",
			middleware.RequirePermission(model.PermissionResultsGrade),
			handlers.Review.GradeAnswer,
		)
		staffAPI.POST("/results/publish",
			middleware.RequirePermission(model.PermissionResultsPublish),
			handlers.Review.PublishResults,
		)

		// System
		staffAPI.GET("/system/metrics",
			middleware.RequirePermission(model.PermissionProctoringRead),
			handlers.System.SystemMetricsSSE,
		)
	}

	return router
}
