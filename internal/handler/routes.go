package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/campusflow/lms-api/internal/middleware"
	"github.com/campusflow/lms-api/internal/models"
	"github.com/campusflow/lms-api/internal/repository"
	"github.com/campusflow/lms-api/internal/service"
	"github.com/campusflow/lms-api/pkg/config"
)

// Handlers bundles every handler the router mounts.
type Handlers struct {
	Auth        *AuthHandler
	Catalog     *CatalogHandler
	Courses     *CourseHandler
	Requests    *RequestHandler
	Groups      *GroupHandler
	Materials   *MaterialHandler
	Assignments *AssignmentHandler
	Solutions   *SolutionHandler
	Progress    *ProgressHandler
	Reports     *ReportHandler
	Users       *UserHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts the API under cfg.APIPrefix. Authentication is a JWT
// middleware on the whole prefix except login/refresh and the signed file
// download, whose token carries its own authorization.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, h Handlers, auth *service.AuthService, auditRepo *repository.UserRepository) {
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	admin := middleware.RequireRoles(models.RoleAdmin)

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.GET("/files/download", middleware.OptionalJWT(auth), h.Assignments.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(auth), middleware.WithResponseMeta())

	authed.POST("/auth/logout", h.Auth.Logout)
	authed.PUT("/auth/password", h.Auth.ChangePassword)
	authed.GET("/auth/me", h.Auth.Me)

	authed.GET("/catalog/statuses", h.Catalog.Catalog)
	authed.DELETE("/catalog/statuses/cache", admin, h.Catalog.Invalidate)

	authed.GET("/courses", h.Courses.List)
	authed.GET("/courses/:id", h.Courses.Get)
	authed.POST("/courses", staff, h.Courses.Create)
	authed.GET("/courses/:id/materials", h.Materials.ListByCourse)
	authed.GET("/courses/:id/assignments", h.Assignments.ListByCourse)
	authed.GET("/courses/:id/groups", h.Groups.ListByCourse)

	authed.GET("/materials/:id", h.Materials.Get)
	authed.POST("/materials", staff, h.Materials.Create)

	authed.GET("/assignments/:id", h.Assignments.Get)
	authed.POST("/assignments", staff, h.Assignments.Create)
	authed.GET("/assignments/:id/files", h.Assignments.ListFiles)
	authed.POST("/assignments/:id/files", staff, h.Assignments.UploadFile)
	authed.GET("/assignments/:id/solutions", staff, h.Solutions.ListByAssignment)
	authed.GET("/files/:id/url", h.Assignments.DownloadURL)

	authed.GET("/requests", staff, h.Requests.List)
	authed.GET("/requests/drafts", staff, h.Requests.Drafts)
	authed.POST("/requests", h.Requests.Create)
	authed.GET("/requests/:id", h.Requests.Get)
	authed.PUT("/requests/:id/status", staff, h.Requests.SetStatus)
	authed.POST("/requests/:id/withdraw", h.Requests.Withdraw)
	authed.PUT("/requests/:id/group", staff, h.Requests.AssignGroup)
	authed.DELETE("/requests/:id/group", staff, h.Requests.RemoveGroup)
	authed.PUT("/requests/:id/comment", staff, h.Requests.SetComment)
	authed.DELETE("/requests/:id", staff, middleware.Audit(auditRepo, "request.delete", "request"), h.Requests.Delete)
	authed.PUT("/requests/:id/draft", staff, h.Requests.StageDraft)
	authed.POST("/requests/:id/draft/commit", staff, h.Requests.CommitDraft)
	authed.DELETE("/requests/:id/draft", staff, h.Requests.DiscardDraft)

	authed.POST("/groups", staff, h.Groups.Create)
	authed.DELETE("/groups/:id", staff, h.Groups.Delete)
	authed.GET("/groups/:id/capacity", h.Groups.Capacity)
	authed.GET("/groups/:id/members", staff, h.Groups.Members)

	authed.POST("/solutions", h.Solutions.Submit)
	authed.PUT("/solutions/:id/grade", staff, h.Solutions.Grade)

	authed.GET("/students/:studentId/courses", h.Requests.StudentCourses)
	authed.GET("/students/:studentId/courses/:courseId/solutions", h.Solutions.ListByStudentAndCourse)
	authed.GET("/students/:studentId/courses/:courseId/progress", h.Progress.Get)
	authed.POST("/students/:studentId/courses/:courseId/progress/steps", h.Progress.MarkStep)
	authed.PUT("/students/:studentId/courses/:courseId/progress/status", staff, h.Progress.SetLearningStatus)

	if cfg.Reports.Enabled {
		authed.GET("/reports/groups/:id/progress", staff, h.Reports.GroupProgress)
		authed.GET("/reports/groups/:id/progress.csv", staff, h.Reports.ExportCSV)
		authed.GET("/reports/groups/:id/progress.pdf", staff, h.Reports.ExportPDF)
	}

	authed.GET("/metrics/summary", admin, h.Metrics.Summary)

	authed.GET("/users", admin, h.Users.List)
	authed.GET("/users/:id", middleware.RBAC("ADMIN", "SELF"), h.Users.Get)
	authed.POST("/users", admin, middleware.Audit(auditRepo, "user.create", "user"), h.Users.Create)
	authed.PUT("/users/:id/active", admin, h.Users.SetActive)
}
