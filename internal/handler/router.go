package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutoring-center-api/internal/middleware"
	"github.com/noah-isme/tutoring-center-api/internal/models"
)

// Handlers bundles every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth       *AuthHandler
	Students   *StudentHandler
	Attendance *AttendanceHandler
	Payments   *PaymentHandler
	Grades     *GradeHandler
	Media      *MediaHandler
	Parents    *ParentHandler
	Dashboard  *DashboardHandler
	Reports    *ReportHandler
}

// RegisterRoutes mounts the API on api. Signed download links are public; every
// other route needs a bearer token, and mutations are admin-only.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, auth gin.HandlerFunc) {
	admin := middleware.RequireRoles(models.RoleAdmin)
	ownStudent := middleware.RequireRolesOrLinkedStudent("id", models.RoleAdmin)

	api.POST("/auth/login", h.Auth.Login)
	api.GET("/books/:id/download", h.Media.Download)
	api.GET("/reports/:id/download", h.Reports.Download)

	private := api.Group("", auth)
	private.GET("/auth/me", h.Auth.Me)

	students := private.Group("/students")
	students.GET("", admin, h.Students.List)
	students.POST("", admin, h.Students.Create)
	students.GET("/:id", ownStudent, h.Students.Get)
	students.PUT("/:id", admin, h.Students.Update)
	students.DELETE("/:id", admin, h.Students.Delete)
	students.GET("/:id/qr", ownStudent, h.Students.QRCode)
	students.GET("/:id/attendance", ownStudent, h.Students.Attendance)
	students.GET("/:id/coverage", ownStudent, h.Students.Coverage)

	attendance := private.Group("/attendance", admin)
	attendance.GET("", h.Attendance.List)
	attendance.POST("/code", h.Attendance.RecordCode)
	attendance.POST("/absence", h.Attendance.RecordAbsence)
	attendance.POST("/scan", h.Attendance.Scan)
	attendance.DELETE("/scan/:deviceId", h.Attendance.CancelScan)
	attendance.DELETE("/:id", h.Attendance.Delete)

	payments := private.Group("/payments", admin)
	payments.GET("", h.Payments.List)
	payments.POST("", h.Payments.Record)
	payments.DELETE("", h.Payments.DeleteAll)
	payments.GET("/student/:studentId", h.Payments.ByStudent)
	payments.POST("/reset/confirmation", h.Payments.RequestReset)
	payments.DELETE("/:id", h.Payments.Delete)

	grades := private.Group("/grades")
	grades.GET("", h.Grades.List)
	grades.POST("", admin, h.Grades.Create)
	grades.PUT("/:id", admin, h.Grades.Update)
	grades.DELETE("/:id", admin, h.Grades.Delete)

	private.GET("/videos", h.Media.ListVideos)
	private.POST("/videos", admin, h.Media.CreateVideo)
	private.DELETE("/videos/:id", admin, h.Media.DeleteVideo)
	private.GET("/books", h.Media.ListBooks)
	private.POST("/books", admin, h.Media.UploadBook)
	private.DELETE("/books/:id", admin, h.Media.DeleteBook)
	private.GET("/books/:id/download-url", h.Media.DownloadURL)

	parents := private.Group("/parents")
	parents.GET("/me/overview", middleware.RequireRoles(models.RoleParent), h.Parents.Overview)
	parents.GET("", admin, h.Parents.List)
	parents.POST("", admin, h.Parents.Create)
	parents.DELETE("/:id", admin, h.Parents.Delete)

	private.GET("/dashboard", admin, middleware.ResponseMeta(), h.Dashboard.Summary)

	reports := private.Group("/reports", admin)
	reports.POST("", h.Reports.Create)
	reports.GET("/:id", h.Reports.Status)
}
