package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/universityofengineers/sms-api/internal/handler"
	"github.com/universityofengineers/sms-api/internal/middleware"
	"github.com/universityofengineers/sms-api/internal/models"
	"github.com/universityofengineers/sms-api/internal/service"
	"github.com/universityofengineers/sms-api/pkg/config"
)

// Handlers bundles everything the route table mounts.
type Handlers struct {
	Auth        *handler.AuthHandler
	Departments *handler.DepartmentHandler
	Teachers    *handler.TeacherHandler
	Students    *handler.StudentHandler
	Courses     *handler.CourseHandler
	Enrollments *handler.EnrollmentHandler
	Metrics     *handler.MetricsHandler
}

// Register mounts the full route table on the engine.
func Register(r *gin.Engine, cfg *config.Config, authService *service.AuthService, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", middleware.JWT(authService), h.Auth.Logout)
	}

	authed := api.Group("", middleware.JWT(authService))

	teacherOnly := middleware.RequireRoles(models.RoleTeacher)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	departments := authed.Group("/departments")
	{
		departments.GET("", h.Departments.List)
		departments.GET("/:id", h.Departments.Get)
		departments.POST("", teacherOnly, h.Departments.Create)
		departments.PUT("/:id", teacherOnly, h.Departments.Update)
		departments.DELETE("/:id", teacherOnly, h.Departments.Delete)
	}

	teachers := authed.Group("/teachers", teacherOnly)
	{
		teachers.GET("", h.Teachers.List)
		teachers.GET("/me", h.Teachers.Me)
		teachers.PUT("/me", h.Teachers.UpdateMe)
		teachers.GET("/:id", h.Teachers.Get)
		teachers.POST("", h.Teachers.Create)
		teachers.PUT("/:id", h.Teachers.Update)
		teachers.PATCH("/:id/enabled", h.Teachers.SetEnabled)
		teachers.PATCH("/:id/password", h.Teachers.ResetPassword)
		teachers.DELETE("/:id", h.Teachers.Disable)
	}

	students := authed.Group("/students")
	{
		students.GET("/me", studentOnly, h.Students.Me)
		students.PUT("/me", studentOnly, h.Students.UpdateMe)
		students.GET("", teacherOnly, h.Students.List)
		students.GET("/:id", teacherOnly, h.Students.Get)
		students.POST("", teacherOnly, h.Students.Create)
		students.PUT("/:id", teacherOnly, h.Students.Update)
		students.PATCH("/:id/status", teacherOnly, h.Students.UpdateStatus)
		students.PATCH("/:id/password", teacherOnly, h.Students.ResetPassword)
		students.DELETE("/:id", teacherOnly, h.Students.Disable)
	}

	courses := authed.Group("/courses")
	{
		courses.GET("", h.Courses.List)
		courses.GET("/:id", h.Courses.Get)
		courses.POST("", teacherOnly, h.Courses.Create)
		courses.PUT("/:id", teacherOnly, h.Courses.Update)
		courses.DELETE("/:id", teacherOnly, h.Courses.Delete)
	}

	enrollments := authed.Group("/enrollments")
	{
		enrollments.GET("/me", studentOnly, h.Enrollments.MyEnrollments)
		enrollments.POST("/me", studentOnly, h.Enrollments.EnrollMe)
		enrollments.PATCH("/:id/drop", studentOnly, h.Enrollments.DropMine)
		enrollments.GET("", teacherOnly, h.Enrollments.ListAll)
		enrollments.POST("", teacherOnly, h.Enrollments.TeacherEnroll)
		enrollments.PATCH("/:id/grade", teacherOnly, h.Enrollments.SetGrade)
	}
}
