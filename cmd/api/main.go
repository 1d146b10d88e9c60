package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/universityofengineers/sms-api/api/swagger"
	"github.com/universityofengineers/sms-api/internal/handler"
	"github.com/universityofengineers/sms-api/internal/middleware"
	"github.com/universityofengineers/sms-api/internal/repository"
	"github.com/universityofengineers/sms-api/internal/router"
	"github.com/universityofengineers/sms-api/internal/service"
	"github.com/universityofengineers/sms-api/pkg/cache"
	"github.com/universityofengineers/sms-api/pkg/config"
	"github.com/universityofengineers/sms-api/pkg/database"
	"github.com/universityofengineers/sms-api/pkg/logger"
	corsmiddleware "github.com/universityofengineers/sms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/universityofengineers/sms-api/pkg/middleware/requestid"
)

// @title University SMS API
// @version 1.0.0
// @description Student-management backend: departments, teachers, students, courses and enrollments
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	metricsService := service.NewMetricsService()

	// Redis is optional. Without it course reads just skip the cache.
	var cacheService *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, course cache disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Cache.CourseTTL, logr, true)
		}
	}

	accountRepo := repository.NewAccountRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	authService := service.NewAuthService(accountRepo, studentRepo, teacherRepo, departmentRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	departmentService := service.NewDepartmentService(departmentRepo, validate, logr)
	teacherService := service.NewTeacherService(teacherRepo, accountRepo, departmentRepo, validate, logr)
	studentService := service.NewStudentService(studentRepo, accountRepo, departmentRepo, validate, logr)
	courseService := service.NewCourseService(courseRepo, teacherRepo, departmentRepo, cacheService, cfg.Cache.CourseTTL, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, studentRepo, courseRepo, teacherRepo, metricsService, validate, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	router.Register(r, cfg, authService, router.Handlers{
		Auth:        handler.NewAuthHandler(authService),
		Departments: handler.NewDepartmentHandler(departmentService),
		Teachers:    handler.NewTeacherHandler(teacherService),
		Students:    handler.NewStudentHandler(studentService),
		Courses:     handler.NewCourseHandler(courseService),
		Enrollments: handler.NewEnrollmentHandler(enrollmentService),
		Metrics:     handler.NewMetricsHandler(metricsService),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
