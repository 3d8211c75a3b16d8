package router

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/cuongbtq/scan-service/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	clientHandler := handler.NewClientHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	r.GET("/health", clientHandler.Health)
	r.GET("/test-connection", clientHandler.TestConnection)
	r.GET("/queue-status", clientHandler.QueueStatus)
	r.POST("/submit-client", clientHandler.SubmitClient)

	jobs := r.Group("/jobs")
	{
		// GET /jobs?status=parked&limit=20
		jobs.GET("", jobHandler.ListJobs)

		// POST /jobs/:job_id/redeliver - resend a parked job's report
		jobs.POST("/:job_id/redeliver", jobHandler.Redeliver)
	}

	return r
}

// useJSONFieldNames makes validation errors report json field names
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}
