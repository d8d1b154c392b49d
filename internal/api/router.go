package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"realty/site/internal/api/handlers"
	"realty/site/internal/api/middleware"
	"realty/site/internal/auth"
	"realty/site/internal/captcha"
	"realty/site/internal/config"
	"realty/site/internal/email"
	"realty/site/internal/services"
	"realty/site/internal/storage"
)

// Dependencies are the services the public API is built from. ProjectService,
// ContentService, Storage and TaskClient are optional; their routes are skipped
// or answer 503 when nil.
type Dependencies struct {
	Inquiries      services.IInquiryStore
	ProjectService services.IProjectService
	ContentService services.IContentService
	Storage        storage.IS3Storage
	TaskClient     handlers.IAsynqClient
	Verifier       captcha.ITurnstileVerifier
}

// SetupRouter configures and returns the main Gin engine. The returned closer stops
// the rate limiter's background cleanup.
func SetupRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, func()) {
	verifier := deps.Verifier
	if verifier == nil {
		verifier = captcha.NewTurnstileVerifier(cfg)
	}

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Order matters: captcha status is read by the rate limiter.
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.CaptchaMiddleware(cfg, verifier))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	inquiryHandler := handlers.NewRestInquiryHandler(cfg, deps.Inquiries, deps.TaskClient)
	authHandler := handlers.NewRestAuthHandler(cfg, auth.NewAdminAuthenticator(cfg.AdminEmail, cfg.AdminPasswordHash))
	sessionHandler := handlers.NewAdminSessionHandler(deps.Inquiries, cfg.AllowedOrigins)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		v1.POST("/inquiry", rateLimiter.Limit(), inquiryHandler.CreateInquiry)
		v1.POST("/admin/login", rateLimiter.Limit(), authHandler.Login)

		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.GET("/inquiries", inquiryHandler.ListInquiries)
			adminRequired.POST("/inquiries/batch", inquiryHandler.BatchUpdateInquiries)
			adminRequired.GET("/inquiries/:id", inquiryHandler.GetInquiry)
			adminRequired.PATCH("/inquiries/:id", inquiryHandler.UpdateInquiry)
			adminRequired.DELETE("/inquiries/:id", inquiryHandler.DeleteInquiry)
			adminRequired.GET("/session", sessionHandler.Serve)
		}

		if deps.ProjectService != nil {
			projectHandler := handlers.NewRestProjectHandler(cfg, deps.ProjectService, deps.Storage, deps.TaskClient)
			v1.GET("/projects", rateLimiter.Limit(), projectHandler.ListProjects)
			v1.GET("/projects/:slug", rateLimiter.Limit(), projectHandler.GetProjectBySlug)

			adminRequired.POST("/projects", projectHandler.CreateProject)
			adminRequired.PATCH("/projects/:id", projectHandler.UpdateProject)
			adminRequired.DELETE("/projects/:id", projectHandler.DeleteProject)
			adminRequired.POST("/projects/:id/images/upload-url", projectHandler.GetUploadURL)
			adminRequired.POST("/projects/:id/images", projectHandler.ConfirmImageUpload)
			adminRequired.DELETE("/projects/:id/images", projectHandler.DeleteImage)
		} else {
			log.Println("Project routes disabled: no project service")
		}

		if deps.ContentService != nil {
			contentHandler := handlers.NewRestContentHandler(deps.ContentService)
			v1.GET("/content", rateLimiter.Limit(), contentHandler.GetPublicContent)

			adminRequired.GET("/content/:key", contentHandler.GetContent)
			adminRequired.PUT("/content/:key", contentHandler.SetContent)
			adminRequired.DELETE("/content/:key", contentHandler.DeleteContent)
		} else {
			log.Println("Content routes disabled: no content service")
		}
	}

	return r, rateLimiter.Close
}

// SetupServiceRouter configures and returns the service Gin engine. rdb may be nil,
// in which case getTestEmail is unavailable.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Println("Shutdown channel already signaled.")
			}
		case "getTestEmail":
			getTestEmail(c, rdb, req.Arguments)
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

// getTestEmail pops a mock email recorded by email.RedisSender. Arguments are
// [kind, address], where kind is inquiry_notify or inquiry_ack.
func getTestEmail(c *gin.Context, rdb *redis.Client, rawArgs json.RawMessage) {
	if rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Redis is not configured"})
		return
	}
	var args []string
	if err := json.Unmarshal(rawArgs, &args); err != nil || len(args) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
		return
	}
	redisKey := email.MockEmailKey(args[1], args[0])

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var emailJSON string
	found := false
	// Poll briefly; the worker may still be sending.
	for i := 0; i < 10; i++ {
		val, err := rdb.GetDel(ctx, redisKey).Result()
		if err == nil {
			emailJSON = val
			found = true
			break
		}
		if err != redis.Nil {
			log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
		return
	}

	var emailData map[string]interface{}
	if err := json.Unmarshal([]byte(emailJSON), &emailData); err != nil {
		log.Printf("Service API: Error unmarshalling email data from key %s: %v", redisKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})
}
