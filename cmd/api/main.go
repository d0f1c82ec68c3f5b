package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"timesheet/internal/attendance"
	"timesheet/internal/auth"
	"timesheet/internal/config"
	"timesheet/internal/httpmiddleware"
	"timesheet/internal/metrics"
	"timesheet/internal/queue"
	"timesheet/internal/request"
	"timesheet/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(db.Client); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "timesheet:events")
	}

	loc := cfg.Location()
	attRepo := attendance.NewRepository(db.Client)
	att := attendance.NewService(attRepo, loc, cfg.StandardWorkMinutes, cfg.DefaultBreak)
	reqRepo := request.NewRepository(db.Client)
	requests := request.NewService(reqRepo, att, loc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Token issue sits at the identity-provider boundary; the directory that
	// decides who is an administrator lives outside this service.
	r.POST("/v1/auth/token", func(c *gin.Context) {
		var req struct {
			UserID string `json:"user_id" binding:"required"`
			Email  string `json:"email"`
			Role   string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Role != auth.RoleAdmin {
			req.Role = auth.RoleEmployee
		}

		tokens, err := auth.Issue(req.UserID, req.Email, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/clock-in", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		rec, err := att.ClockIn(c.Request.Context(), sess.UserID)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		metrics.ClockPunches.WithLabelValues("in").Inc()
		c.JSON(http.StatusCreated, rec)
	})

	authGroup.POST("/clock-out", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		rec, err := att.ClockOut(c.Request.Context(), sess.UserID)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		metrics.ClockPunches.WithLabelValues("out").Inc()
		publishSummary(c, q, sess.UserID, rec.Date)
		c.JSON(http.StatusOK, rec)
	})

	authGroup.GET("/attendance/today", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		rec, err := att.Today(c.Request.Context(), sess.UserID)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	authGroup.GET("/attendance", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		month := c.Query("month")
		if month == "" {
			month = time.Now().In(loc).Format("2006-01")
		}
		report, err := att.Month(c.Request.Context(), sess.UserID, month)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	// Summary reads prefer the worker-maintained cache and fall back to a
	// fresh computation, backfilling the cache for the next reader.
	authGroup.GET("/attendance/summary", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		month := c.Query("month")
		if month == "" {
			month = time.Now().In(loc).Format("2006-01")
		}
		if cached, err := redisClient.GetSummary(c.Request.Context(), sess.UserID, month); err == nil && cached != nil {
			c.Data(http.StatusOK, "application/json", cached)
			return
		}
		report, err := att.Month(c.Request.Context(), sess.UserID, month)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if payload, err := json.Marshal(report); err == nil {
			_ = redisClient.PutSummary(c.Request.Context(), sess.UserID, month, payload, cfg.SummaryCacheTTL)
		}
		c.JSON(http.StatusOK, report)
	})

	authGroup.GET("/attendance/months", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		months, err := att.YearMonths(c.Request.Context(), sess.UserID)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"months": months})
	})

	authGroup.GET("/settings", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		c.JSON(http.StatusOK, gin.H{
			"standard_work_minutes": att.StandardMinutes(c.Request.Context(), sess.UserID),
		})
	})

	authGroup.PUT("/settings", func(c *gin.Context) {
		var req struct {
			StandardWorkMinutes int `json:"standard_work_minutes" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess := auth.SessionFrom(c)
		if err := att.SaveStandardMinutes(c.Request.Context(), sess.UserID, req.StandardWorkMinutes); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"standard_work_minutes": req.StandardWorkMinutes})
	})

	authGroup.POST("/requests", func(c *gin.Context) {
		var body struct {
			AttendanceDate string  `json:"attendance_date" binding:"required"`
			ClockIn        *string `json:"clock_in"`
			ClockOut       *string `json:"clock_out"`
			BreakTime      *string `json:"break_time"`
			Comment        string  `json:"comment"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess := auth.SessionFrom(c)
		edits := request.Edits{ClockIn: body.ClockIn, ClockOut: body.ClockOut, BreakTime: body.BreakTime}
		created, err := requests.Submit(c.Request.Context(), sess, body.AttendanceDate, edits, body.Comment)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	authGroup.GET("/requests", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		list, err := requests.List(c.Request.Context(), sess, listFilter(c))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": list})
	})

	admin := authGroup.Group("/admin", auth.AdminOnly())

	admin.GET("/requests", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		list, err := requests.List(c.Request.Context(), sess, listFilter(c))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": list})
	})

	admin.POST("/requests/:id/approve", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		req, err := requests.Approve(c.Request.Context(), sess, c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		publishDecision(c, q, req)
		publishSummary(c, q, req.UserID, req.AttendanceDate)
		c.JSON(http.StatusOK, req)
	})

	admin.POST("/requests/:id/reject", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		req, err := requests.Reject(c.Request.Context(), sess, c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		publishDecision(c, q, req)
		publishSummary(c, q, req.UserID, req.AttendanceDate)
		c.JSON(http.StatusOK, req)
	})

	admin.POST("/requests/:id/reopen", func(c *gin.Context) {
		sess := auth.SessionFrom(c)
		req, err := requests.Reopen(c.Request.Context(), sess, c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		publishDecision(c, q, req)
		c.JSON(http.StatusOK, req)
	})

	admin.POST("/requests/bulk-approve", func(c *gin.Context) {
		var body struct {
			IDs []string `json:"ids" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess := auth.SessionFrom(c)
		result, err := requests.BulkApprove(c.Request.Context(), sess, body.IDs)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		for _, id := range result.Approved {
			if req, err := requests.Get(c.Request.Context(), sess, id); err == nil {
				publishDecision(c, q, req)
				publishSummary(c, q, req.UserID, req.AttendanceDate)
			}
		}
		status := http.StatusOK
		if len(result.Failed) > 0 {
			status = http.StatusMultiStatus
		}
		c.JSON(status, result)
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func listFilter(c *gin.Context) request.ListFilter {
	return request.ListFilter{
		View:   request.View(c.DefaultQuery("view", string(request.ViewAll))),
		SortBy: request.SortKey(c.DefaultQuery("sort", string(request.SortDate))),
	}
}

func publishSummary(c *gin.Context, q queue.Queue, userID, date string) {
	if len(date) < 7 {
		return
	}
	msg := queue.Message{Type: queue.TypeSummary, UserID: userID, Month: date[:7]}
	if err := q.Publish(c.Request.Context(), msg); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

func publishDecision(c *gin.Context, q queue.Queue, req request.CorrectionRequest) {
	msg := queue.Message{Type: queue.TypeDecision, RequestID: req.ID}
	if err := q.Publish(c.Request.Context(), msg); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

// statusFor maps workflow errors onto HTTP statuses: precondition failures
// are client errors, guard misses are conflicts, everything else is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrNotFound), errors.Is(err, request.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, request.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, request.ErrInvalidTransition), errors.Is(err, request.ErrDuplicatePending),
		errors.Is(err, attendance.ErrAlreadyClockedIn), errors.Is(err, attendance.ErrAlreadyClockedOut):
		return http.StatusConflict
	case errors.Is(err, request.ErrNothingToSubmit), errors.Is(err, attendance.ErrNotClockedIn),
		errors.Is(err, attendance.ErrBadInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
