package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/bpo_backend/config"
	"bitbucket.org/mmdatafocus/bpo_backend/models"
	"bitbucket.org/mmdatafocus/bpo_backend/utils"
	"bitbucket.org/mmdatafocus/bpo_backend/wasend"
	"bitbucket.org/mmdatafocus/bpo_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("bpo-messaging")

// set in main() after dependencies are ready; the readiness gate keeps
// requests out until then.
var (
	dispatcher       *workflow.MessageDispatcher
	alertLifecycle   *workflow.AlertLifecycle
	messageScheduler *workflow.MessageScheduler
)

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// PubSubPushMessage is the push-delivery envelope Pub/Sub POSTs to us.
type PubSubPushMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func errorReason(err error) (int, string) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound, "not_found"
	case utils.IsInvalidArgument(err):
		return http.StatusBadRequest, "invalid_argument"
	case utils.IsInvalidTransition(err):
		return http.StatusConflict, "invalid_transition"
	default:
		return http.StatusInternalServerError, "external_failure"
	}
}

func respondError(c *gin.Context, err error) {
	status, reason := errorReason(err)
	c.JSON(status, gin.H{"error": err.Error(), "reason": reason})
}

func companyContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if companyId := strings.TrimSpace(c.GetHeader("x-company-id")); companyId != "" {
			ctx = utils.SetCompanyIdInContext(ctx, companyId)
		}
		if userId, err := strconv.Atoi(strings.TrimSpace(c.GetHeader("x-user-id"))); err == nil {
			ctx = utils.SetUserIdInContext(ctx, userId)
		}
		// Internal ops requests act across tenants.
		if expected := strings.TrimSpace(os.Getenv("INTERNAL_OPS_TOKEN")); expected != "" && c.GetHeader("x-internal-token") == expected {
			ctx = utils.SetIsAdminInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("x-correlation-id", cid)
		c.Next()
	}
}

func createAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		l := alertLifecycle
		if l == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is not ready"})
			return
		}
		var input models.NewAlert
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "reason": "invalid_argument"})
			return
		}
		alert, err := l.Create(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"alert": alert})
	}
}

func listAlertsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		l := alertLifecycle
		if l == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is not ready"})
			return
		}
		var status *models.AlertStatus
		if s := models.AlertStatus(c.Query("status")); s != "" {
			if !s.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter", "reason": "invalid_argument"})
				return
			}
			status = &s
		}
		alerts, err := l.List(c.Request.Context(), status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": alerts})
	}
}

func getAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		l := alertLifecycle
		if l == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is not ready"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "alert id must be numeric", "reason": "invalid_argument"})
			return
		}
		alert, err := l.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"alert": alert})
	}
}

func alertStatusHandler() gin.HandlerFunc {
	type request struct {
		AlertId         int                         `json:"alert_id" binding:"required"`
		Status          models.AlertStatus          `json:"status" binding:"required"`
		ResolutionType  *models.AlertResolutionType `json:"resolution_type"`
		ResolutionNotes *string                     `json:"resolution_notes"`
		ResolvedBy      *int                        `json:"resolved_by"`
	}
	return func(c *gin.Context) {
		l := alertLifecycle
		if l == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is not ready"})
			return
		}
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "reason": "invalid_argument"})
			return
		}

		alert, err := l.Transition(c.Request.Context(), req.AlertId, &models.AlertStatusChange{
			Status:          req.Status,
			ResolutionType:  req.ResolutionType,
			ResolutionNotes: req.ResolutionNotes,
			ResolvedBy:      req.ResolvedBy,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"alert": alert})
	}
}

func scheduleMessageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := messageScheduler
		if m == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is not ready"})
			return
		}
		var input models.NewScheduledMessage
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "reason": "invalid_argument"})
			return
		}
		// The header tenant wins over whatever the body claims.
		if companyId, ok := utils.GetCompanyIdFromContext(c.Request.Context()); ok && companyId != "" {
			input.CompanyId = companyId
		}

		msg, err := m.Schedule(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"scheduled_id":    msg.ID,
			"status":          msg.Status,
			"scheduled_at":    msg.ScheduledAt,
			"next_attempt_at": msg.NextAttemptAt,
		})
	}
}

func cancelMessageHandler() gin.HandlerFunc {
	type request struct {
		ScheduledId string `json:"scheduled_id" binding:"required"`
	}
	return func(c *gin.Context) {
		m := messageScheduler
		if m == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is not ready"})
			return
		}
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "reason": "invalid_argument"})
			return
		}

		msg, err := m.Cancel(c.Request.Context(), req.ScheduledId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": fmt.Sprintf("scheduled message %s canceled", msg.ID),
		})
	}
}

func listMessagesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := messageScheduler
		if m == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is not ready"})
			return
		}
		msgs, err := m.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}

func getMessageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := messageScheduler
		if m == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is not ready"})
			return
		}
		msg, err := m.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg})
	}
}

// Ops tooling: run one dispatch batch on demand. With async=true the request
// publishes a Pub/Sub trigger instead and returns immediately.
func dispatchRunHandler() gin.HandlerFunc {
	type request struct {
		BatchLimit int    `json:"batch_limit"`
		CompanyId  string `json:"company_id"`
		Async      bool   `json:"async"`
	}
	return func(c *gin.Context) {
		if err := authorizeInternalOps(c); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req request
		_ = c.ShouldBindJSON(&req)

		ctx := c.Request.Context()
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

		if req.Async {
			msgID, err := config.PublishDispatchTrigger(ctx, config.DispatchTrigger{
				CompanyId:     req.CompanyId,
				BatchLimit:    req.BatchLimit,
				RequestedBy:   "internal-ops",
				CorrelationId: correlationId,
			})
			if err != nil {
				respondError(c, utils.NewExternalFailure("publish dispatch trigger", err))
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"message_id": msgID})
			return
		}

		d := dispatcher
		if d == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dispatcher is not ready"})
			return
		}
		if req.CompanyId != "" {
			ctx = utils.SetCompanyIdInContext(ctx, req.CompanyId)
		} else {
			ctx = utils.SetSkipTenantScopeInContext(ctx, true)
		}

		ctx, span := tracer.Start(ctx, "dispatch.batch.ops")
		defer span.End()

		summary, err := d.ProcessDue(ctx, req.BatchLimit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func authorizeInternalOps(c *gin.Context) error {
	expected := strings.TrimSpace(os.Getenv("INTERNAL_OPS_TOKEN"))
	if expected == "" {
		return errors.New("INTERNAL_OPS_TOKEN is not configured")
	}
	if c.GetHeader("x-internal-token") != expected {
		return errors.New("token mismatch")
	}
	return nil
}

// dispatchPubSubHandler is the Pub/Sub push endpoint: one trigger message,
// one batch run. A Redis lock is a best-effort guard against overlapping
// deliveries; correctness must not depend on it.
func dispatchPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "server.go", "dispatchPubSubHandler", "io.ReadAll", nil, err)
			// Malformed request body: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		var push PubSubPushMessage
		if err := json.Unmarshal(body, &push); err != nil {
			config.LogError(logger, "server.go", "dispatchPubSubHandler", "Unmarshal envelope", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		var trigger config.DispatchTrigger
		if len(push.Message.Data) > 0 {
			if err := json.Unmarshal(push.Message.Data, &trigger); err != nil {
				config.LogError(logger, "server.go", "dispatchPubSubHandler", "Unmarshal trigger", string(push.Message.Data), err)
				c.Status(http.StatusNoContent)
				return
			}
		}

		d := dispatcher
		if d == nil {
			// Not ready yet: non-2xx makes Pub/Sub redeliver later.
			c.Status(http.StatusServiceUnavailable)
			return
		}

		ctx := c.Request.Context()
		if trigger.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, trigger.CorrelationId)
		}
		// A company-scoped trigger narrows the due fetch to that tenant.
		if trigger.CompanyId != "" {
			ctx = utils.SetCompanyIdInContext(ctx, trigger.CompanyId)
		}

		if config.DispatchLockEnabled() {
			if redisLock := config.GetRedisLock(); redisLock != nil {
				lock, lockErr := redisLock.Obtain(ctx, "dispatch:batch", d.LockTTL, nil)
				if lockErr != nil {
					// Another run is in progress; this trigger is satisfied.
					c.Status(http.StatusNoContent)
					return
				}
				defer func() {
					if releaseErr := lock.Release(ctx); releaseErr != nil {
						config.LogError(logger, "server.go", "dispatchPubSubHandler", "lock.Release", nil, releaseErr)
					}
				}()
			}
		}

		ctx, span := tracer.Start(ctx, "dispatch.batch.pubsub")
		defer span.End()

		summary, err := d.ProcessDue(ctx, trigger.BatchLimit)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"field":      "DispatchPubSub",
				"message_id": push.Message.ID,
			}).Error("triggered dispatch failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}

		logger.WithFields(logrus.Fields{
			"field":      "DispatchPubSub",
			"message_id": push.Message.ID,
			"processed":  summary.Processed,
			"success":    summary.Success,
			"failed":     summary.Failed,
		}).Info("triggered dispatch complete")
		c.Status(http.StatusNoContent)
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(companyContextMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.UniqueSlice(utils.SplitAndTrim(allowedOrigins))
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-company-id", "x-correlation-id", "x-user-id", "x-internal-token")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDRESS")})
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/alerts", createAlertHandler())
	r.GET("/alerts", listAlertsHandler())
	r.GET("/alerts/:id", getAlertHandler())
	r.POST("/alerts/status", alertStatusHandler())
	r.POST("/messages/schedule", scheduleMessageHandler())
	r.POST("/messages/cancel", cancelMessageHandler())
	r.GET("/messages", listMessagesHandler())
	r.GET("/messages/:id", getMessageHandler())
	r.POST("/pubsub", dispatchPubSubHandler())
	// Ops tooling: run a dispatch batch outside the normal triggers.
	r.POST("/internal/ops/dispatch/run", dispatchRunHandler())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	alertLifecycle = workflow.NewAlertLifecycle(models.NewAlertStore(db))
	messageScheduler = workflow.NewMessageScheduler(models.NewScheduleStore(db))

	var sender workflow.Sender
	if client, err := wasend.NewClient(os.Getenv("WHATSAPP_API_KEY")); err != nil {
		logger.WithFields(logrus.Fields{"field": "wasend"}).Warn("whatsapp client not configured: " + err.Error())
	} else {
		sender = client
		defer client.Close()
	}

	d := workflow.NewMessageDispatcher(models.NewDispatchStore(db), sender, logger)
	d.BatchLimit = config.IntFromEnv("DISPATCH_BATCH_LIMIT", 50)
	d.PollInterval = time.Duration(config.IntFromEnv("DISPATCH_POLL_INTERVAL_SECONDS", 30)) * time.Second
	dispatcher = d

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	if config.DispatchDirectProcessing() {
		go d.Run(workerCtx)
	}
	if strings.TrimSpace(os.Getenv("PUBSUB_DISPATCH_SUBSCRIPTION")) != "" {
		if err := workflow.RunDispatchSubscriber(workerCtx, d); err != nil {
			logger.WithFields(logrus.Fields{"field": "DispatchSubscriber"}).Error("subscriber not started: " + err.Error())
		}
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}
