package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/payment"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"bitbucket.org/mmdatafocus/payroll_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

var tracer trace.Tracer = otel.Tracer("payroll-backend")

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy; app endpoints return 503 until DB/Redis are ready.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+c.FullPath())
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(os.Getenv("APP_ENV"), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/pubsub/payroll", payrollPubSubHandler())

	api := r.Group("/api", authMiddleware())
	{
		api.POST("/payroll", createPayrollHandler())
		api.POST("/payroll/:id/retrigger", retriggerPayrollHandler())
		api.DELETE("/payroll/:id", deletePayrollHandler())
		api.POST("/payroll/:id/close", closePayrollHandler())
		api.POST("/payroll/:id/reject", rejectApprovedPayrollHandler())

		api.POST("/payroll/callback", gatewayCallbackHandler())

		api.GET("/payroll/csv-reconciliation", downloadReconciliationHandler())
		api.POST("/payroll/csv-reconciliation", uploadReconciliationHandler())

		api.GET("/payment-requests", listPaymentRequestsHandler())
		api.POST("/payment-requests", updatePaymentRequestHandler())
		api.POST("/payment-requests/bulk", bulkUpdatePaymentRequestsHandler())

		api.POST("/tasks/:id/approve", approveTaskHandler())
		api.POST("/tasks/:id/fail", failTaskHandler())
	}

	srv := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		logger.WithFields(logrus.Fields{"field": "server", "port": port}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Panic(err.Error())
		}
	}()

	// Dependencies come up after the listener so health probes pass while
	// the DB retries.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := config.LoadPaymentGateways(); err != nil {
		logger.WithFields(logrus.Fields{"field": "payment gateways"}).Panic(err.Error())
	}
	payment.LoadStrategies(payment.NewHTTPWorkflowAdaptor())

	db := config.GetDB()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)

	// READ COMMITTED keeps the guarded status updates from blocking on gap
	// locks under concurrent jobs.
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{"field": "isolation level", "attempt": attempt}).Warn(err.Error())
		time.Sleep(sleep)
	}

	<-sigCtx.Done()
	cancelDispatcher()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "shutdown"}).Error(err.Error())
	}
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, ginErr := range c.Errors {
			logger.WithFields(logrus.Fields{
				"field":  "gin",
				"path":   c.Request.URL.Path,
				"status": c.Writer.Status(),
			}).Error(ginErr.Error())
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
