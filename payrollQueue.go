package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// pushEnvelope is the Pub/Sub push delivery wrapper.
type pushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// payrollPubSubHandler consumes pushed payroll jobs. Malformed deliveries
// are acked (204) to avoid retry loops; processing failures return 500 so
// Pub/Sub redelivers. The redis lock is best effort only; the guarded
// status transitions keep concurrent redeliveries safe without it.
func payrollPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "payrollQueue.go", "payrollPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		var envelope pushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "payrollQueue.go", "payrollPubSubHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}
		var msg config.PubSubMessage
		if err := json.Unmarshal(envelope.Message.Data, &msg); err != nil {
			config.LogError(logger, "payrollQueue.go", "payrollPubSubHandler", "Unmarshal pubsub message", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}
		if msg.Kind == "" || msg.PayrollId == "" {
			config.LogError(logger, "payrollQueue.go", "payrollPubSubHandler", "invalid pubsub message", msg,
				fmt.Errorf("kind/payroll_id required"))
			c.Status(http.StatusNoContent)
			return
		}
		if msg.CorrelationId == "" {
			msg.CorrelationId = envelope.Message.ID
		}

		var lock *redislock.Lock
		if locker := config.GetRedisLock(); locker != nil {
			lock, err = locker.Obtain(config.GetRedisContext(), "payroll-msg:"+msg.PayrollId, 5*time.Minute, nil)
			if err != nil && err != redislock.ErrNotObtained {
				logger.WithFields(logrus.Fields{
					"field":      "payrollPubSubHandler",
					"payroll_id": msg.PayrollId,
				}).Warn("redis lock unavailable; proceeding without it")
			}
		}
		if lock != nil {
			defer func() { _ = lock.Release(config.GetRedisContext()) }()
		}

		db := config.GetDB()
		if err := workflow.ProcessPayrollMessage(db, logger, msg); err != nil {
			config.LogError(logger, "payrollQueue.go", "payrollPubSubHandler", "ProcessPayrollMessage", msg, err)
			c.Status(http.StatusInternalServerError)
			return
		}

		if msg.ID != 0 {
			if err := db.Model(&models.PayrollQueueRecord{}).
				Where("id = ?", msg.ID).
				Updates(map[string]interface{}{
					"is_processed":   true,
					"publish_status": models.OutboxPublishStatusProcessed,
				}).Error; err != nil {
				config.LogError(logger, "payrollQueue.go", "payrollPubSubHandler", "mark record processed", msg.ID, err)
			}
		}
		c.Status(http.StatusNoContent)
	}
}
