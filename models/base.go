package models

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EnqueuePayrollJob implements the transactional outbox: it writes the job
// record inside the caller's DB transaction but does NOT publish to Pub/Sub.
// Publishing happens asynchronously after commit, so a rolled-back
// transaction never leaks a job.
func EnqueuePayrollJob(ctx context.Context, tx *gorm.DB, kind string, payrollId string, payload interface{}) error {
	var payloadBytes []byte
	var err error
	if payload != nil {
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	username, _ := utils.GetUsernameFromContext(ctx)

	record := PayrollQueueRecord{
		Kind:          kind,
		PayrollId:     payrollId,
		UserId:        userId,
		Username:      username,
		Payload:       payloadBytes,
		IsProcessed:   false,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// ConvertToPubSubMessage maps an outbox row onto the queue envelope.
func ConvertToPubSubMessage(rec PayrollQueueRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:            rec.ID,
		Kind:          rec.Kind,
		PayrollId:     rec.PayrollId,
		UserId:        rec.UserId,
		Username:      rec.Username,
		Payload:       rec.Payload,
		CorrelationId: rec.CorrelationId,
	}
}
