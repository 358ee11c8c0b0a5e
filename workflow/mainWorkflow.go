package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/payroll_backend/appctx"
	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessPayrollMessage routes one queue message to its processor. Handlers
// re-check the payroll's current state, so a redelivered message is safe.
func ProcessPayrollMessage(db *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	switch msg.Kind {
	case config.JobKindGenerateBenefits:
		return ProcessPayrollGeneration(db, logger, msg)
	case config.JobKindDispatchPayment:
		return ProcessPaymentDispatch(db, logger, msg)
	case config.JobKindReconcile:
		return ProcessPayrollReconciliation(db, logger, msg)
	default:
		return fmt.Errorf("unknown payroll job kind %q", msg.Kind)
	}
}

// contextFromMessage rebuilds the request context a job was enqueued under
// so downstream code sees the same user and correlation id.
func contextFromMessage(msg config.PubSubMessage) context.Context {
	ctx := context.Background()
	ctx = appctx.Set(ctx, appctx.ContextKeyUserId, msg.UserId)
	ctx = appctx.Set(ctx, appctx.ContextKeyUsername, msg.Username)
	ctx = utils.SetCorrelationIdInContext(ctx, msg.CorrelationId)
	return ctx
}
