package workflow

import (
	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessPayrollGeneration runs benefit generation for a freshly created or
// retriggered payroll. A generation failure is absorbed into the FAILED
// state instead of bubbling up, so the batch stays retriable and the queue
// message completes.
func ProcessPayrollGeneration(db *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	ctx := contextFromMessage(msg)

	genErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payroll, err := models.GetPayrollById(ctx, tx, msg.PayrollId)
		if err != nil {
			return err
		}
		if payroll.Status != models.PayrollStatusPendingApproval {
			// already generated, failed, or resolved; nothing to do
			logger.WithFields(logrus.Fields{
				"payroll_id": payroll.ID,
				"status":     payroll.Status,
			}).Info("skipping generation, payroll is not pending approval")
			return nil
		}
		return models.GenerateBenefitsForPayroll(ctx, tx, payroll)
	})
	if genErr == nil {
		return nil
	}

	config.LogError(logger, "payrollWorkflow.go", "ProcessPayrollGeneration", "generate benefits", msg.PayrollId, genErr)
	if err := models.MarkPayrollFailed(ctx, msg.PayrollId, genErr); err != nil {
		config.LogError(logger, "payrollWorkflow.go", "ProcessPayrollGeneration", "mark payroll failed", msg.PayrollId, err)
		return err
	}
	return nil
}
