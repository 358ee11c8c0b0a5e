package workflow

import (
	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/payment"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProcessPayrollReconciliation closes out an awaiting payroll. Strategies
// that reconcile themselves do so here; for the manual paths the job only
// closes the payroll once every benefit has reached a terminal status.
func ProcessPayrollReconciliation(db *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	ctx := contextFromMessage(msg)

	lock, err := acquirePayrollLock(msg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release(config.GetRedisContext()) }()

	payroll, err := models.GetPayrollById(ctx, db, msg.PayrollId)
	if err != nil {
		return err
	}
	if payroll.Status != models.PayrollStatusAwaitingReconciliation {
		logger.WithFields(logrus.Fields{
			"payroll_id": payroll.ID,
			"status":     payroll.Status,
		}).Info("skipping reconciliation, payroll is not awaiting it")
		return nil
	}

	strategy, err := payment.ForMethod(payroll.PaymentMethod)
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ProcessPayrollReconciliation", "resolve strategy", payroll.PaymentMethod, err)
		return err
	}

	if reconcilable, ok := strategy.(payment.ReconcilableStrategy); ok {
		if err := reconcilable.ReconcilePayroll(ctx, payroll); err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "ProcessPayrollReconciliation", "reconcile payroll", payroll.ID, err)
			return err
		}
		return nil
	}

	// manual path: close only when nothing is left open
	var open int64
	err = db.Model(&models.BenefitConsumption{}).
		Joins("JOIN payroll_benefit_consumptions pbc ON pbc.benefit_id = benefit_consumptions.id AND pbc.is_deleted = 0").
		Where("pbc.payroll_id = ? AND benefit_consumptions.is_deleted = 0", payroll.ID).
		Where("benefit_consumptions.status IN ?", []models.BenefitConsumptionStatus{
			models.BenefitStatusAccepted, models.BenefitStatusApproveForPayment,
		}).
		Count(&open).Error
	if err != nil {
		return err
	}
	if open > 0 {
		logger.WithFields(logrus.Fields{
			"payroll_id": payroll.ID,
			"open":       open,
		}).Info("payroll still has open benefits, leaving it awaiting reconciliation")
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return models.TransitionStatus(tx, payroll, models.PayrollStatusAwaitingReconciliation, models.PayrollStatusReconciled)
	})
}
