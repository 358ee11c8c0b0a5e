package payment

import (
	"context"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"gorm.io/gorm"
)

// ManualCsvStrategy covers payment points that pay out of band and report
// back through the reconciliation file upload. Dispatch only advances the
// state machine; it deliberately does not implement ReconcilableStrategy,
// the CSV upload is the reconciliation path.
type ManualCsvStrategy struct{}

func (s *ManualCsvStrategy) PaymentMethod() string { return MethodManualCsv }

func (s *ManualCsvStrategy) MakePayment(ctx context.Context, payroll *models.Payroll) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.TransitionStatus(tx, payroll, models.PayrollStatusApproveForRelease, models.PayrollStatusOngoing); err != nil {
			return err
		}
		return models.TransitionStatus(tx, payroll, models.PayrollStatusOngoing, models.PayrollStatusAwaitingReconciliation)
	})
}
