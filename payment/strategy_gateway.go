package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GatewayConnectorStrategy pays each benefit individually through the
// configured connector and reconciles by polling the gateway per benefit.
// Each benefit commits on its own so a mid-batch gateway failure keeps the
// already-settled benefits; whatever the gateway cannot confirm stays open
// for the CSV path.
type GatewayConnectorStrategy struct{}

func (s *GatewayConnectorStrategy) PaymentMethod() string { return MethodGatewayConnector }

// benefitNeedsDispatch reports whether a benefit still has to go to the
// gateway: it is open and no gateway response was recorded for it yet.
func benefitNeedsDispatch(benefit *models.BenefitConsumption) bool {
	if benefit.Status != models.BenefitStatusAccepted && benefit.Status != models.BenefitStatusApproveForPayment {
		return false
	}
	return len(benefit.JsonExt.OutputGateway) == 0
}

func (s *GatewayConnectorStrategy) connector(ctx context.Context, payroll *models.Payroll) (Connector, error) {
	pointName, err := gatewaySettingsForPayroll(ctx, payroll)
	if err != nil {
		return nil, err
	}
	return NewConnector(config.ResolveGatewaySettings(pointName))
}

// MakePayment is re-runnable: a redelivered dispatch job finds the payroll
// already ONGOING and resumes, skipping benefits whose gateway response was
// recorded on an earlier attempt.
func (s *GatewayConnectorStrategy) MakePayment(ctx context.Context, payroll *models.Payroll) error {
	connector, err := s.connector(ctx, payroll)
	if err != nil {
		return err
	}
	db := config.GetDB()

	if payroll.Status == models.PayrollStatusApproveForRelease {
		if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return models.TransitionStatus(tx, payroll, models.PayrollStatusApproveForRelease, models.PayrollStatusOngoing)
		}); err != nil {
			return err
		}
	} else if payroll.Status != models.PayrollStatusOngoing {
		return fmt.Errorf("%w: payroll %s is %s, not dispatchable", utils.ErrInvalidState, payroll.ID, payroll.Status)
	}

	benefits, err := models.BenefitsAttachedToPayroll(db, payroll.ID)
	if err != nil {
		return err
	}

	logger := config.GetLogger()
	var firstErr error
	for i := range benefits {
		benefit := &benefits[i]
		if !benefitNeedsDispatch(benefit) {
			continue
		}
		response, err := connector.SendPayment(ctx, benefit.Code, benefit.Amount, benefit.JsonExt.PhoneNumber)
		if err != nil {
			config.LogError(logger, "payment", "MakePayment", "send payment", benefit.Code, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ext := benefit.JsonExt
		ext.OutputGateway = json.RawMessage(response)
		if err := db.Model(&models.BenefitConsumption{}).
			Where("id = ?", benefit.ID).
			Update("json_ext", ext).Error; err != nil {
			return err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%w: one or more benefit payments failed: %v", utils.ErrGateway, firstErr)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return models.TransitionStatus(tx, payroll, models.PayrollStatusOngoing, models.PayrollStatusAwaitingReconciliation)
	})
}

// ReconcilePayroll polls the gateway per open benefit and records the
// outcome in each benefit's extension column. Confirmed benefits move to
// RECONCILED in one bulk transition; unconfirmed ones keep their recorded
// failure and wait for manual or CSV reconciliation. The payroll itself
// closes only when nothing is left open.
func (s *GatewayConnectorStrategy) ReconcilePayroll(ctx context.Context, payroll *models.Payroll) error {
	connector, err := s.connector(ctx, payroll)
	if err != nil {
		return err
	}
	db := config.GetDB()
	logger := config.GetLogger()

	benefits, err := models.BenefitsAttachedToPayroll(db, payroll.ID)
	if err != nil {
		return err
	}

	var confirmed []string
	openCount := 0
	for i := range benefits {
		benefit := &benefits[i]
		if benefit.Status != models.BenefitStatusAccepted && benefit.Status != models.BenefitStatusApproveForPayment {
			continue
		}
		openCount++

		response, success, err := connector.Reconcile(ctx, benefit.Code, benefit.Amount)
		ext := benefit.JsonExt
		ext.OutputGateway = json.RawMessage(response)
		if err != nil {
			config.LogError(logger, "payment", "ReconcilePayroll", "gateway reconcile", benefit.Code, err)
			success = false
		}
		ext.GatewayReconciliationSuccess = &success

		// each benefit commits on its own
		if err := db.Model(&models.BenefitConsumption{}).
			Where("id = ?", benefit.ID).
			Update("json_ext", ext).Error; err != nil {
			return err
		}
		if success {
			confirmed = append(confirmed, benefit.ID)
		}
	}

	if len(confirmed) > 0 {
		if err := db.Model(&models.BenefitConsumption{}).
			Where("id IN ? AND is_deleted = 0", confirmed).
			Where("status IN ?", []models.BenefitConsumptionStatus{
				models.BenefitStatusAccepted, models.BenefitStatusApproveForPayment,
			}).
			Update("status", models.BenefitStatusReconciled).Error; err != nil {
			return err
		}
	}

	if len(confirmed) < openCount {
		logger.WithFields(logrus.Fields{
			"payroll_id": payroll.ID,
			"open":       openCount - len(confirmed),
		}).Info("payroll left open for manual reconciliation")
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return models.TransitionStatus(tx, payroll, models.PayrollStatusAwaitingReconciliation, models.PayrollStatusReconciled)
	})
}
