package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GatewayAck is the parsed callback body from the workflow gateway.
type GatewayAck struct {
	ResponseFromGateway json.RawMessage `json:"response_from_gateway"`
	RejectedBills       string          `json:"rejected_bills"`
}

// OnlineWorkflowStrategy pays a payroll through the external workflow
// adaptor: one invocation carries the total amount and the comma-joined ids
// of every VALIDATED bill attached to the payroll. The gateway answers
// through the callback, which splits accepted from rejected bills.
type OnlineWorkflowStrategy struct {
	Adaptor WorkflowAdaptor
}

func (s *OnlineWorkflowStrategy) PaymentMethod() string { return MethodOnlineWorkflow }

func (s *OnlineWorkflowStrategy) MakePayment(ctx context.Context, payroll *models.Payroll) error {
	pointName, err := gatewaySettingsForPayroll(ctx, payroll)
	if err != nil {
		return err
	}
	settings := config.ResolveGatewaySettings(pointName)

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bills, err := models.BillsAttachedToPayroll(tx, payroll.ID)
		if err != nil {
			return err
		}
		if len(bills) == 0 {
			return fmt.Errorf("%w: payroll %s has no bills to pay", utils.ErrValidation, payroll.ID)
		}

		total := decimal.Zero
		billIds := make([]string, 0, len(bills))
		for _, bill := range bills {
			total = total.Add(bill.AmountTotal)
			billIds = append(billIds, bill.ID)
		}

		username, _ := utils.GetUsernameFromContext(ctx)
		err = s.Adaptor.Run(ctx, settings.WorkflowName, settings.WorkflowGroup, map[string]string{
			"user":       username,
			"payroll_id": payroll.ID,
			"amount":     total.StringFixed(2),
			"bill_ids":   strings.Join(billIds, ","),
		})
		if err != nil {
			return err
		}
		return models.TransitionStatus(tx, payroll, models.PayrollStatusApproveForRelease, models.PayrollStatusOngoing)
	})
}

// Acknowledge applies the gateway's authoritative callback: the raw body is
// digested for the replay guard, rejected bills turn UNPAID, the rest PAID,
// and the payroll starts awaiting reconciliation. A replayed callback is
// dropped without re-applying anything.
func (s *OnlineWorkflowStrategy) Acknowledge(ctx context.Context, payroll *models.Payroll, body []byte, ack GatewayAck) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := models.RecordCallback(tx, payroll.ID, body)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}

		ext := payroll.JsonExt
		ext.ResponseFromGateway = ack.ResponseFromGateway
		if err := models.SavePayrollExt(tx, payroll.ID, ext); err != nil {
			return err
		}

		bills, err := models.BillsAttachedToPayroll(tx, payroll.ID)
		if err != nil {
			return err
		}
		rejected := map[string]bool{}
		for _, id := range utils.SplitAndTrim(ack.RejectedBills) {
			rejected[id] = true
		}
		for _, bill := range bills {
			status := models.BillStatusPaid
			if rejected[bill.ID] {
				status = models.BillStatusUnpaid
			}
			if err := models.SetBillStatus(tx, bill.ID, status); err != nil {
				return err
			}
		}

		if err := models.TransitionStatus(tx, payroll, models.PayrollStatusOngoing, models.PayrollStatusAwaitingReconciliation); err != nil {
			return err
		}
		return models.CreateTask(ctx, tx, models.TaskSourcePayrollReconciliation, payroll.ID,
			models.BusinessEventPayrollReconciliation, nil)
	})
}

// ReconcilePayroll settles the acknowledged bills: PAID bills emit payment
// invoices and turn RECONCILIATED, UNPAID bills are reissued under a dated
// code so the obligation carries forward, and the payroll closes.
func (s *OnlineWorkflowStrategy) ReconcilePayroll(ctx context.Context, payroll *models.Payroll) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var paid []models.Bill
		err := tx.
			Joins("JOIN benefit_attachments ba ON ba.bill_id = bills.id AND ba.is_deleted = 0").
			Joins("JOIN payroll_benefit_consumptions pbc ON pbc.benefit_id = ba.benefit_id AND pbc.is_deleted = 0").
			Where("pbc.payroll_id = ? AND bills.is_deleted = 0", payroll.ID).
			Where("bills.status IN ?", []models.BillStatus{models.BillStatusPaid, models.BillStatusUnpaid}).
			Find(&paid).Error
		if err != nil {
			return err
		}

		for i := range paid {
			bill := &paid[i]
			switch bill.Status {
			case models.BillStatusUnpaid:
				if _, err := models.ReissueUnpaidBill(tx, bill, now); err != nil {
					return err
				}
			case models.BillStatusPaid:
				if err := models.CreatePaymentInvoiceForBill(tx, bill, bill.Code, &now); err != nil {
					return err
				}
				if err := models.SetBillStatus(tx, bill.ID, models.BillStatusReconciliated); err != nil {
					return err
				}
			}
		}

		return models.TransitionStatus(tx, payroll, models.PayrollStatusAwaitingReconciliation, models.PayrollStatusReconciled)
	})
}
