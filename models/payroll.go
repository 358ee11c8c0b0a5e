package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Payroll is one disbursement batch. Status moves along the state machine
// in enums.go; every write goes through TransitionStatus so concurrent jobs
// cannot clobber each other's transitions.
type Payroll struct {
	ID             string        `gorm:"primary_key;size:36" json:"id"`
	Name           string        `gorm:"size:255;not null" json:"name"`
	PaymentPlanId  string        `gorm:"size:36;not null;index" json:"payment_plan_id"`
	PaymentPointId *string       `gorm:"size:36;index" json:"payment_point_id"`
	PaymentCycleId string        `gorm:"size:36;not null;index" json:"payment_cycle_id"`
	PaymentMethod  string        `gorm:"size:100;not null" json:"payment_method"`
	Status         PayrollStatus `gorm:"size:40;not null;default:PENDING_APPROVAL;index" json:"status"`
	DateValidFrom  *time.Time    `json:"date_valid_from"`
	DateValidTo    *time.Time    `json:"date_valid_to"`
	JsonExt        PayrollExt    `gorm:"type:json" json:"json_ext"`
	IsDeleted      bool          `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetPayrollById(ctx context.Context, tx *gorm.DB, id string) (*Payroll, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: payroll id required", utils.ErrValidation)
	}
	var payroll Payroll
	if err := tx.WithContext(ctx).Where("id = ? AND is_deleted = 0", id).First(&payroll).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: payroll %s", utils.ErrNotFound, id)
		}
		return nil, err
	}
	return &payroll, nil
}

// CreatePayroll persists a new PENDING_APPROVAL payroll and either enqueues
// benefit generation or, for a from-failed-payroll creation, relinks the
// failed payroll's accepted benefits in the same transaction. The creation
// parameters are always kept in the extension column for retriggering.
func CreatePayroll(ctx context.Context, params CreationParams) (*Payroll, error) {
	db := config.GetDB()

	var payroll *Payroll
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := GetPaymentPlanById(ctx, tx, params.PaymentPlanId); err != nil {
			return fmt.Errorf("%w: payment plan %s", utils.ErrValidation, params.PaymentPlanId)
		}
		if params.PaymentPointId != "" {
			if _, err := GetPaymentPointById(ctx, params.PaymentPointId); err != nil {
				return fmt.Errorf("%w: payment point %s", utils.ErrValidation, params.PaymentPointId)
			}
		}

		p := Payroll{
			ID:             uuid.NewString(),
			Name:           params.Name,
			PaymentPlanId:  params.PaymentPlanId,
			PaymentPointId: utils.NilIfEmpty(params.PaymentPointId),
			PaymentCycleId: params.PaymentCycleId,
			PaymentMethod:  params.PaymentMethod,
			Status:         PayrollStatusPendingApproval,
			DateValidFrom:  parseDatePtr(params.DateValidFrom),
			DateValidTo:    parseDatePtr(params.DateValidTo),
			JsonExt:        PayrollExt{CreationParams: &params},
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}

		if params.FromFailedPayrollId != "" {
			if err := moveBenefitConsumptions(tx, &p, params.FromFailedPayrollId); err != nil {
				return err
			}
		} else {
			if err := EnqueuePayrollJob(ctx, tx, config.JobKindGenerateBenefits, p.ID, params); err != nil {
				return err
			}
		}

		if err := CreateAcceptPayrollTask(ctx, tx, &p); err != nil {
			return err
		}

		payroll = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payroll, nil
}

// TransitionStatus moves the payroll from an expected prior state to the
// next one. The guard is the UPDATE's WHERE clause: zero affected rows
// means another job got there first (or the transition is illegal).
func TransitionStatus(tx *gorm.DB, payroll *Payroll, from, to PayrollStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: payroll %s %s -> %s", utils.ErrInvalidState, payroll.ID, from, to)
	}
	res := tx.Model(&Payroll{}).
		Where("id = ? AND status = ? AND is_deleted = 0", payroll.ID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: payroll %s is no longer %s", utils.ErrInvalidState, payroll.ID, from)
	}
	payroll.Status = to
	return nil
}

// MarkPayrollFailed absorbs a benefit-generation failure into the FAILED
// state: the error text overwrites any previous one, the creation params
// stay in place so the payroll can be retriggered.
func MarkPayrollFailed(ctx context.Context, payrollId string, genErr error) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payroll, err := GetPayrollById(ctx, tx, payrollId)
		if err != nil {
			return err
		}
		ext := payroll.JsonExt
		ext.CreationError = genErr.Error()
		return tx.Model(&Payroll{}).
			Where("id = ?", payroll.ID).
			Updates(map[string]interface{}{
				"status":   PayrollStatusFailed,
				"json_ext": ext,
			}).Error
	})
}

// RetriggerPayroll re-runs creation for a FAILED payroll using the stored
// creation parameters. Any other state is rejected.
func RetriggerPayroll(ctx context.Context, payrollId string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payroll, err := GetPayrollById(ctx, tx, payrollId)
		if err != nil {
			return err
		}
		if payroll.Status != PayrollStatusFailed {
			return fmt.Errorf("%w: retrigger requires FAILED, payroll %s is %s",
				utils.ErrInvalidState, payroll.ID, payroll.Status)
		}
		if payroll.JsonExt.CreationParams == nil {
			return fmt.Errorf("%w: payroll %s has no stored creation params", utils.ErrValidation, payroll.ID)
		}

		ext := payroll.JsonExt
		ext.CreationError = ""
		if err := tx.Model(&Payroll{}).
			Where("id = ? AND status = ?", payroll.ID, PayrollStatusFailed).
			Updates(map[string]interface{}{
				"status":   PayrollStatusPendingApproval,
				"json_ext": ext,
			}).Error; err != nil {
			return err
		}

		params := *payroll.JsonExt.CreationParams
		if params.FromFailedPayrollId != "" {
			return moveBenefitConsumptions(tx, payroll, params.FromFailedPayrollId)
		}
		return EnqueuePayrollJob(ctx, tx, config.JobKindGenerateBenefits, payroll.ID, params)
	})
}

// moveBenefitConsumptions relinks the source payroll's ACCEPTED benefits to
// the target and promotes them to APPROVE_FOR_PAYMENT, without re-running
// calculation. Amounts travel with the benefit rows.
func moveBenefitConsumptions(tx *gorm.DB, payroll *Payroll, fromPayrollId string) error {
	var benefitIds []string
	if err := tx.Model(&PayrollBenefitConsumption{}).
		Joins("JOIN benefit_consumptions bc ON bc.id = payroll_benefit_consumptions.benefit_id").
		Where("payroll_benefit_consumptions.payroll_id = ? AND payroll_benefit_consumptions.is_deleted = 0", fromPayrollId).
		Where("bc.status = ? AND bc.is_deleted = 0", BenefitStatusAccepted).
		Pluck("payroll_benefit_consumptions.benefit_id", &benefitIds).Error; err != nil {
		return err
	}
	if len(benefitIds) == 0 {
		return nil
	}
	if err := tx.Model(&PayrollBenefitConsumption{}).
		Where("payroll_id = ? AND benefit_id IN ? AND is_deleted = 0", fromPayrollId, benefitIds).
		Update("payroll_id", payroll.ID).Error; err != nil {
		return err
	}
	return tx.Model(&BenefitConsumption{}).
		Where("id IN ? AND is_deleted = 0", benefitIds).
		Update("status", BenefitStatusApproveForPayment).Error
}

// GenerateBenefitsForPayroll runs beneficiary selection and the calculation
// engine inside the given transaction. Failures propagate to the caller,
// which converts them into the FAILED state.
func GenerateBenefitsForPayroll(ctx context.Context, tx *gorm.DB, payroll *Payroll) error {
	plan, err := GetPaymentPlanById(ctx, tx, payroll.PaymentPlanId)
	if err != nil {
		return err
	}
	engine, err := EngineForPlan(plan)
	if err != nil {
		return err
	}

	criteria := SelectionCriteria{}
	if payroll.JsonExt.CreationParams != nil {
		criteria = criteriaFromParams(*payroll.JsonExt.CreationParams)
	}
	beneficiaries, err := SelectBeneficiaries(tx, plan.BenefitPlanId, criteria)
	if err != nil {
		return err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	return engine.Calculate(ctx, tx, plan, userId, payroll.DateValidFrom, payroll.DateValidTo, beneficiaries, payroll)
}

// AcceptPayroll is the accept-task executor: it releases the payroll for
// dispatch and enqueues the gateway payment job.
func AcceptPayroll(ctx context.Context, payrollId string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payroll, err := GetPayrollById(ctx, tx, payrollId)
		if err != nil {
			return err
		}
		if err := TransitionStatus(tx, payroll, PayrollStatusPendingApproval, PayrollStatusApproveForRelease); err != nil {
			return err
		}
		return EnqueuePayrollJob(ctx, tx, config.JobKindDispatchPayment, payroll.ID, nil)
	})
}

// RejectPayroll is the reject-task executor.
func RejectPayroll(ctx context.Context, payrollId string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payroll, err := GetPayrollById(ctx, tx, payrollId)
		if err != nil {
			return err
		}
		return TransitionStatus(tx, payroll, PayrollStatusPendingApproval, PayrollStatusRejected)
	})
}

// DeletePayroll routes deletion through an approval task; the soft delete
// itself is applied by ExecutePayrollDelete once the task is approved.
func DeletePayroll(ctx context.Context, payrollId string) error {
	db := config.GetDB()
	payroll, err := GetPayrollById(ctx, db, payrollId)
	if err != nil {
		return err
	}
	return CreateTask(ctx, db, TaskSourcePayrollDelete, payroll.ID, BusinessEventPayrollDelete, nil)
}

func ExecutePayrollDelete(ctx context.Context, payrollId string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payroll, err := GetPayrollById(ctx, tx, payrollId)
		if err != nil {
			return err
		}
		if err := tx.Model(&Payroll{}).
			Where("id = ?", payroll.ID).
			Update("is_deleted", true).Error; err != nil {
			return err
		}
		// the link rows go with the payroll; benefits stay for audit
		return tx.Model(&PayrollBenefitConsumption{}).
			Where("payroll_id = ?", payroll.ID).
			Update("is_deleted", true).Error
	})
}

// ClosePayroll creates the reconciliation approval task for a payroll that
// is awaiting reconciliation.
func ClosePayroll(ctx context.Context, payrollId string) error {
	db := config.GetDB()
	payroll, err := GetPayrollById(ctx, db, payrollId)
	if err != nil {
		return err
	}
	return CreateTask(ctx, db, TaskSourcePayrollReconciliation, payroll.ID, BusinessEventPayrollReconciliation, nil)
}

// RejectApprovedPayroll creates the reject approval task.
func RejectApprovedPayroll(ctx context.Context, payrollId string) error {
	db := config.GetDB()
	payroll, err := GetPayrollById(ctx, db, payrollId)
	if err != nil {
		return err
	}
	return CreateTask(ctx, db, TaskSourcePayrollReject, payroll.ID, BusinessEventPayrollReject, nil)
}

func CreateAcceptPayrollTask(ctx context.Context, tx *gorm.DB, payroll *Payroll) error {
	data := JSONMap{"payroll_id": payroll.ID, "name": payroll.Name}
	return CreateTask(ctx, tx, TaskSourcePayroll, payroll.ID, BusinessEventPayrollAccept, data)
}

// SavePayrollExt persists the extension column only.
func SavePayrollExt(tx *gorm.DB, payrollId string, ext PayrollExt) error {
	return tx.Model(&Payroll{}).
		Where("id = ?", payrollId).
		Update("json_ext", ext).Error
}

func parseDatePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
