package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BenefitConsumption is one individual's entitlement inside a payroll.
// Receipt numbers are assigned at reconciliation and must be unique among
// non-deleted rows.
type BenefitConsumption struct {
	ID           string                   `gorm:"primary_key;size:36" json:"id"`
	IndividualId string                   `gorm:"size:36;not null;index" json:"individual_id"`
	Code         string                   `gorm:"size:100;not null;uniqueIndex" json:"code"`
	Receipt      *string                  `gorm:"size:100;index" json:"receipt"`
	Amount       decimal.Decimal          `gorm:"type:decimal(18,2);not null" json:"amount"`
	Type         string                   `gorm:"size:100" json:"type"`
	Status       BenefitConsumptionStatus `gorm:"size:40;not null;default:ACCEPTED;index" json:"status"`
	DateDue      *time.Time               `json:"date_due"`
	JsonExt      BenefitExt               `gorm:"type:json" json:"json_ext"`
	IsDeleted    bool                     `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt    time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

// PayrollBenefitConsumption links a benefit to the payroll that pays it.
// Relinking on a from-failed-payroll creation rewrites payroll_id in place.
type PayrollBenefitConsumption struct {
	ID        string    `gorm:"primary_key;size:36" json:"id"`
	PayrollId string    `gorm:"size:36;not null;index" json:"payroll_id"`
	BenefitId string    `gorm:"size:36;not null;index" json:"benefit_id"`
	IsDeleted bool      `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BenefitAttachment links a benefit to the bill that funds it.
type BenefitAttachment struct {
	ID        string    `gorm:"primary_key;size:36" json:"id"`
	BenefitId string    `gorm:"size:36;not null;index" json:"benefit_id"`
	BillId    string    `gorm:"size:36;not null;index" json:"bill_id"`
	IsDeleted bool      `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func GetBenefitById(ctx context.Context, tx *gorm.DB, id string) (*BenefitConsumption, error) {
	var benefit BenefitConsumption
	if err := tx.WithContext(ctx).Where("id = ? AND is_deleted = 0", id).First(&benefit).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: benefit %s", utils.ErrNotFound, id)
		}
		return nil, err
	}
	return &benefit, nil
}

func GetBenefitByCode(ctx context.Context, tx *gorm.DB, code string) (*BenefitConsumption, error) {
	var benefit BenefitConsumption
	if err := tx.WithContext(ctx).Where("code = ? AND is_deleted = 0", code).First(&benefit).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: benefit code %s", utils.ErrNotFound, code)
		}
		return nil, err
	}
	return &benefit, nil
}

// ReceiptInUse reports whether any non-deleted benefit other than excludeId
// already carries the receipt.
func ReceiptInUse(tx *gorm.DB, receipt string, excludeId string) (bool, error) {
	var count int64
	q := tx.Model(&BenefitConsumption{}).
		Where("receipt = ? AND is_deleted = 0", receipt)
	if excludeId != "" {
		q = q.Where("id <> ?", excludeId)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// BenefitsAttachedToPayroll returns the payroll's non-deleted benefits via
// non-deleted link rows, ordered by code for stable exports.
func BenefitsAttachedToPayroll(tx *gorm.DB, payrollId string) ([]BenefitConsumption, error) {
	var benefits []BenefitConsumption
	err := tx.
		Joins("JOIN payroll_benefit_consumptions pbc ON pbc.benefit_id = benefit_consumptions.id").
		Where("pbc.payroll_id = ? AND pbc.is_deleted = 0", payrollId).
		Where("benefit_consumptions.is_deleted = 0").
		Order("benefit_consumptions.code ASC").
		Find(&benefits).Error
	return benefits, err
}

// PayrollIdForBenefit resolves the payroll a benefit is currently linked to.
func PayrollIdForBenefit(tx *gorm.DB, benefitId string) (string, error) {
	var link PayrollBenefitConsumption
	err := tx.Where("benefit_id = ? AND is_deleted = 0", benefitId).First(&link).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", fmt.Errorf("%w: benefit %s has no payroll", utils.ErrNotFound, benefitId)
		}
		return "", err
	}
	return link.PayrollId, nil
}

// AttachBenefitToPayroll creates the link row.
func AttachBenefitToPayroll(tx *gorm.DB, payrollId, benefitId string) error {
	link := PayrollBenefitConsumption{
		ID:        uuid.NewString(),
		PayrollId: payrollId,
		BenefitId: benefitId,
	}
	return tx.Create(&link).Error
}

// CreateBenefitAttachment links a benefit to its funding bill.
func CreateBenefitAttachment(tx *gorm.DB, benefitId, billId string) error {
	att := BenefitAttachment{
		ID:        uuid.NewString(),
		BenefitId: benefitId,
		BillId:    billId,
	}
	return tx.Create(&att).Error
}

// BenefitStatusUpdate is the payment-request payload for one benefit.
type BenefitStatusUpdate struct {
	BenefitId   string  `json:"benefit_id" binding:"required"`
	NewStatus   string  `json:"new_status" binding:"required"`
	Receipt     *string `json:"receipt"`
	PaymentDate *string `json:"payment_date"`
	Notes       *string `json:"notes"`
}

var allowedPaymentRequestStatuses = map[BenefitConsumptionStatus]bool{
	BenefitStatusApproveForPayment: true,
	BenefitStatusRejected:          true,
}

// ValidateBenefitStatusUpdate applies the payment-request rules: the allowed
// set is checked first, then the cross-field requirements for the target
// status.
func ValidateBenefitStatusUpdate(upd BenefitStatusUpdate) (BenefitConsumptionStatus, error) {
	status, err := ParseBenefitStatus(upd.NewStatus)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrValidation, err)
	}
	if !allowedPaymentRequestStatuses[status] {
		return "", fmt.Errorf("%w: status %s cannot be set through payment requests", utils.ErrValidation, status)
	}
	if status == BenefitStatusReconciled {
		if upd.Receipt == nil || *upd.Receipt == "" {
			return "", fmt.Errorf("%w: receipt is required for %s", utils.ErrValidation, status)
		}
		if upd.PaymentDate == nil || *upd.PaymentDate == "" {
			return "", fmt.Errorf("%w: payment_date is required for %s", utils.ErrValidation, status)
		}
	}
	if status == BenefitStatusRejected {
		if upd.Notes == nil || *upd.Notes == "" {
			return "", fmt.Errorf("%w: notes are required for %s", utils.ErrValidation, status)
		}
	}
	return status, nil
}

// UpdateBenefitStatus applies a validated payment-request update to one
// benefit, enforcing the benefit state machine and receipt uniqueness.
func UpdateBenefitStatus(ctx context.Context, tx *gorm.DB, upd BenefitStatusUpdate) error {
	status, err := ValidateBenefitStatusUpdate(upd)
	if err != nil {
		return err
	}
	benefit, err := GetBenefitById(ctx, tx, upd.BenefitId)
	if err != nil {
		return err
	}
	if !benefit.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: benefit %s %s -> %s", utils.ErrInvalidState, benefit.ID, benefit.Status, status)
	}

	updates := map[string]interface{}{"status": status}
	ext := benefit.JsonExt
	if upd.Receipt != nil && *upd.Receipt != "" {
		inUse, err := ReceiptInUse(tx, *upd.Receipt, benefit.ID)
		if err != nil {
			return err
		}
		if inUse {
			return fmt.Errorf("%w: receipt %s already used", utils.ErrValidation, *upd.Receipt)
		}
		updates["receipt"] = *upd.Receipt
	}
	if upd.PaymentDate != nil {
		ext.PaymentDate = *upd.PaymentDate
	}
	if upd.Notes != nil {
		ext.Notes = *upd.Notes
	}
	updates["json_ext"] = ext

	res := tx.Model(&BenefitConsumption{}).
		Where("id = ? AND status = ? AND is_deleted = 0", benefit.ID, benefit.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: benefit %s changed concurrently", utils.ErrInvalidState, benefit.ID)
	}
	return nil
}

// BenefitPage is one page of a payment point's benefit listing.
type BenefitPage struct {
	Benefits []BenefitConsumption `json:"benefits"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// GetBenefitsByPaymentPoint lists benefits in the given status across all
// payrolls assigned to the named payment point, paginated.
func GetBenefitsByPaymentPoint(ctx context.Context, tx *gorm.DB, paymentPointName string, status BenefitConsumptionStatus, page, pageSize int) (*BenefitPage, error) {
	point, err := GetPaymentPointByName(ctx, paymentPointName)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	base := tx.Model(&BenefitConsumption{}).
		Joins("JOIN payroll_benefit_consumptions pbc ON pbc.benefit_id = benefit_consumptions.id AND pbc.is_deleted = 0").
		Joins("JOIN payrolls p ON p.id = pbc.payroll_id AND p.is_deleted = 0").
		Where("p.payment_point_id = ?", point.ID).
		Where("benefit_consumptions.status = ? AND benefit_consumptions.is_deleted = 0", status)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var benefits []BenefitConsumption
	if err := base.Session(&gorm.Session{}).
		Order("benefit_consumptions.code ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&benefits).Error; err != nil {
		return nil, err
	}
	return &BenefitPage{Benefits: benefits, Total: total, Page: page, PageSize: pageSize}, nil
}

// ValidateBenefitOwnership checks that the benefit belongs to a payroll
// assigned to the caller's payment point.
func ValidateBenefitOwnership(ctx context.Context, tx *gorm.DB, paymentPointName, benefitId string) error {
	point, err := GetPaymentPointByName(ctx, paymentPointName)
	if err != nil {
		return err
	}
	var count int64
	err = tx.Model(&PayrollBenefitConsumption{}).
		Joins("JOIN payrolls p ON p.id = payroll_benefit_consumptions.payroll_id AND p.is_deleted = 0").
		Where("payroll_benefit_consumptions.benefit_id = ? AND payroll_benefit_consumptions.is_deleted = 0", benefitId).
		Where("p.payment_point_id = ?", point.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: benefit %s does not belong to payment point %s",
			utils.ErrUnauthorized, benefitId, paymentPointName)
	}
	return nil
}
