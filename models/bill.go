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

// Bill is the chargeable artifact behind one benefit consumption. Bills are
// created alongside benefits during generation and settled during
// reconciliation.
type Bill struct {
	ID          string          `gorm:"primary_key;size:36" json:"id"`
	Code        string          `gorm:"size:120;not null;uniqueIndex" json:"code"`
	SubjectType string          `gorm:"size:50;not null" json:"subject_type"`
	SubjectId   string          `gorm:"size:36;not null;index" json:"subject_id"`
	ThirdPartyId string         `gorm:"size:36;index" json:"third_party_id"`
	AmountTotal decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount_total"`
	Status      BillStatus      `gorm:"size:30;not null;default:VALIDATED;index" json:"status"`
	DateBill    *time.Time      `json:"date_bill"`
	IsDeleted   bool            `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentInvoice records a settlement against reconciled bills. The
// reconciliation id carries the receipt that proved the payment.
type PaymentInvoice struct {
	ID                   string                               `gorm:"primary_key;size:36" json:"id"`
	CodeExt              string                               `gorm:"size:120;not null" json:"code_ext"`
	Label                string                               `gorm:"size:255" json:"label"`
	ReconciliationStatus PaymentInvoiceReconciliationStatus   `gorm:"size:40;not null" json:"reconciliation_status"`
	FeesAmount           decimal.Decimal                      `gorm:"type:decimal(18,2);not null;default:0" json:"fees_amount"`
	AmountReceived       decimal.Decimal                      `gorm:"type:decimal(18,2);not null" json:"amount_received"`
	DatePayment          *time.Time                           `json:"date_payment"`
	PaymentOrigin        string                               `gorm:"size:100" json:"payment_origin"`
	IsDeleted            bool                                 `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt            time.Time                            `gorm:"autoCreateTime" json:"created_at"`
}

// DetailPaymentInvoice ties a payment invoice back to the bill it settles.
type DetailPaymentInvoice struct {
	ID               string              `gorm:"primary_key;size:36" json:"id"`
	PaymentId        string              `gorm:"size:36;not null;index" json:"payment_id"`
	SubjectType      string              `gorm:"size:50;not null" json:"subject_type"`
	SubjectId        string              `gorm:"size:36;not null;index" json:"subject_id"`
	Status           DetailPaymentStatus `gorm:"size:30;not null" json:"status"`
	FeesAmount       decimal.Decimal     `gorm:"type:decimal(18,2);not null;default:0" json:"fees_amount"`
	AmountReceived   decimal.Decimal     `gorm:"type:decimal(18,2);not null" json:"amount_received"`
	ReconciliationId string              `gorm:"size:120" json:"reconciliation_id"`
	IsDeleted        bool                `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

func GetBillById(ctx context.Context, tx *gorm.DB, id string) (*Bill, error) {
	var bill Bill
	if err := tx.WithContext(ctx).Where("id = ? AND is_deleted = 0", id).First(&bill).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: bill %s", utils.ErrNotFound, id)
		}
		return nil, err
	}
	return &bill, nil
}

// BillsAttachedToPayroll returns the payroll's VALIDATED bills via the
// benefit attachments of non-deleted linked benefits.
func BillsAttachedToPayroll(tx *gorm.DB, payrollId string) ([]Bill, error) {
	var bills []Bill
	err := tx.
		Joins("JOIN benefit_attachments ba ON ba.bill_id = bills.id AND ba.is_deleted = 0").
		Joins("JOIN payroll_benefit_consumptions pbc ON pbc.benefit_id = ba.benefit_id AND pbc.is_deleted = 0").
		Where("pbc.payroll_id = ?", payrollId).
		Where("bills.status = ? AND bills.is_deleted = 0", BillStatusValidated).
		Order("bills.code ASC").
		Find(&bills).Error
	return bills, err
}

// BillForBenefit resolves the non-deleted bill attached to a benefit.
func BillForBenefit(tx *gorm.DB, benefitId string) (*Bill, error) {
	var bill Bill
	err := tx.
		Joins("JOIN benefit_attachments ba ON ba.bill_id = bills.id AND ba.is_deleted = 0").
		Where("ba.benefit_id = ? AND bills.is_deleted = 0", benefitId).
		First(&bill).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: no bill for benefit %s", utils.ErrNotFound, benefitId)
		}
		return nil, err
	}
	return &bill, nil
}

func SetBillStatus(tx *gorm.DB, billId string, status BillStatus) error {
	return tx.Model(&Bill{}).
		Where("id = ? AND is_deleted = 0", billId).
		Update("status", status).Error
}

// CreatePaymentInvoiceForBill records a full settlement for a bill: the
// amount received equals the bill total and the reconciliation id carries
// the receipt.
func CreatePaymentInvoiceForBill(tx *gorm.DB, bill *Bill, receipt string, datePayment *time.Time) error {
	invoice := PaymentInvoice{
		ID:                   uuid.NewString(),
		CodeExt:              bill.Code,
		Label:                fmt.Sprintf("Payment for %s", bill.Code),
		ReconciliationStatus: PaymentInvoiceReconciliated,
		AmountReceived:       bill.AmountTotal,
		DatePayment:          datePayment,
		PaymentOrigin:        "payroll reconciliation",
	}
	if err := tx.Create(&invoice).Error; err != nil {
		return err
	}
	detail := DetailPaymentInvoice{
		ID:               uuid.NewString(),
		PaymentId:        invoice.ID,
		SubjectType:      "bill",
		SubjectId:        bill.ID,
		Status:           DetailPaymentStatusAccepted,
		AmountReceived:   bill.AmountTotal,
		ReconciliationId: receipt,
	}
	return tx.Create(&detail).Error
}

// ReissueUnpaidBill clones an unpaid bill under a dated code suffix so the
// charge can be carried into a follow-up payroll, and marks the original
// UNPAID.
func ReissueUnpaidBill(tx *gorm.DB, bill *Bill, now time.Time) (*Bill, error) {
	if err := SetBillStatus(tx, bill.ID, BillStatusUnpaid); err != nil {
		return nil, err
	}
	clone := Bill{
		ID:           uuid.NewString(),
		Code:         fmt.Sprintf("%s-%s-Unpaid", bill.Code, now.Format("2006-01-02")),
		SubjectType:  bill.SubjectType,
		SubjectId:    bill.SubjectId,
		ThirdPartyId: bill.ThirdPartyId,
		AmountTotal:  bill.AmountTotal,
		Status:       BillStatusValidated,
		DateBill:     &now,
	}
	if err := tx.Create(&clone).Error; err != nil {
		return nil, err
	}
	return &clone, nil
}
