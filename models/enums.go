package models

import "errors"

type PayrollStatus string

const (
	PayrollStatusPendingApproval       PayrollStatus = "PENDING_APPROVAL"
	PayrollStatusFailed                PayrollStatus = "FAILED"
	PayrollStatusApproveForRelease     PayrollStatus = "APPROVE_FOR_RELEASE"
	PayrollStatusRejected              PayrollStatus = "REJECTED"
	PayrollStatusOngoing               PayrollStatus = "ONGOING"
	PayrollStatusAwaitingReconciliation PayrollStatus = "AWAITING_FOR_RECONCILIATION"
	PayrollStatusReconciled            PayrollStatus = "RECONCILED"
)

// payrollTransitions defines the legal edges of the payroll state machine.
// FAILED is only reachable from the generation stage and is the sole state a
// retrigger may leave from; RECONCILED is terminal.
var payrollTransitions = map[PayrollStatus][]PayrollStatus{
	PayrollStatusPendingApproval:        {PayrollStatusApproveForRelease, PayrollStatusRejected, PayrollStatusFailed},
	PayrollStatusFailed:                 {PayrollStatusPendingApproval},
	PayrollStatusApproveForRelease:      {PayrollStatusOngoing},
	PayrollStatusOngoing:                {PayrollStatusAwaitingReconciliation},
	PayrollStatusAwaitingReconciliation: {PayrollStatusReconciled},
	PayrollStatusRejected:               {},
	PayrollStatusReconciled:             {},
}

func (s PayrollStatus) Valid() bool {
	_, ok := payrollTransitions[s]
	return ok
}

func (s PayrollStatus) CanTransitionTo(next PayrollStatus) bool {
	for _, allowed := range payrollTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type BenefitConsumptionStatus string

const (
	BenefitStatusAccepted          BenefitConsumptionStatus = "ACCEPTED"
	BenefitStatusApproveForPayment BenefitConsumptionStatus = "APPROVE_FOR_PAYMENT"
	BenefitStatusReconciled        BenefitConsumptionStatus = "RECONCILED"
	BenefitStatusRejected          BenefitConsumptionStatus = "REJECTED"
)

var benefitTransitions = map[BenefitConsumptionStatus][]BenefitConsumptionStatus{
	BenefitStatusAccepted:          {BenefitStatusApproveForPayment, BenefitStatusReconciled, BenefitStatusRejected},
	BenefitStatusApproveForPayment: {BenefitStatusReconciled, BenefitStatusRejected},
	BenefitStatusReconciled:        {},
	BenefitStatusRejected:          {},
}

func (s BenefitConsumptionStatus) Valid() bool {
	_, ok := benefitTransitions[s]
	return ok
}

func (s BenefitConsumptionStatus) CanTransitionTo(next BenefitConsumptionStatus) bool {
	for _, allowed := range benefitTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type BillStatus string

const (
	BillStatusValidated    BillStatus = "VALIDATED"
	BillStatusPaid         BillStatus = "PAID"
	BillStatusUnpaid       BillStatus = "UNPAID"
	BillStatusReconciliated BillStatus = "RECONCILIATED"
)

type PaymentInvoiceReconciliationStatus string

const (
	PaymentInvoiceReconciliated PaymentInvoiceReconciliationStatus = "RECONCILIATED"
	PaymentInvoiceNotReconciled PaymentInvoiceReconciliationStatus = "NOT_RECONCILIATED"
)

type DetailPaymentStatus string

const (
	DetailPaymentStatusAccepted DetailPaymentStatus = "ACCEPTED"
	DetailPaymentStatusRejected DetailPaymentStatus = "REJECTED"
)

type CsvUploadStatus string

const (
	CsvUploadStatusInProgress     CsvUploadStatus = "IN_PROGRESS"
	CsvUploadStatusSuccess        CsvUploadStatus = "SUCCESS"
	CsvUploadStatusPartialSuccess CsvUploadStatus = "PARTIAL_SUCCESS"
	CsvUploadStatusFail           CsvUploadStatus = "FAIL"
)

type TaskStatus string

const (
	TaskStatusReceived TaskStatus = "RECEIVED"
	TaskStatusAccepted TaskStatus = "ACCEPTED"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed   TaskStatus = "FAILED"
)

type BeneficiaryStatus string

const (
	BeneficiaryStatusActive    BeneficiaryStatus = "ACTIVE"
	BeneficiaryStatusSuspended BeneficiaryStatus = "SUSPENDED"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusProcessing OutboxPublishStatus = "PROCESSING"
	OutboxPublishStatusSent       OutboxPublishStatus = "SENT"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusProcessed  OutboxPublishStatus = "PROCESSED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)

var ErrUnknownStatus = errors.New("unknown status value")

func ParseBenefitStatus(s string) (BenefitConsumptionStatus, error) {
	status := BenefitConsumptionStatus(s)
	if !status.Valid() {
		return "", ErrUnknownStatus
	}
	return status, nil
}

func ParsePayrollStatus(s string) (PayrollStatus, error) {
	status := PayrollStatus(s)
	if !status.Valid() {
		return "", ErrUnknownStatus
	}
	return status, nil
}
