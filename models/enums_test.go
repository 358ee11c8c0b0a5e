package models

import "testing"

func TestPayrollStatusTransitions(t *testing.T) {
	cases := []struct {
		from    PayrollStatus
		to      PayrollStatus
		allowed bool
	}{
		{PayrollStatusPendingApproval, PayrollStatusApproveForRelease, true},
		{PayrollStatusPendingApproval, PayrollStatusRejected, true},
		{PayrollStatusPendingApproval, PayrollStatusFailed, true},
		{PayrollStatusPendingApproval, PayrollStatusReconciled, false},
		{PayrollStatusFailed, PayrollStatusPendingApproval, true},
		{PayrollStatusFailed, PayrollStatusApproveForRelease, false},
		{PayrollStatusApproveForRelease, PayrollStatusOngoing, true},
		{PayrollStatusApproveForRelease, PayrollStatusRejected, false},
		{PayrollStatusOngoing, PayrollStatusAwaitingReconciliation, true},
		{PayrollStatusOngoing, PayrollStatusReconciled, false},
		{PayrollStatusAwaitingReconciliation, PayrollStatusReconciled, true},
		{PayrollStatusReconciled, PayrollStatusPendingApproval, false},
		{PayrollStatusRejected, PayrollStatusPendingApproval, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestBenefitStatusTransitions(t *testing.T) {
	cases := []struct {
		from    BenefitConsumptionStatus
		to      BenefitConsumptionStatus
		allowed bool
	}{
		{BenefitStatusAccepted, BenefitStatusApproveForPayment, true},
		{BenefitStatusAccepted, BenefitStatusReconciled, true},
		{BenefitStatusAccepted, BenefitStatusRejected, true},
		{BenefitStatusApproveForPayment, BenefitStatusReconciled, true},
		{BenefitStatusApproveForPayment, BenefitStatusRejected, true},
		{BenefitStatusApproveForPayment, BenefitStatusAccepted, false},
		{BenefitStatusReconciled, BenefitStatusAccepted, false},
		{BenefitStatusReconciled, BenefitStatusRejected, false},
		{BenefitStatusRejected, BenefitStatusAccepted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestParseBenefitStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseBenefitStatus("PAID"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	status, err := ParseBenefitStatus("APPROVE_FOR_PAYMENT")
	if err != nil {
		t.Fatal(err)
	}
	if status != BenefitStatusApproveForPayment {
		t.Fatalf("got %s", status)
	}
}
