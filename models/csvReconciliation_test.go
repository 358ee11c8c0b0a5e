package models

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/shopspring/decimal"
)

func TestParseReconciliationCSVMapsColumnsByHeader(t *testing.T) {
	// column order differs from the export on purpose
	body := []byte("paid,receipt,benefit_code\nyes,R100,BC-001\nno,,BC-002\n")
	rows, err := ParseReconciliationCSV(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].BenefitCode != "BC-001" || rows[0].Receipt != "R100" || rows[0].Paid != "yes" {
		t.Fatalf("row 0 parsed wrong: %+v", rows[0])
	}
	if rows[1].Paid != "no" || rows[1].Receipt != "" {
		t.Fatalf("row 1 parsed wrong: %+v", rows[1])
	}
}

func TestParseReconciliationCSVMissingColumn(t *testing.T) {
	if _, err := ParseReconciliationCSV([]byte("benefit_code\nBC-001\n")); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseReconciliationCSV(nil); !errors.Is(err, utils.ErrValidation) {
		t.Fatalf("expected validation error for empty file, got %v", err)
	}
}

func TestValidateReconciliationRowChain(t *testing.T) {
	byCode := map[string]*BenefitConsumption{
		"BC-001": {ID: "b1", Code: "BC-001", Status: BenefitStatusAccepted},
	}

	cases := []struct {
		name    string
		row     ReconciliationRow
		seen    map[string]bool
		wantErr string
	}{
		{"empty code", ReconciliationRow{Paid: "yes", Receipt: "R1"}, nil, "benefit_code is empty"},
		{"bad paid value", ReconciliationRow{BenefitCode: "BC-001", Paid: "maybe", Receipt: "R1"}, nil, "paid must be"},
		{"missing receipt", ReconciliationRow{BenefitCode: "BC-001", Paid: "yes"}, nil, "receipt is required"},
		{"receipt twice in file", ReconciliationRow{BenefitCode: "BC-001", Paid: "yes", Receipt: "R1"},
			map[string]bool{"R1": true}, "appears twice"},
	}
	for _, tc := range cases {
		seen := tc.seen
		if seen == nil {
			seen = map[string]bool{}
		}
		_, err := ValidateReconciliationRow(context.Background(), nil, tc.row, byCode, seen)
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: got %v, want error containing %q", tc.name, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, utils.ErrValidation) {
			t.Errorf("%s: error is not a validation error: %v", tc.name, err)
		}
	}
}

func TestWriteReconciliationCSVPaidColumn(t *testing.T) {
	rows := []ReconciliationRow{
		{BenefitCode: "BC-001", Amount: "100.00", Status: "RECONCILED", Receipt: "R1", Paid: "yes"},
		{BenefitCode: "BC-002", Amount: "100.00", Status: "ACCEPTED", Paid: "no"},
	}
	var buf bytes.Buffer
	if err := WriteReconciliationCSV(&buf, rows); err != nil {
		t.Fatal(err)
	}

	parsed, err := ParseReconciliationCSV(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if parsed[0].Paid != "yes" || parsed[1].Paid != "no" {
		t.Fatalf("paid column did not round-trip: %+v", parsed)
	}
}

func TestValidateBenefitStatusUpdateRules(t *testing.T) {
	receipt := "R1"
	date := "2026-08-01"
	notes := "beneficiary unreachable"

	if _, err := ValidateBenefitStatusUpdate(BenefitStatusUpdate{BenefitId: "b1", NewStatus: "RECONCILED",
		Receipt: &receipt, PaymentDate: &date}); err == nil {
		t.Fatal("RECONCILED must be rejected by the payment-request allowed set")
	}
	if _, err := ValidateBenefitStatusUpdate(BenefitStatusUpdate{BenefitId: "b1", NewStatus: "ACCEPTED"}); err == nil {
		t.Fatal("ACCEPTED must be rejected")
	}
	if _, err := ValidateBenefitStatusUpdate(BenefitStatusUpdate{BenefitId: "b1", NewStatus: "REJECTED"}); err == nil {
		t.Fatal("REJECTED without notes must fail")
	}
	status, err := ValidateBenefitStatusUpdate(BenefitStatusUpdate{BenefitId: "b1", NewStatus: "REJECTED", Notes: &notes})
	if err != nil {
		t.Fatal(err)
	}
	if status != BenefitStatusRejected {
		t.Fatalf("got %s", status)
	}
	if _, err := ValidateBenefitStatusUpdate(BenefitStatusUpdate{BenefitId: "b1", NewStatus: "APPROVE_FOR_PAYMENT"}); err != nil {
		t.Fatal(err)
	}
}

func TestFixedAmountEngineRegistered(t *testing.T) {
	plan := &PaymentPlan{Calculation: "fixed_amount", FixedAmount: decimal.RequireFromString("120.50")}
	engine, err := EngineForPlan(plan)
	if err != nil {
		t.Fatal(err)
	}
	if engine.Name() != "fixed_amount" {
		t.Fatalf("got %s", engine.Name())
	}
	if _, err := EngineForPlan(&PaymentPlan{Calculation: "percentage"}); !errors.Is(err, utils.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
