package models_test

import (
	"fmt"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/workflow"
)

// seedReconcilablePayroll creates a payroll with generated benefits and
// advances it to AWAITING_FOR_RECONCILIATION so uploads are accepted.
func seedReconcilablePayroll(t *testing.T, beneficiaries int) (*models.Payroll, []models.BenefitConsumption) {
	t.Helper()
	ctx := testContext()
	db := config.GetDB()
	logger := config.GetLogger()

	plan, cycle := seedPlanWithBeneficiaries(t, beneficiaries)
	payroll, err := models.CreatePayroll(ctx, models.CreationParams{
		Name:           "csv batch",
		PaymentPlanId:  plan.ID,
		PaymentCycleId: cycle.ID,
		PaymentMethod:  "MANUAL_CSV",
	})
	if err != nil {
		t.Fatal(err)
	}

	var rec models.PayrollQueueRecord
	if err := db.Where("payroll_id = ? AND kind = ?", payroll.ID, config.JobKindGenerateBenefits).First(&rec).Error; err != nil {
		t.Fatal(err)
	}
	if err := workflow.ProcessPayrollGeneration(db, logger, models.ConvertToPubSubMessage(rec)); err != nil {
		t.Fatal(err)
	}

	for _, step := range []struct{ from, to models.PayrollStatus }{
		{models.PayrollStatusPendingApproval, models.PayrollStatusApproveForRelease},
		{models.PayrollStatusApproveForRelease, models.PayrollStatusOngoing},
		{models.PayrollStatusOngoing, models.PayrollStatusAwaitingReconciliation},
	} {
		if err := models.TransitionStatus(db, payroll, step.from, step.to); err != nil {
			t.Fatal(err)
		}
	}

	benefits, err := models.BenefitsAttachedToPayroll(db, payroll.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(benefits) != beneficiaries {
		t.Fatalf("expected %d benefits, got %d", beneficiaries, len(benefits))
	}
	return payroll, benefits
}

func uploadCSV(t *testing.T, payrollId string, lines ...string) *models.UploadReport {
	t.Helper()
	body := "benefit_code,receipt,paid\n" + strings.Join(lines, "\n") + "\n"
	rep, err := models.ProcessReconciliationFile(testContext(), payrollId, "upload.csv", []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	return rep
}

func TestCsvUploadSettlesPaidRows(t *testing.T) {
	integrationDB(t)
	db := config.GetDB()
	payroll, benefits := seedReconcilablePayroll(t, 3)

	// fresh export carries a blank paid column for open rows
	rows, err := models.BuildReconciliationRows(db, payroll.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		if row.Paid != "" {
			t.Fatalf("open benefit %s exported paid=%q, want blank", row.BenefitCode, row.Paid)
		}
	}

	rep := uploadCSV(t, payroll.ID,
		fmt.Sprintf("%s,R-001,yes", benefits[0].Code),
		fmt.Sprintf("%s,R-002,yes", benefits[1].Code),
		fmt.Sprintf("%s,R-003,", benefits[2].Code),
	)
	if rep.Status != models.CsvUploadStatusSuccess {
		t.Fatalf("upload status %s, errors %v", rep.Status, rep.Errors)
	}
	if rep.Reconciled != 2 || rep.Skipped != 1 {
		t.Fatalf("reconciled=%d skipped=%d", rep.Reconciled, rep.Skipped)
	}

	settled, err := models.GetBenefitById(testContext(), db, benefits[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if settled.Status != models.BenefitStatusReconciled || settled.Receipt == nil || *settled.Receipt != "R-001" {
		t.Fatalf("benefit not settled: %+v", settled)
	}

	bill, err := models.BillForBenefit(db, benefits[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if bill.Status != models.BillStatusReconciliated {
		t.Fatalf("bill status %s", bill.Status)
	}
	var detail models.DetailPaymentInvoice
	if err := db.Where("subject_id = ? AND reconciliation_id = ?", bill.ID, "R-001").First(&detail).Error; err != nil {
		t.Fatalf("settlement detail missing: %v", err)
	}
	if !detail.AmountReceived.Equal(bill.AmountTotal) {
		t.Fatalf("detail amount %s, bill total %s", detail.AmountReceived, bill.AmountTotal)
	}

	// re-export now marks the settled rows
	rows, err = models.BuildReconciliationRows(db, payroll.ID)
	if err != nil {
		t.Fatal(err)
	}
	paid := 0
	for _, row := range rows {
		if row.Paid == "yes" {
			paid++
		}
	}
	if paid != 2 {
		t.Fatalf("re-export shows %d paid rows, want 2", paid)
	}
}

func TestCsvUploadInvalidRowRollsBackEverything(t *testing.T) {
	integrationDB(t)
	db := config.GetDB()
	payroll, benefits := seedReconcilablePayroll(t, 2)

	rep := uploadCSV(t, payroll.ID,
		fmt.Sprintf("%s,R-010,yes", benefits[0].Code),
		"NO-SUCH-CODE,R-011,yes",
	)
	if rep.Status != models.CsvUploadStatusFail {
		t.Fatalf("upload status %s, want FAIL", rep.Status)
	}
	if len(rep.Errors) == 0 || !strings.Contains(rep.Errors[0].Error, "not found") {
		t.Fatalf("errors: %v", rep.Errors)
	}
	if rep.Reconciled != 0 {
		t.Fatalf("reconciled=%d after failed upload", rep.Reconciled)
	}

	// the valid row must not have been applied
	untouched, err := models.GetBenefitById(testContext(), db, benefits[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if untouched.Status != models.BenefitStatusAccepted || untouched.Receipt != nil {
		t.Fatalf("settlement leaked through a failed upload: %+v", untouched)
	}
	bill, err := models.BillForBenefit(db, benefits[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if bill.Status != models.BillStatusValidated {
		t.Fatalf("bill status %s after failed upload", bill.Status)
	}

	// the FAIL record survives the rollback
	upload, err := models.GetCsvUploadById(testContext(), db, rep.UploadId)
	if err != nil {
		t.Fatal(err)
	}
	if upload.Status != models.CsvUploadStatusFail {
		t.Fatalf("upload record status %s", upload.Status)
	}
}

func TestCsvUploadDistinguishesForeignBenefit(t *testing.T) {
	integrationDB(t)
	payroll, _ := seedReconcilablePayroll(t, 1)
	_, otherBenefits := seedReconcilablePayroll(t, 1)

	rep := uploadCSV(t, payroll.ID,
		fmt.Sprintf("%s,R-020,yes", otherBenefits[0].Code),
	)
	if rep.Status != models.CsvUploadStatusFail {
		t.Fatalf("upload status %s, want FAIL", rep.Status)
	}
	if len(rep.Errors) == 0 || !strings.Contains(rep.Errors[0].Error, "not part of the payroll") {
		t.Fatalf("errors: %v", rep.Errors)
	}
}

func TestCsvUploadRejectsReceiptReuseAcrossUploads(t *testing.T) {
	integrationDB(t)
	db := config.GetDB()
	payroll, benefits := seedReconcilablePayroll(t, 2)

	rep := uploadCSV(t, payroll.ID, fmt.Sprintf("%s,R-DUP,yes", benefits[0].Code))
	if rep.Status != models.CsvUploadStatusSuccess {
		t.Fatalf("first upload: %s, errors %v", rep.Status, rep.Errors)
	}

	rep = uploadCSV(t, payroll.ID, fmt.Sprintf("%s,R-DUP,yes", benefits[1].Code))
	if rep.Status != models.CsvUploadStatusFail {
		t.Fatalf("second upload status %s, want FAIL", rep.Status)
	}
	if len(rep.Errors) == 0 || !strings.Contains(rep.Errors[0].Error, "already used") {
		t.Fatalf("errors: %v", rep.Errors)
	}

	second, err := models.GetBenefitById(testContext(), db, benefits[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != models.BenefitStatusAccepted || second.Receipt != nil {
		t.Fatalf("second benefit changed by rejected upload: %+v", second)
	}
}
