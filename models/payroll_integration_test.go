package models_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"bitbucket.org/mmdatafocus/payroll_backend/appctx"
	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"bitbucket.org/mmdatafocus/payroll_backend/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payroll lifecycle integration harness.
//
// Usage: INTEGRATION_TESTS=1 go test ./models -run PayrollLifecycle -v
// Requires a MySQL instance configured via the usual DB_* env vars.

func integrationDB(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run DB-backed tests")
	}
	if config.GetDB() == nil {
		config.ConnectDatabaseWithRetry()
		models.MigrateTable()
	}
}

func testContext() context.Context {
	ctx := context.Background()
	ctx = appctx.Set(ctx, appctx.ContextKeyUserId, "test-user")
	ctx = appctx.Set(ctx, appctx.ContextKeyUsername, "tester")
	return ctx
}

func seedPlanWithBeneficiaries(t *testing.T, count int) (*models.PaymentPlan, *models.PaymentCycle) {
	t.Helper()
	db := config.GetDB()

	plan := models.PaymentPlan{
		ID:            uuid.NewString(),
		Code:          "PLAN-" + uuid.NewString()[:8],
		Name:          "integration plan",
		BenefitPlanId: uuid.NewString(),
		Calculation:   "fixed_amount",
		FixedAmount:   decimal.RequireFromString("100.00"),
	}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatal(err)
	}
	cycle := models.PaymentCycle{ID: uuid.NewString(), Code: "CYCLE-" + uuid.NewString()[:8]}
	if err := db.Create(&cycle).Error; err != nil {
		t.Fatal(err)
	}

	for i := 0; i < count; i++ {
		ind := models.Individual{ID: uuid.NewString(), FirstName: "Test", LastName: "Person"}
		if err := db.Create(&ind).Error; err != nil {
			t.Fatal(err)
		}
		ben := models.Beneficiary{
			ID:            uuid.NewString(),
			IndividualId:  ind.ID,
			BenefitPlanId: plan.BenefitPlanId,
			Status:        models.BeneficiaryStatusActive,
		}
		if err := db.Create(&ben).Error; err != nil {
			t.Fatal(err)
		}
	}
	return &plan, &cycle
}

func TestPayrollLifecycleGeneration(t *testing.T) {
	integrationDB(t)
	ctx := testContext()
	db := config.GetDB()
	logger := config.GetLogger()

	plan, cycle := seedPlanWithBeneficiaries(t, 3)

	payroll, err := models.CreatePayroll(ctx, models.CreationParams{
		Name:           "august batch",
		PaymentPlanId:  plan.ID,
		PaymentCycleId: cycle.ID,
		PaymentMethod:  "MANUAL_CSV",
	})
	if err != nil {
		t.Fatal(err)
	}
	if payroll.Status != models.PayrollStatusPendingApproval {
		t.Fatalf("status after create: %s", payroll.Status)
	}
	if payroll.JsonExt.CreationParams == nil || payroll.JsonExt.CreationParams.Name != "august batch" {
		t.Fatalf("creation params not stored: %+v", payroll.JsonExt)
	}

	var rec models.PayrollQueueRecord
	if err := db.Where("payroll_id = ? AND kind = ?", payroll.ID, config.JobKindGenerateBenefits).First(&rec).Error; err != nil {
		t.Fatalf("generation job not enqueued: %v", err)
	}

	if err := workflow.ProcessPayrollGeneration(db, logger, models.ConvertToPubSubMessage(rec)); err != nil {
		t.Fatal(err)
	}

	benefits, err := models.BenefitsAttachedToPayroll(db, payroll.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(benefits) != 3 {
		t.Fatalf("expected 3 benefits, got %d", len(benefits))
	}
	for _, b := range benefits {
		if !b.Amount.Equal(decimal.RequireFromString("100.00")) {
			t.Fatalf("benefit %s amount %s", b.Code, b.Amount)
		}
		if b.Status != models.BenefitStatusAccepted {
			t.Fatalf("benefit %s status %s", b.Code, b.Status)
		}
		if _, err := models.BillForBenefit(db, b.ID); err != nil {
			t.Fatalf("benefit %s has no bill: %v", b.Code, err)
		}
	}

	// retrigger is only legal from FAILED
	if err := models.RetriggerPayroll(ctx, payroll.ID); !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
}

func TestPayrollGenerationFailureIsAbsorbed(t *testing.T) {
	integrationDB(t)
	ctx := testContext()
	db := config.GetDB()
	logger := config.GetLogger()

	// plan with zero beneficiaries makes generation fail
	plan, cycle := seedPlanWithBeneficiaries(t, 0)

	payroll, err := models.CreatePayroll(ctx, models.CreationParams{
		Name:           "doomed batch",
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
		t.Fatalf("generation failure must be absorbed, got %v", err)
	}

	failed, err := models.GetPayrollById(ctx, db, payroll.ID)
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != models.PayrollStatusFailed {
		t.Fatalf("status after failed generation: %s", failed.Status)
	}
	if failed.JsonExt.CreationError == "" {
		t.Fatal("creation_error not recorded")
	}
	if failed.JsonExt.CreationParams == nil {
		t.Fatal("creation params must survive the failure")
	}

	// retrigger clears the error and goes back to PENDING_APPROVAL
	if err := models.RetriggerPayroll(ctx, payroll.ID); err != nil {
		t.Fatal(err)
	}
	retriggered, err := models.GetPayrollById(ctx, db, payroll.ID)
	if err != nil {
		t.Fatal(err)
	}
	if retriggered.Status != models.PayrollStatusPendingApproval {
		t.Fatalf("status after retrigger: %s", retriggered.Status)
	}
	if retriggered.JsonExt.CreationError != "" {
		t.Fatal("creation_error must be cleared on retrigger")
	}
}

func TestGuardedTransitionRejectsStaleState(t *testing.T) {
	integrationDB(t)
	db := config.GetDB()

	payroll := models.Payroll{
		ID:             uuid.NewString(),
		Name:           "guard test",
		PaymentPlanId:  uuid.NewString(),
		PaymentCycleId: uuid.NewString(),
		PaymentMethod:  "MANUAL_CSV",
		Status:         models.PayrollStatusOngoing,
	}
	if err := db.Create(&payroll).Error; err != nil {
		t.Fatal(err)
	}

	err := models.TransitionStatus(db, &payroll, models.PayrollStatusPendingApproval, models.PayrollStatusApproveForRelease)
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if err := models.TransitionStatus(db, &payroll, models.PayrollStatusOngoing, models.PayrollStatusAwaitingReconciliation); err != nil {
		t.Fatal(err)
	}
	if payroll.Status != models.PayrollStatusAwaitingReconciliation {
		t.Fatalf("in-memory status not updated: %s", payroll.Status)
	}
}
