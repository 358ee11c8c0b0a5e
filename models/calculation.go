package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CalculationEngine turns a beneficiary selection into benefit consumptions
// and their funding bills, inside the caller's transaction.
type CalculationEngine interface {
	Name() string
	Calculate(ctx context.Context, tx *gorm.DB, plan *PaymentPlan, userId string,
		dateFrom, dateTo *time.Time, beneficiaries []Beneficiary, payroll *Payroll) error
}

var calculationEngines = map[string]CalculationEngine{}

func RegisterCalculationEngine(engine CalculationEngine) {
	calculationEngines[engine.Name()] = engine
}

// EngineForPlan resolves the engine named by the plan's calculation field.
func EngineForPlan(plan *PaymentPlan) (CalculationEngine, error) {
	engine, ok := calculationEngines[plan.Calculation]
	if !ok {
		return nil, fmt.Errorf("%w: no calculation engine %q", utils.ErrConfiguration, plan.Calculation)
	}
	return engine, nil
}

func init() {
	RegisterCalculationEngine(&FixedAmountEngine{})
}

// FixedAmountEngine grants every selected beneficiary the plan's fixed
// amount: one benefit, one VALIDATED bill, and the links between them and
// the payroll.
type FixedAmountEngine struct{}

func (e *FixedAmountEngine) Name() string { return "fixed_amount" }

func (e *FixedAmountEngine) Calculate(ctx context.Context, tx *gorm.DB, plan *PaymentPlan, userId string,
	dateFrom, dateTo *time.Time, beneficiaries []Beneficiary, payroll *Payroll) error {
	if len(beneficiaries) == 0 {
		return fmt.Errorf("%w: no beneficiaries matched the payroll criteria", utils.ErrValidation)
	}
	for _, beneficiary := range beneficiaries {
		code := benefitCode(plan.Code)
		benefit := BenefitConsumption{
			ID:           uuid.NewString(),
			IndividualId: beneficiary.IndividualId,
			Code:         code,
			Amount:       plan.FixedAmount,
			Type:         plan.Calculation,
			Status:       BenefitStatusAccepted,
			DateDue:      dateTo,
		}
		if err := tx.Create(&benefit).Error; err != nil {
			return err
		}

		bill := Bill{
			ID:           uuid.NewString(),
			Code:         fmt.Sprintf("BILL-%s", code),
			SubjectType:  "benefit_consumption",
			SubjectId:    benefit.ID,
			ThirdPartyId: beneficiary.IndividualId,
			AmountTotal:  plan.FixedAmount,
			Status:       BillStatusValidated,
			DateBill:     dateFrom,
		}
		if err := tx.Create(&bill).Error; err != nil {
			return err
		}

		if err := CreateBenefitAttachment(tx, benefit.ID, bill.ID); err != nil {
			return err
		}
		if err := AttachBenefitToPayroll(tx, payroll.ID, benefit.ID); err != nil {
			return err
		}
	}
	return nil
}

func benefitCode(planCode string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return fmt.Sprintf("%s-%s", planCode, suffix)
}
