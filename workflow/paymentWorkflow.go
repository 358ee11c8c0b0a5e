package workflow

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/payment"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const payrollLockTTL = 5 * time.Minute

// acquirePayrollLock serializes dispatch and reconcile jobs for one payroll
// across worker instances.
func acquirePayrollLock(msg config.PubSubMessage) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	lock, err := locker.Obtain(config.GetRedisContext(), "payroll:"+msg.PayrollId, payrollLockTTL, nil)
	if err == redislock.ErrNotObtained {
		return nil, fmt.Errorf("payroll %s is locked by another worker", msg.PayrollId)
	}
	return lock, err
}

// ProcessPaymentDispatch hands an approved payroll to its payment strategy.
// The strategy owns the ONGOING transition, so a payroll that already moved
// on is rejected by the transition guard rather than dispatched twice.
func ProcessPaymentDispatch(db *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	ctx := contextFromMessage(msg)

	lock, err := acquirePayrollLock(msg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release(config.GetRedisContext()) }()

	payroll, err := models.GetPayrollById(ctx, db, msg.PayrollId)
	if err != nil {
		return err
	}
	strategy, err := payment.ForMethod(payroll.PaymentMethod)
	if err != nil {
		config.LogError(logger, "paymentWorkflow.go", "ProcessPaymentDispatch", "resolve strategy", payroll.PaymentMethod, err)
		return err
	}
	if err := strategy.MakePayment(ctx, payroll); err != nil {
		config.LogError(logger, "paymentWorkflow.go", "ProcessPaymentDispatch", "make payment", payroll.ID, err)
		return err
	}
	logger.WithFields(logrus.Fields{
		"payroll_id": payroll.ID,
		"method":     payroll.PaymentMethod,
	}).Info("payroll dispatched to gateway")
	return nil
}
