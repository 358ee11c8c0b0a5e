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

// Task sources and business events. The business event names the executor
// that runs when the task is approved.
const (
	TaskSourcePayroll               = "payroll"
	TaskSourcePayrollDelete         = "payroll_delete"
	TaskSourcePayrollReconciliation = "payroll_reconciliation"
	TaskSourcePayrollReject         = "payroll_reject"

	BusinessEventPayrollAccept         = "PayrollService.accept"
	BusinessEventPayrollDelete         = "PayrollService.delete"
	BusinessEventPayrollReconciliation = "PayrollService.reconcile"
	BusinessEventPayrollReject         = "PayrollService.reject_approved"
)

// Task is a pending approval for a payroll operation. Approving it runs the
// executor bound to its business event, failing it rejects the operation.
type Task struct {
	ID            string     `gorm:"primary_key;size:36" json:"id"`
	Source        string     `gorm:"size:100;not null;index" json:"source"`
	EntityId      string     `gorm:"size:36;not null;index" json:"entity_id"`
	BusinessEvent string     `gorm:"size:150;not null" json:"business_event"`
	Status        TaskStatus `gorm:"size:30;not null;default:RECEIVED;index" json:"status"`
	Data          JSONMap    `gorm:"type:json" json:"data"`
	CreatedBy     string     `gorm:"size:36" json:"created_by"`
	ResolvedBy    string     `gorm:"size:36" json:"resolved_by"`
	IsDeleted     bool       `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateTask(ctx context.Context, tx *gorm.DB, source, entityId, businessEvent string, data JSONMap) error {
	userId, _ := utils.GetUserIdFromContext(ctx)
	task := Task{
		ID:            uuid.NewString(),
		Source:        source,
		EntityId:      entityId,
		BusinessEvent: businessEvent,
		Status:        TaskStatusReceived,
		Data:          data,
		CreatedBy:     userId,
	}
	return tx.WithContext(ctx).Create(&task).Error
}

func GetTaskById(ctx context.Context, tx *gorm.DB, id string) (*Task, error) {
	var task Task
	if err := tx.WithContext(ctx).Where("id = ? AND is_deleted = 0", id).First(&task).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: task %s", utils.ErrNotFound, id)
		}
		return nil, err
	}
	return &task, nil
}

// ApproveTask marks the task completed and runs the executor bound to its
// business event. The status flip is guarded so a task resolves once.
func ApproveTask(ctx context.Context, tx *gorm.DB, taskId string) error {
	task, err := GetTaskById(ctx, tx, taskId)
	if err != nil {
		return err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	res := tx.Model(&Task{}).
		Where("id = ? AND status = ?", task.ID, TaskStatusReceived).
		Updates(map[string]interface{}{
			"status":      TaskStatusCompleted,
			"resolved_by": userId,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: task %s already resolved", utils.ErrInvalidState, task.ID)
	}
	return runTaskExecutor(ctx, task)
}

// FailTask marks the task failed; the payroll operation it guarded is
// rejected where one applies.
func FailTask(ctx context.Context, tx *gorm.DB, taskId string) error {
	task, err := GetTaskById(ctx, tx, taskId)
	if err != nil {
		return err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	res := tx.Model(&Task{}).
		Where("id = ? AND status = ?", task.ID, TaskStatusReceived).
		Updates(map[string]interface{}{
			"status":      TaskStatusFailed,
			"resolved_by": userId,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: task %s already resolved", utils.ErrInvalidState, task.ID)
	}
	if task.BusinessEvent == BusinessEventPayrollAccept {
		return RejectPayroll(ctx, task.EntityId)
	}
	return nil
}

func enqueueReconcileJob(ctx context.Context, payrollId string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return EnqueuePayrollJob(ctx, tx, config.JobKindReconcile, payrollId, nil)
	})
}

func runTaskExecutor(ctx context.Context, task *Task) error {
	switch task.BusinessEvent {
	case BusinessEventPayrollAccept:
		return AcceptPayroll(ctx, task.EntityId)
	case BusinessEventPayrollDelete:
		return ExecutePayrollDelete(ctx, task.EntityId)
	case BusinessEventPayrollReconciliation:
		return enqueueReconcileJob(ctx, task.EntityId)
	case BusinessEventPayrollReject:
		return RejectPayroll(ctx, task.EntityId)
	default:
		return fmt.Errorf("%w: unknown business event %s", utils.ErrConfiguration, task.BusinessEvent)
	}
}
