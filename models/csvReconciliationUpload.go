package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CsvReconciliationUpload is the audit record of one reconciliation file.
// The file body is kept so a disputed upload can be re-inspected.
type CsvReconciliationUpload struct {
	ID        string          `gorm:"primary_key;size:36" json:"id"`
	PayrollId string          `gorm:"size:36;not null;index" json:"payroll_id"`
	FileName  string          `gorm:"size:255;not null" json:"file_name"`
	FileBody  []byte          `gorm:"type:mediumblob" json:"-"`
	Status    CsvUploadStatus `gorm:"size:30;not null;default:IN_PROGRESS" json:"status"`
	Error     *string         `gorm:"type:text" json:"error"`
	CreatedBy string          `gorm:"size:36" json:"created_by"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateCsvUpload(ctx context.Context, tx *gorm.DB, payrollId, fileName string, body []byte) (*CsvReconciliationUpload, error) {
	userId, _ := utils.GetUserIdFromContext(ctx)
	upload := CsvReconciliationUpload{
		ID:        uuid.NewString(),
		PayrollId: payrollId,
		FileName:  fileName,
		FileBody:  body,
		Status:    CsvUploadStatusInProgress,
		CreatedBy: userId,
	}
	if err := tx.WithContext(ctx).Create(&upload).Error; err != nil {
		return nil, err
	}
	return &upload, nil
}

func FinishCsvUpload(tx *gorm.DB, uploadId string, status CsvUploadStatus, uploadErr error) error {
	updates := map[string]interface{}{"status": status}
	if uploadErr != nil {
		updates["error"] = uploadErr.Error()
	}
	return tx.Model(&CsvReconciliationUpload{}).
		Where("id = ?", uploadId).
		Updates(updates).Error
}

func GetCsvUploadById(ctx context.Context, tx *gorm.DB, id string) (*CsvReconciliationUpload, error) {
	var upload CsvReconciliationUpload
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&upload).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: csv upload %s", utils.ErrNotFound, id)
		}
		return nil, err
	}
	return &upload, nil
}
