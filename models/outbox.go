package models

import (
	"time"
)

// PayrollQueueRecord implements the transactional outbox: job rows are
// written inside the caller's DB transaction and published to Pub/Sub (or
// processed directly) after commit by a dispatcher.
type PayrollQueueRecord struct {
	ID               int                 `gorm:"primary_key" json:"id"`
	Kind             string              `gorm:"size:64;not null;index" json:"kind"`
	PayrollId        string              `gorm:"size:36;not null;index" json:"payroll_id"`
	UserId           string              `gorm:"size:36" json:"user_id"`
	Username         string              `gorm:"size:100" json:"username"`
	Payload          []byte              `gorm:"type:mediumblob" json:"payload"`
	IsProcessed      bool                `gorm:"not null;default:false;index" json:"is_processed"`
	PublishStatus    OutboxPublishStatus `gorm:"size:20;not null;default:PENDING" json:"publish_status"`
	LastProcessError *string             `gorm:"type:text" json:"last_process_error"`
	PublishAttempts  int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time          `gorm:"index" json:"next_attempt_at"`
	LockedAt         *time.Time          `json:"locked_at"`
	LockedBy         *string             `gorm:"size:100" json:"locked_by"`
	CorrelationId    string              `gorm:"size:64" json:"correlation_id"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}
