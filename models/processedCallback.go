package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcessedCallback is the gateway acknowledgement replay guard: one row per
// (payroll, body digest) pair, enforced by a unique index. A duplicate
// delivery hits the index and is dropped without re-running the settlement.
type ProcessedCallback struct {
	ID         string    `gorm:"primary_key;size:36" json:"id"`
	PayrollId  string    `gorm:"size:36;not null;uniqueIndex:idx_callback_digest" json:"payroll_id"`
	BodyDigest string    `gorm:"size:64;not null;uniqueIndex:idx_callback_digest" json:"body_digest"`
	ReceivedAt time.Time `gorm:"autoCreateTime" json:"received_at"`
}

func CallbackDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// RecordCallback inserts the replay-guard row. It returns (false, nil) when
// the same callback was already processed.
func RecordCallback(tx *gorm.DB, payrollId string, body []byte) (bool, error) {
	rec := ProcessedCallback{
		ID:         uuid.NewString(),
		PayrollId:  payrollId,
		BodyDigest: CallbackDigest(body),
	}
	err := tx.Create(&rec).Error
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isDuplicateKeyError(err error) bool {
	if err == gorm.ErrDuplicatedKey {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "1062")
}
