package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentPlan ties a benefit plan to a fixed per-beneficiary amount. The
// real calculation engine is an external collaborator; the plan carries the
// inputs it needs.
type PaymentPlan struct {
	ID            string          `gorm:"primary_key;size:36" json:"id"`
	Code          string          `gorm:"size:50;not null" json:"code"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	BenefitPlanId string          `gorm:"size:36;not null;index" json:"benefit_plan_id"`
	Calculation   string          `gorm:"size:100;not null;default:fixed_amount" json:"calculation"`
	FixedAmount   decimal.Decimal `gorm:"type:decimal(18,2);default:0" json:"fixed_amount"`
	IsDeleted     bool            `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type PaymentCycle struct {
	ID        string     `gorm:"primary_key;size:36" json:"id"`
	Code      string     `gorm:"size:50;not null" json:"code"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	IsDeleted bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentPoint is the organizational entity a payroll disburses through.
// Its name keys both the gateway-config overrides and the payment-request
// application ownership checks.
type PaymentPoint struct {
	ID         string    `gorm:"primary_key;size:36" json:"id"`
	Name       string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	LocationId *string   `gorm:"size:36;index" json:"location_id"`
	IsDeleted  bool      `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Location rows form a hierarchy through ParentId; beneficiary location
// filters match a location or any of its ancestors.
type Location struct {
	ID       string  `gorm:"primary_key;size:36" json:"id"`
	Name     string  `gorm:"size:255;not null" json:"name"`
	ParentId *string `gorm:"size:36;index" json:"parent_id"`
}

func GetPaymentPlanById(ctx context.Context, tx *gorm.DB, id string) (*PaymentPlan, error) {
	var plan PaymentPlan
	if err := tx.WithContext(ctx).Where("id = ? AND is_deleted = 0", id).First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func GetPaymentPointById(ctx context.Context, id string) (*PaymentPoint, error) {
	db := config.GetDB()
	var point PaymentPoint
	if err := db.WithContext(ctx).Where("id = ? AND is_deleted = 0", id).First(&point).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}
	return &point, nil
}

func GetPaymentPointByName(ctx context.Context, name string) (*PaymentPoint, error) {
	db := config.GetDB()
	var point PaymentPoint
	if err := db.WithContext(ctx).Where("name = ? AND is_deleted = 0", name).First(&point).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrNotFound
		}
		return nil, err
	}
	return &point, nil
}

// ExpandLocationIds returns the given location ids together with every
// descendant, walking the parent links level by level. Used to turn
// "matches the location or any ancestor" into a flat IN filter.
func ExpandLocationIds(tx *gorm.DB, ids []string) ([]string, error) {
	expanded := utils.UniqueSlice(ids)
	frontier := expanded
	for len(frontier) > 0 {
		var children []string
		if err := tx.Model(&Location{}).
			Where("parent_id IN ?", frontier).
			Pluck("id", &children).Error; err != nil {
			return nil, err
		}
		frontier = nil
		for _, c := range children {
			found := false
			for _, e := range expanded {
				if e == c {
					found = true
					break
				}
			}
			if !found {
				expanded = append(expanded, c)
				frontier = append(frontier, c)
			}
		}
	}
	return expanded, nil
}
