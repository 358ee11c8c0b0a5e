package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Individual struct {
	ID        string     `gorm:"primary_key;size:36" json:"id"`
	FirstName string     `gorm:"size:255" json:"first_name"`
	LastName  string     `gorm:"size:255" json:"last_name"`
	Dob       *time.Time `json:"dob"`
	JsonExt   JSONMap    `gorm:"type:json" json:"json_ext"`
	IsDeleted bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Beneficiary is one individual's enrollment in a benefit plan. Selection
// for a payroll filters on plan, status and the optional criteria below.
type Beneficiary struct {
	ID            string            `gorm:"primary_key;size:36" json:"id"`
	IndividualId  string            `gorm:"size:36;not null;index" json:"individual_id"`
	BenefitPlanId string            `gorm:"size:36;not null;index" json:"benefit_plan_id"`
	ProjectId     string            `gorm:"size:36;index" json:"project_id"`
	LocationId    string            `gorm:"size:36;index" json:"location_id"`
	Status        BeneficiaryStatus `gorm:"size:20;not null;default:ACTIVE" json:"status"`
	JsonExt       JSONMap           `gorm:"type:json" json:"json_ext"`
	IsDeleted     bool              `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// SelectionCriteria narrows the active beneficiaries of a benefit plan.
type SelectionCriteria struct {
	ProjectIds       []string
	LocationIds      []string
	AdvancedCriteria []FilterCondition
}

func criteriaFromParams(params CreationParams) SelectionCriteria {
	return SelectionCriteria{
		ProjectIds:       params.ProjectIds,
		LocationIds:      params.LocationIds,
		AdvancedCriteria: params.AdvancedCriteria,
	}
}

// SelectBeneficiaries fetches the plan's active, non-deleted beneficiaries
// and applies the criteria in memory. Location ids are expanded to their
// descendants first so an ancestor filter matches the whole subtree.
func SelectBeneficiaries(tx *gorm.DB, benefitPlanId string, criteria SelectionCriteria) ([]Beneficiary, error) {
	var beneficiaries []Beneficiary
	if err := tx.
		Where("benefit_plan_id = ? AND status = ? AND is_deleted = 0", benefitPlanId, BeneficiaryStatusActive).
		Find(&beneficiaries).Error; err != nil {
		return nil, err
	}

	if len(criteria.LocationIds) > 0 {
		expanded, err := ExpandLocationIds(tx, criteria.LocationIds)
		if err != nil {
			return nil, err
		}
		criteria.LocationIds = expanded
	}

	return FilterBeneficiaries(beneficiaries, criteria), nil
}

// FilterBeneficiaries applies the selection criteria to an already fetched
// slice. Location ids are assumed pre-expanded.
func FilterBeneficiaries(beneficiaries []Beneficiary, criteria SelectionCriteria) []Beneficiary {
	out := make([]Beneficiary, 0, len(beneficiaries))
	for _, b := range beneficiaries {
		if len(criteria.ProjectIds) > 0 && !containsString(criteria.ProjectIds, b.ProjectId) {
			continue
		}
		if len(criteria.LocationIds) > 0 && !containsString(criteria.LocationIds, b.LocationId) {
			continue
		}
		if !matchesConditions(b, criteria.AdvancedCriteria) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// matchesConditions evaluates the custom-filter clauses against the
// beneficiary's extension data. Supported ops: eq, neq, contains.
func matchesConditions(b Beneficiary, conditions []FilterCondition) bool {
	for _, c := range conditions {
		raw, ok := b.JsonExt[c.Field]
		if !ok {
			return false
		}
		value := fmt.Sprint(raw)
		switch c.Op {
		case "", "eq":
			if !strings.EqualFold(value, c.Value) {
				return false
			}
		case "neq":
			if strings.EqualFold(value, c.Value) {
				return false
			}
		case "contains":
			if !strings.Contains(strings.ToLower(value), strings.ToLower(c.Value)) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
