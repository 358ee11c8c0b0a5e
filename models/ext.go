package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CreationParams are the original payroll creation inputs, kept verbatim in
// the payroll extension so a FAILED payroll can be retriggered.
type CreationParams struct {
	Name                string             `json:"name"`
	PaymentPlanId       string             `json:"payment_plan_id"`
	PaymentPointId      string             `json:"payment_point_id,omitempty"`
	PaymentCycleId      string             `json:"payment_cycle_id"`
	PaymentMethod       string             `json:"payment_method"`
	DateValidFrom       string             `json:"date_valid_from,omitempty"`
	DateValidTo         string             `json:"date_valid_to,omitempty"`
	FromFailedPayrollId string             `json:"from_failed_payroll_id,omitempty"`
	ProjectIds          []string           `json:"project_ids,omitempty"`
	LocationIds         []string           `json:"location_ids,omitempty"`
	AdvancedCriteria    []FilterCondition  `json:"advanced_criteria,omitempty"`
}

// FilterCondition is one custom-filter clause applied to beneficiary
// extension data, e.g. {field: "able_bodied", op: "eq", value: "true"}.
type FilterCondition struct {
	Field string `json:"custom_filter_field"`
	Op    string `json:"custom_filter_op"`
	Value string `json:"custom_filter_value"`
}

// PayrollExt is the typed rendering of the payroll's free-form extension
// column. The closed struct gives compile-time field checking while the
// column itself stays schemaless JSON.
type PayrollExt struct {
	CreationParams      *CreationParams `json:"creation_params,omitempty"`
	CreationError       string          `json:"creation_error,omitempty"`
	ResponseFromGateway json.RawMessage `json:"response_from_gateway,omitempty"`
}

func (e PayrollExt) Value() (driver.Value, error) {
	return json.Marshal(e)
}

func (e *PayrollExt) Scan(value interface{}) error {
	return scanJSON(value, e)
}

// BenefitExt is the typed extension of a benefit consumption, holding the
// last gateway interaction result and optional contact details.
type BenefitExt struct {
	OutputGateway                json.RawMessage `json:"output_gateway,omitempty"`
	GatewayReconciliationSuccess *bool           `json:"gateway_reconciliation_success,omitempty"`
	PhoneNumber                  string          `json:"phoneNumber,omitempty"`
	Notes                        string          `json:"notes,omitempty"`
	TransactionId                string          `json:"transaction_id,omitempty"`
	PaymentDate                  string          `json:"payment_date,omitempty"`
}

func (e BenefitExt) Value() (driver.Value, error) {
	return json.Marshal(e)
}

func (e *BenefitExt) Scan(value interface{}) error {
	return scanJSON(value, e)
}

// JSONMap is used where the column genuinely stays open-ended (upload error
// summaries, beneficiary extension data).
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	return scanJSON(value, m)
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
}
