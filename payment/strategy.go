// Package payment holds the pluggable dispatch and reconciliation behavior
// behind a payroll's payment method. A registry maps each method string to
// one strategy; the capability split between Strategy and
// ReconcilableStrategy lets the workers branch on a type assertion instead
// of probing the implementation.
package payment

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
)

// Payment method strings stored on the payroll.
const (
	MethodOnlineWorkflow   = "ONLINE_WORKFLOW"
	MethodGatewayConnector = "GATEWAY_CONNECTOR"
	MethodManualCsv        = "MANUAL_CSV"
)

// Strategy dispatches a payroll to its payment backend. MakePayment owns
// the APPROVE_FOR_RELEASE -> ONGOING transition and everything the backend
// needs to start paying.
type Strategy interface {
	PaymentMethod() string
	MakePayment(ctx context.Context, payroll *models.Payroll) error
}

// ReconcilableStrategy additionally drives reconciliation itself. Methods
// reconciled out of band (the CSV upload path) do not implement it.
type ReconcilableStrategy interface {
	Strategy
	ReconcilePayroll(ctx context.Context, payroll *models.Payroll) error
}

// Acknowledger handles the authoritative gateway callback. Only the online
// workflow strategy implements it.
type Acknowledger interface {
	Acknowledge(ctx context.Context, payroll *models.Payroll, body []byte, ack GatewayAck) error
}

var strategies = map[string]Strategy{}

// LoadStrategies builds the registry once at startup. The workflow adaptor
// is shared by every online dispatch.
func LoadStrategies(adaptor WorkflowAdaptor) {
	strategies = map[string]Strategy{}
	register(&OnlineWorkflowStrategy{Adaptor: adaptor})
	register(&GatewayConnectorStrategy{})
	register(&ManualCsvStrategy{})
}

func register(s Strategy) {
	strategies[s.PaymentMethod()] = s
}

// ForMethod resolves the strategy for a payment method. An unknown method
// is an explicit no-handler condition, never a silent skip.
func ForMethod(method string) (Strategy, error) {
	s, ok := strategies[method]
	if !ok {
		return nil, fmt.Errorf("%w: payment method %q", utils.ErrNoStrategy, method)
	}
	return s, nil
}

// gatewaySettingsForPayroll resolves the payroll's payment point name so
// point-specific gateway overrides apply.
func gatewaySettingsForPayroll(ctx context.Context, payroll *models.Payroll) (string, error) {
	if payroll.PaymentPointId == nil {
		return "", nil
	}
	point, err := models.GetPaymentPointById(ctx, *payroll.PaymentPointId)
	if err != nil {
		return "", err
	}
	return point.Name, nil
}
