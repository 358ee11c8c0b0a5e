package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"bitbucket.org/mmdatafocus/payroll_backend/utils"
)

type nopAdaptor struct{}

func (nopAdaptor) Run(ctx context.Context, name, group string, payload map[string]string) error {
	return nil
}

func TestForMethodResolvesRegisteredStrategies(t *testing.T) {
	LoadStrategies(nopAdaptor{})

	for _, method := range []string{MethodOnlineWorkflow, MethodGatewayConnector, MethodManualCsv} {
		s, err := ForMethod(method)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		if s.PaymentMethod() != method {
			t.Fatalf("%s resolved to %s", method, s.PaymentMethod())
		}
	}

	if _, err := ForMethod("CASH_UNDER_MATTRESS"); !errors.Is(err, utils.ErrNoStrategy) {
		t.Fatalf("unknown method must be an explicit no-handler error, got %v", err)
	}
}

func TestStrategyCapabilitySplit(t *testing.T) {
	LoadStrategies(nopAdaptor{})

	online, _ := ForMethod(MethodOnlineWorkflow)
	if _, ok := online.(ReconcilableStrategy); !ok {
		t.Fatal("online workflow strategy must reconcile")
	}
	if _, ok := online.(Acknowledger); !ok {
		t.Fatal("online workflow strategy must accept callbacks")
	}

	gateway, _ := ForMethod(MethodGatewayConnector)
	if _, ok := gateway.(ReconcilableStrategy); !ok {
		t.Fatal("gateway connector strategy must reconcile")
	}
	if _, ok := gateway.(Acknowledger); ok {
		t.Fatal("gateway connector strategy must not accept callbacks")
	}

	manual, _ := ForMethod(MethodManualCsv)
	if _, ok := manual.(ReconcilableStrategy); ok {
		t.Fatal("manual csv strategy must not claim reconciliation")
	}
}

func TestNewConnectorResolution(t *testing.T) {
	if _, err := NewConnector(config.GatewaySettings{ConnectorClass: "http"}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConnector(config.GatewaySettings{}); err != nil {
		t.Fatal("empty connector class must default to http")
	}
	if _, err := NewConnector(config.GatewaySettings{ConnectorClass: "soap"}); !errors.Is(err, utils.ErrConfiguration) {
		t.Fatalf("unknown connector must be a configuration error, got %v", err)
	}
}

func TestBenefitNeedsDispatch(t *testing.T) {
	cases := []struct {
		name    string
		benefit models.BenefitConsumption
		want    bool
	}{
		{"accepted unsent", models.BenefitConsumption{Status: models.BenefitStatusAccepted}, true},
		{"approved unsent", models.BenefitConsumption{Status: models.BenefitStatusApproveForPayment}, true},
		{"already sent", models.BenefitConsumption{
			Status:  models.BenefitStatusAccepted,
			JsonExt: models.BenefitExt{OutputGateway: json.RawMessage(`{"txn":"T1"}`)},
		}, false},
		{"reconciled", models.BenefitConsumption{Status: models.BenefitStatusReconciled}, false},
		{"rejected", models.BenefitConsumption{Status: models.BenefitStatusRejected}, false},
	}
	for _, tc := range cases {
		if got := benefitNeedsDispatch(&tc.benefit); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestGatewayDispatchRejectsClosedPayroll(t *testing.T) {
	s := &GatewayConnectorStrategy{}
	payroll := &models.Payroll{ID: "p1", Status: models.PayrollStatusReconciled}
	err := s.MakePayment(context.Background(), payroll)
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
}
