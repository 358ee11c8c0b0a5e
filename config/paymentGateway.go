package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// GatewayAuthType selects how requests to the payment gateway are signed.
const (
	GatewayAuthToken = "token"
	GatewayAuthBasic = "basic"
	GatewayAuthNone  = "none"
)

// GatewaySettings is one resolved gateway configuration: global defaults
// with payment-point-specific values layered on top.
type GatewaySettings struct {
	BaseURL                string        `json:"gateway_base_url"`
	EndpointPayment        string        `json:"endpoint_payment"`
	EndpointReconciliation string        `json:"endpoint_reconciliation"`
	AuthType               string        `json:"payment_gateway_auth_type"`
	APIKey                 string        `json:"payment_gateway_api_key"`
	BasicAuthUsername      string        `json:"payment_gateway_basic_auth_username"`
	BasicAuthPassword      string        `json:"payment_gateway_basic_auth_password"`
	TimeoutSeconds         int           `json:"payment_gateway_timeout"`
	ConnectorClass         string        `json:"payment_gateway_class"`
	WorkflowName           string        `json:"workflow_name"`
	WorkflowGroup          string        `json:"workflow_group"`
	Timeout                time.Duration `json:"-"`
}

var (
	gatewayDefaults GatewaySettings
	// keyed by payment point name, values are partial overrides
	gatewayOverrides map[string]map[string]string
)

// LoadPaymentGateways reads the global gateway settings from env and the
// per-payment-point overrides from PAYMENT_GATEWAYS_JSON. Call from main()
// before serving; a malformed override map is a startup fault.
func LoadPaymentGateways() error {
	gatewayDefaults = GatewaySettings{
		BaseURL:                os.Getenv("GATEWAY_BASE_URL"),
		EndpointPayment:        envOr("GATEWAY_ENDPOINT_PAYMENT", "api/payment/"),
		EndpointReconciliation: envOr("GATEWAY_ENDPOINT_RECONCILIATION", "api/reconciliation/"),
		AuthType:               envOr("GATEWAY_AUTH_TYPE", GatewayAuthToken),
		APIKey:                 os.Getenv("GATEWAY_API_KEY"),
		BasicAuthUsername:      os.Getenv("GATEWAY_BASIC_AUTH_USERNAME"),
		BasicAuthPassword:      os.Getenv("GATEWAY_BASIC_AUTH_PASSWORD"),
		TimeoutSeconds:         intFromEnv("GATEWAY_TIMEOUT_SECONDS", 30),
		ConnectorClass:         envOr("GATEWAY_CONNECTOR", "http"),
		WorkflowName:           envOr("GATEWAY_WORKFLOW_NAME", "payment-adaptor"),
		WorkflowGroup:          envOr("GATEWAY_WORKFLOW_GROUP", "coremis-payment-adaptor"),
	}

	gatewayOverrides = map[string]map[string]string{}
	raw := os.Getenv("PAYMENT_GATEWAYS_JSON")
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &gatewayOverrides); err != nil {
			return fmt.Errorf("parse PAYMENT_GATEWAYS_JSON: %w", err)
		}
	}
	return nil
}

// ResolveGatewaySettings layers the overrides of the given payment point
// (by name) over the global defaults. An empty name yields the defaults.
func ResolveGatewaySettings(paymentPointName string) GatewaySettings {
	s := gatewayDefaults
	if paymentPointName != "" {
		if o, ok := gatewayOverrides[paymentPointName]; ok {
			applyOverride(&s.BaseURL, o, "gateway_base_url")
			applyOverride(&s.EndpointPayment, o, "endpoint_payment")
			applyOverride(&s.EndpointReconciliation, o, "endpoint_reconciliation")
			applyOverride(&s.AuthType, o, "payment_gateway_auth_type")
			applyOverride(&s.APIKey, o, "payment_gateway_api_key")
			applyOverride(&s.BasicAuthUsername, o, "payment_gateway_basic_auth_username")
			applyOverride(&s.BasicAuthPassword, o, "payment_gateway_basic_auth_password")
			applyOverride(&s.ConnectorClass, o, "payment_gateway_class")
			applyOverride(&s.WorkflowName, o, "workflow_name")
			applyOverride(&s.WorkflowGroup, o, "workflow_group")
			if v, ok := o["payment_gateway_timeout"]; ok && v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					s.TimeoutSeconds = n
				}
			}
		}
	}
	s.Timeout = time.Duration(s.TimeoutSeconds) * time.Second
	return s
}

func applyOverride(dst *string, o map[string]string, key string) {
	if v, ok := o[key]; ok && v != "" {
		*dst = v
	}
}

// Headers builds the auth headers for a gateway request. Unknown auth types
// fall back to content type only.
func (s GatewaySettings) Headers() map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	switch s.AuthType {
	case GatewayAuthToken:
		headers["Authorization"] = "Bearer " + s.APIKey
	case GatewayAuthBasic:
		auth := base64.StdEncoding.EncodeToString([]byte(s.BasicAuthUsername + ":" + s.BasicAuthPassword))
		headers["Authorization"] = "Basic " + auth
	}
	return headers
}

func (s GatewaySettings) PaymentEndpoint() string {
	return s.BaseURL + s.EndpointPayment
}

func (s GatewaySettings) ReconciliationEndpoint() string {
	return s.BaseURL + s.EndpointReconciliation
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
