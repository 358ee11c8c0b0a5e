package config

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestResolveGatewaySettingsLayering(t *testing.T) {
	t.Setenv("GATEWAY_BASE_URL", "https://gateway.example.com/")
	t.Setenv("GATEWAY_AUTH_TYPE", "token")
	t.Setenv("GATEWAY_API_KEY", "global-key")
	t.Setenv("GATEWAY_TIMEOUT_SECONDS", "15")
	t.Setenv("PAYMENT_GATEWAYS_JSON", `{
		"Kigoma Agency": {
			"gateway_base_url": "https://kigoma.example.com/",
			"payment_gateway_auth_type": "basic",
			"payment_gateway_basic_auth_username": "agency",
			"payment_gateway_basic_auth_password": "secret",
			"payment_gateway_timeout": "45"
		}
	}`)

	if err := LoadPaymentGateways(); err != nil {
		t.Fatal(err)
	}

	global := ResolveGatewaySettings("")
	if global.BaseURL != "https://gateway.example.com/" {
		t.Fatalf("global base url: %s", global.BaseURL)
	}
	if global.AuthType != GatewayAuthToken || global.APIKey != "global-key" {
		t.Fatalf("global auth: %+v", global)
	}
	if global.Timeout != 15*time.Second {
		t.Fatalf("global timeout: %v", global.Timeout)
	}
	if global.PaymentEndpoint() != "https://gateway.example.com/api/payment/" {
		t.Fatalf("payment endpoint: %s", global.PaymentEndpoint())
	}

	point := ResolveGatewaySettings("Kigoma Agency")
	if point.BaseURL != "https://kigoma.example.com/" {
		t.Fatalf("override base url: %s", point.BaseURL)
	}
	if point.AuthType != GatewayAuthBasic {
		t.Fatalf("override auth type: %s", point.AuthType)
	}
	if point.Timeout != 45*time.Second {
		t.Fatalf("override timeout: %v", point.Timeout)
	}
	// untouched keys fall back to the global defaults
	if point.EndpointReconciliation != "api/reconciliation/" {
		t.Fatalf("reconciliation endpoint: %s", point.EndpointReconciliation)
	}

	unknown := ResolveGatewaySettings("No Such Point")
	if unknown.BaseURL != global.BaseURL {
		t.Fatal("unknown point must resolve to global defaults")
	}
}

func TestGatewayHeaders(t *testing.T) {
	token := GatewaySettings{AuthType: GatewayAuthToken, APIKey: "abc"}
	h := token.Headers()
	if h["Authorization"] != "Bearer abc" {
		t.Fatalf("token auth header: %s", h["Authorization"])
	}
	if h["Content-Type"] != "application/json" {
		t.Fatalf("content type: %s", h["Content-Type"])
	}

	basic := GatewaySettings{AuthType: GatewayAuthBasic, BasicAuthUsername: "u", BasicAuthPassword: "p"}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("u:p"))
	if got := basic.Headers()["Authorization"]; got != want {
		t.Fatalf("basic auth header: %s", got)
	}

	none := GatewaySettings{AuthType: "something-else"}
	h = none.Headers()
	if _, ok := h["Authorization"]; ok {
		t.Fatal("unknown auth type must not set an Authorization header")
	}
	if h["Content-Type"] != "application/json" {
		t.Fatal("content type must always be set")
	}
}

func TestLoadPaymentGatewaysRejectsMalformedOverrides(t *testing.T) {
	t.Setenv("PAYMENT_GATEWAYS_JSON", "{not json")
	if err := LoadPaymentGateways(); err == nil {
		t.Fatal("expected error for malformed PAYMENT_GATEWAYS_JSON")
	}
}
