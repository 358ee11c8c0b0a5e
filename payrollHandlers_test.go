package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/payroll_backend/appctx"
	"github.com/gin-gonic/gin"
)

func callbackRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/payroll/callback", gatewayCallbackHandler())
	return r
}

func TestGatewayCallbackRejectsMissingFields(t *testing.T) {
	r := callbackRouter()

	cases := []struct {
		name string
		body string
	}{
		{"no rejected_bills", `{"payroll_id":"p1","response_from_gateway":{"status":"ok"}}`},
		{"no payroll_id", `{"response_from_gateway":{"status":"ok"},"rejected_bills":""}`},
		{"no response", `{"payroll_id":"p1","rejected_bills":""}`},
		{"malformed json", `{"payroll_id":`},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/payroll/callback", strings.NewReader(tc.body))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", tc.name, w.Code)
		}
	}
}

func TestListPaymentRequestsRejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := appctx.Set(c.Request.Context(), appctx.ContextKeyApplication, "Kigoma Agency")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.GET("/payment-requests", listPaymentRequestsHandler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/payment-requests?status=PAID_OUT", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}

func TestListPaymentRequestsRequiresApplicationClaim(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/payment-requests", listPaymentRequestsHandler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/payment-requests", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403", w.Code)
	}
}
