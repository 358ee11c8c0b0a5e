package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/payroll_backend/utils"
)

// WorkflowAdaptor submits one payment workflow invocation to the external
// execution service identified by (name, group).
type WorkflowAdaptor interface {
	Run(ctx context.Context, name, group string, payload map[string]string) error
}

// HTTPWorkflowAdaptor posts the invocation to the adaptor service.
type HTTPWorkflowAdaptor struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPWorkflowAdaptor() *HTTPWorkflowAdaptor {
	return &HTTPWorkflowAdaptor{
		BaseURL: os.Getenv("WORKFLOW_ADAPTOR_URL"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type workflowInvocation struct {
	Name    string            `json:"name"`
	Group   string            `json:"group"`
	Payload map[string]string `json:"payload"`
}

func (a *HTTPWorkflowAdaptor) Run(ctx context.Context, name, group string, payload map[string]string) error {
	if a.BaseURL == "" {
		return fmt.Errorf("%w: WORKFLOW_ADAPTOR_URL is not set", utils.ErrConfiguration)
	}
	raw, err := json.Marshal(workflowInvocation{Name: name, Group: group, Payload: payload})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrGateway, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: workflow adaptor returned %d: %s", utils.ErrGateway, resp.StatusCode, string(body))
	}
	return nil
}
