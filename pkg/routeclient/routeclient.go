// Package routeclient provides a client for the external route service that
// formulates cross-chain plans, accepts signed operations and reports their
// execution status.
package routeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orb-labs/orchestrator/pkg/logger"
	"github.com/orb-labs/orchestrator/pkg/models"
)

// ExternalStatus is an operation status as reported by the route service.
type ExternalStatus string

const (
	ExternalSuccessful ExternalStatus = "SUCCESSFUL"
	ExternalPending    ExternalStatus = "PENDING"
	ExternalFailed     ExternalStatus = "FAILED"
)

// RouteOperation is one on-chain call in a route returned by the service.
type RouteOperation struct {
	ChainID  int64                `json:"chain_id"`
	From     string               `json:"from,omitempty"`
	To       string               `json:"to,omitempty"`
	Data     string               `json:"data,omitempty"`
	Value    string               `json:"value,omitempty"`
	GasLimit uint64               `json:"gas_limit,omitempty"`
	Kind     models.OperationKind `json:"kind"`
}

// RouteStep is one hop of a formulated route together with the token amount
// it consumes.
type RouteStep struct {
	OnchainOperations []RouteOperation `json:"onchain_operations"`
	InputToken        *models.Token    `json:"input_token,omitempty"`
	InputAmount       string           `json:"input_amount,omitempty"`
}

// RequiredState describes token state the final transaction depends on.
type RequiredState struct {
	TokenAmounts []models.TokenAmount `json:"token_amounts,omitempty"`
}

// RouteResponse is the route service's answer to a formulation request.
type RouteResponse struct {
	Route                       []RouteStep     `json:"route"`
	FinalTransaction            *RouteOperation `json:"final_transaction"`
	PreTransactionRequiredState *RequiredState  `json:"pre_transaction_required_state,omitempty"`
}

// OperationStatusResult is the reported status of one submitted operation,
// index-aligned with the queried id list.
type OperationStatusResult struct {
	ID     string         `json:"id"`
	Status ExternalStatus `json:"status"`
	Hash   string         `json:"hash,omitempty"`
}

type formulateRequest struct {
	From    string                   `json:"from"`
	Details models.TransactionIntent `json:"details"`
}

type submitRequest struct {
	Operations []models.SignedOperation `json:"operations"`
}

type statusRequest struct {
	IDs []string `json:"ids"`
}

type statusResponse struct {
	Statuses []OperationStatusResult `json:"statuses"`
}

// Client represents a route service client.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a new route service client.
func New(endpoint string, logger logger.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: createHTTPClient(),
		logger:     logger,
	}
}

// Formulate asks the route service to expand a transaction intent into a
// cross-chain route. A response without a route is an error; the caller
// treats it as recoverable and may retry.
func (c *Client) Formulate(ctx context.Context, from string, details models.TransactionIntent) (*RouteResponse, error) {
	var resp RouteResponse
	err := c.post(ctx, "/v1/transactions/formulate", formulateRequest{From: from, Details: details}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Route) == 0 || resp.FinalTransaction == nil {
		return nil, fmt.Errorf("route service returned no route")
	}

	return &resp, nil
}

// SubmitOperations hands a batch of signed operations to the network. The
// acknowledgement carries no correctness signal; outcomes are learned only
// through GetStatuses.
func (c *Client) SubmitOperations(ctx context.Context, operations []models.SignedOperation) error {
	if len(operations) == 0 {
		return nil
	}
	return c.post(ctx, "/v1/transactions", submitRequest{Operations: operations}, nil)
}

// GetStatuses fetches the statuses of the given operation ids in one batched
// call. The result is index-aligned with ids.
func (c *Client) GetStatuses(ctx context.Context, ids []string) ([]OperationStatusResult, error) {
	var resp statusResponse
	if err := c.post(ctx, "/v1/transactions/status", statusRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Statuses) != len(ids) {
		return nil, fmt.Errorf("status service returned %d statuses for %d ids", len(resp.Statuses), len(ids))
	}

	return resp.Statuses, nil
}

// Ping checks that the route service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("route service unreachable: %v", err)
	}
	c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("route service health returned status %d", resp.StatusCode)
	}
	return nil
}

// post sends a JSON request and decodes the response into out when non-nil.
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %v", path, err)
	}
	defer c.closeBody(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code from %s: %d, body: %s", path, resp.StatusCode, truncate(bodyBytes, 512))
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %v", path, err)
	}
	return nil
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Error("Failed to close response body: %v", err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
