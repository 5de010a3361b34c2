package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTossBaseURL = "https://api.tosspayments.com"

// TossClient talks to the Toss Payments REST API.
type TossClient struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
}

// NewTossClient builds a client authenticating with the merchant secret key.
// An empty baseURL selects the production endpoint.
func NewTossClient(baseURL, secretKey string, timeout time.Duration) *TossClient {
	if baseURL == "" {
		baseURL = defaultTossBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	token := base64.StdEncoding.EncodeToString([]byte(secretKey + ":"))
	return &TossClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: "Basic " + token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Confirm approves the payment.
func (c *TossClient) Confirm(ctx context.Context, req ConfirmRequest) (*Response, error) {
	return c.post(ctx, "/v1/payments/confirm", req)
}

// Cancel refunds all or part of an approved payment.
func (c *TossClient) Cancel(ctx context.Context, paymentKey string, req CancelRequest) (*Response, error) {
	if paymentKey == "" {
		return nil, fmt.Errorf("%w: missing payment key", ErrGatewayRejected)
	}
	return c.post(ctx, "/v1/payments/"+url.PathEscape(paymentKey)+"/cancel", req)
}

type tossError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *TossClient) post(ctx context.Context, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", c.authHeader)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var te tossError
		_ = json.Unmarshal(raw, &te)
		return nil, fmt.Errorf("%w: %s %s", ErrGatewayRejected, te.Code, te.Message)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	if out.Status == "" {
		return nil, fmt.Errorf("%w: empty payment status", ErrGatewayRejected)
	}
	return &out, nil
}
