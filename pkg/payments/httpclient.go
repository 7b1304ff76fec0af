package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	defaultHTTPTimeout   = 15 * time.Second
)

// HTTPClient talks to the processor's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient returns a Client for the given processor endpoint.
func NewHTTPClient(baseURL string, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// CreateCharge captures a payment.
func (client *HTTPClient) CreateCharge(ctx context.Context, request ChargeRequest) (Charge, error) {
	var charge Charge
	if err := client.post(ctx, "/v1/charges", request, request.IdempotencyKey, &charge); err != nil {
		return Charge{}, err
	}
	return charge, nil
}

// CreateRefund returns money against a prior charge.
func (client *HTTPClient) CreateRefund(ctx context.Context, request RefundRequest) (Refund, error) {
	var refund Refund
	if err := client.post(ctx, "/v1/refunds", request, request.IdempotencyKey, &refund); err != nil {
		return Refund{}, err
	}
	return refund, nil
}

// ListPayouts returns settlement transfers arriving in [from, to).
func (client *HTTPClient) ListPayouts(ctx context.Context, tenantID string, fromUnixUTC, toUnixUTC int64) ([]Payout, error) {
	query := url.Values{}
	query.Set("tenant_id", tenantID)
	query.Set("from", strconv.FormatInt(fromUnixUTC, 10))
	query.Set("to", strconv.FormatInt(toUnixUTC, 10))
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/v1/payouts?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Authorization", "Bearer "+client.apiKey)
	response, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, statusError(response.StatusCode)
	}
	var payload struct {
		Payouts []Payout `json:"payouts"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode payouts: %v", ErrProcessorRejected, err)
	}
	return payload.Payouts, nil
}

func (client *HTTPClient) post(ctx context.Context, path string, body any, idempotencyKey string, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+client.apiKey)
	if idempotencyKey != "" {
		httpRequest.Header.Set(headerIdempotencyKey, idempotencyKey)
	}
	response, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
		return statusError(response.StatusCode)
	}
	return json.NewDecoder(response.Body).Decode(out)
}

func statusError(statusCode int) error {
	if statusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrProcessorUnavailable, statusCode)
	}
	return fmt.Errorf("%w: status %d", ErrProcessorRejected, statusCode)
}
