package caller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abakirov/outdialer/internal/domain"
)

// GatewayClient talks to the voice gateway's HTTP API. One call initiation
// is one POST; the gateway dials the customer over SIP and connects the AI
// agent to the room.
type GatewayClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{}, // per-request timeout via context
	}
}

type initiateRequest struct {
	Reason domain.Reason `json:"reason"`
}

type initiateResponse struct {
	CallID   string `json:"call_id"`
	RoomName string `json:"room_name"`
}

type gatewayError struct {
	Detail string `json:"detail"`
}

func (c *GatewayClient) InitiateCall(ctx context.Context, customerID string, reason domain.Reason) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(initiateRequest{Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrPermanent, err)
	}

	url := fmt.Sprintf("%s/calls/initiate/%s", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Network errors and the deadline both land here; the retry path
		// owns them.
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		var out initiateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("%w: decode response: %v", ErrTransient, err)
		}
		return &Result{CallRef: out.CallID, RoomName: out.RoomName}, nil
	}

	detail := readDetail(resp.Body)
	if transientStatus(resp.StatusCode) {
		return nil, fmt.Errorf("%w: gateway returned %d: %s", ErrTransient, resp.StatusCode, detail)
	}
	return nil, fmt.Errorf("%w: gateway returned %d: %s", ErrPermanent, resp.StatusCode, detail)
}

// transientStatus: overload and upstream failures retry; other 4xx mean the
// request itself is unacceptable.
func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func readDetail(r io.Reader) string {
	var ge gatewayError
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&ge); err != nil || ge.Detail == "" {
		return "no detail"
	}
	return ge.Detail
}
