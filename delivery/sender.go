package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/courier/endpoint"
	"github.com/xraph/courier/signature"
)

// DefaultUserAgent identifies courier deliveries to receivers.
const DefaultUserAgent = "Courier/1.0"

// Result holds the outcome of a single HTTP delivery attempt.
type Result struct {
	StatusCode int
	Response   string
	Error      string
	LatencyMs  int
}

// Success reports whether the attempt got a 2xx response.
func (r Result) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Sender performs the HTTP mechanics of webhook delivery: signing, the fixed
// wire headers, and response capture. The wire contract to receivers is
// stable and must not regress:
//
//	POST <endpoint.url>
//	Content-Type: application/json
//	X-Webhook-Signature: <hmac-sha256 hex>
//	X-Webhook-Timestamp: <unix seconds>
//	X-Webhook-ID: <delivery id>
//
// The body is the exact JSON string that was signed.
type Sender struct {
	client    *http.Client
	userAgent string
}

// NewSender creates a sender with the given HTTP timeout and User-Agent.
func NewSender(timeout time.Duration, userAgent string) *Sender {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Sender{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Send delivers a signed payload to an endpoint and returns the result.
// The request is bounded by the sender's timeout and aborted on expiry.
func (s *Sender) Send(ctx context.Context, ep *endpoint.Endpoint, d *Delivery, secret string) Result {
	body := []byte(d.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	ts := time.Now().Unix()
	sig := signature.Sign(body, secret, ts)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("X-Webhook-Signature", sig)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Webhook-ID", d.ID.String())

	// Custom endpoint headers. The fixed wire headers win on collision.
	for k, v := range ep.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: URL is a user-configured webhook destination, vetted by the URLValidator.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodyBytes))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  int(latency),
	}
}
