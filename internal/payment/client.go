package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"

	"go.uber.org/zap"
)

const DefaultGatewayTimeout = 15 * time.Second

// Client is the HTTP plumbing shared by adapters: request encoding, logging,
// metrics and the transport-error boundary.
type Client struct {
	provider   ProviderType
	httpClient *http.Client
}

func NewClient(provider ProviderType, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultGatewayTimeout}
	}
	return &Client{provider: provider, httpClient: httpClient}
}

// HTTPClient exposes the underlying client so tests can swap the transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into out.
func (r *Response) Decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

// Do sends body (JSON-encoded unless it is url.Values or []byte) and returns
// the response. Network failures and 5xx answers come back as *TransportError;
// 4xx answers are returned to the caller to interpret as business failures.
func (c *Client) Do(
	ctx context.Context,
	op, method, endpoint string,
	headers map[string]string,
	body any,
) (*Response, error) {

	log := logger.FromCtx(ctx).With(
		zap.String("provider", string(c.provider)),
		zap.String("operation", op),
		zap.String("method", method),
		zap.String("url", endpoint),
	)

	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/json"
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			log.Error("failed to marshal gateway request", zap.Error(err))
			return nil, fmt.Errorf("%s %s: marshal request: %w", c.provider, op, err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		log.Error("failed creating gateway request", zap.Error(err))
		return nil, fmt.Errorf("%s %s: build request: %w", c.provider, op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.Debug("sending gateway request")

	timer := metrics.StartTimer()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveGateway(string(c.provider), op, 0, timer)
		log.Error("gateway request failed", zap.Error(err))
		return nil, &TransportError{Provider: c.provider, Op: op, Err: err}
	}
	defer resp.Body.Close()

	metrics.ObserveGateway(string(c.provider), op, resp.StatusCode, timer)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("failed to read gateway response", zap.Error(err))
		return nil, &TransportError{Provider: c.provider, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	out := &Response{StatusCode: resp.StatusCode, Body: raw}

	if resp.StatusCode >= http.StatusInternalServerError {
		log.Error("gateway returned server error",
			zap.Int("status", resp.StatusCode),
			zap.String("response", redactBody(raw)),
		)
		return out, &TransportError{
			Provider:   c.provider,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", redactBody(raw)),
		}
	}

	if !out.OK() {
		log.Warn("gateway returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.String("response", redactBody(raw)),
		)
	} else {
		log.Info("gateway request completed", zap.Int("status", resp.StatusCode))
	}

	return out, nil
}

const maxLoggedBody = 256

var (
	cardNumberPattern = regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`)
	emailPattern      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// redactBody masks card numbers and email addresses in a gateway answer and
// cuts it to maxLoggedBody bytes. Only its result may be logged.
func redactBody(raw []byte) string {
	masked := cardNumberPattern.ReplaceAll(raw, []byte("[card]"))
	masked = emailPattern.ReplaceAll(masked, []byte("[email]"))
	return truncate(masked, maxLoggedBody)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
