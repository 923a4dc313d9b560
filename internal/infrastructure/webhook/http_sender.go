// Package webhook delivers integration payloads over HTTP.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meterly/backend/internal/domain/integration"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single delivery
const DefaultTimeout = 5 * time.Second

const userAgent = "meterly-webhooks/1.0"

// maxDrainBytes caps how much of a response body is read before closing
const maxDrainBytes = 64 << 10

// HTTPSender posts JSON deliveries with a per-request timeout
type HTTPSender struct {
	client *http.Client
	logger *zap.Logger
}

var _ integration.Sender = (*HTTPSender)(nil)

// NewHTTPSender creates a sender. A non-positive timeout uses DefaultTimeout.
func NewHTTPSender(timeout time.Duration, logger *zap.Logger) *HTTPSender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSender{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Send posts d.Body to d.URL
func (s *HTTPSender) Send(ctx context.Context, d integration.Delivery) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Body))
	if err != nil {
		return 0, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(integration.HeaderEvent, d.Event)
	if d.ID != "" {
		req.Header.Set(integration.HeaderDelivery, d.ID)
	}
	if d.Signature != "" {
		req.Header.Set(integration.HeaderSignature, "sha256="+d.Signature)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook POST to %s failed: %w", d.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	s.logger.Debug("Webhook delivered",
		zap.String("url", d.URL),
		zap.String("event", d.Event),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return resp.StatusCode, nil
}
