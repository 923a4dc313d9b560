package integration

import "context"

// Header names set on every delivery
const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderSignature = "X-Webhook-Signature"
	HeaderDelivery  = "X-Webhook-Delivery"
)

// Delivery is one outbound POST
type Delivery struct {
	ID        string
	URL       string
	Event     string
	Body      []byte
	Signature string
}

// Sender performs the HTTP call. A non-2xx status is not an error; callers
// inspect the returned status code.
type Sender interface {
	Send(ctx context.Context, d Delivery) (statusCode int, err error)
}

// IsSuccess reports whether status is 2xx
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
