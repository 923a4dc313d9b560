package integration

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/meterly/backend/internal/domain/shared"
)

// WildcardEvent subscribes an integration to every event
const WildcardEvent = "*"

// EventPing is the synthetic event sent by the test endpoint
const EventPing = "ping"

// Integration is a webhook endpoint subscribed to named events
type Integration struct {
	shared.BaseEntity
	Name            string
	URL             string
	Events          []string
	Secret          string
	Active          bool
	LastTriggeredAt *time.Time
}

// NewIntegration creates an active integration
func NewIntegration(name, endpoint string, events []string, secret string) (*Integration, error) {
	in := &Integration{BaseEntity: shared.NewBaseEntity(), Active: true}
	if err := in.Update(name, endpoint, events, secret); err != nil {
		return nil, err
	}
	return in, nil
}

// Update replaces the definition
func (in *Integration) Update(name, endpoint string, events []string, secret string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Integration name must be 1-100 characters")
	}
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Integration URL must be an absolute http(s) URL")
	}
	normalized := normalizeEvents(events)
	if len(normalized) == 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Integration must subscribe to at least one event")
	}
	in.Name = name
	in.URL = u.String()
	in.Events = normalized
	in.Secret = secret
	in.Touch()
	return nil
}

// SetActive toggles delivery
func (in *Integration) SetActive(active bool) {
	in.Active = active
	in.Touch()
}

// Subscribes reports whether the integration wants eventName
func (in *Integration) Subscribes(eventName string) bool {
	return slices.Contains(in.Events, WildcardEvent) || slices.Contains(in.Events, eventName)
}

// Sign returns the hex HMAC-SHA256 of body, or "" without a secret
func (in *Integration) Sign(body []byte) string {
	if in.Secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(in.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeEvents(events []string) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || slices.Contains(out, e) {
			continue
		}
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}
