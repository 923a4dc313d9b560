package integration

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/integration"
	"github.com/meterly/backend/internal/domain/shared"
	"go.uber.org/zap"
)

var errIntegrationNotFound = shared.NewDomainError(shared.CodeNotFound, "Integration not found")

// Input creates or replaces an integration
type Input struct {
	Name   string
	URL    string
	Events []string
	Secret string
	Active *bool
}

// TestResult reports the outcome of a ping delivery
type TestResult struct {
	StatusCode int    `json:"status_code"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Service administers integrations
type Service struct {
	integrations integration.Repository
	dispatcher   *WebhookDispatcher
	logger       *zap.Logger
}

// NewService creates a new Service
func NewService(integrations integration.Repository, dispatcher *WebhookDispatcher, logger *zap.Logger) *Service {
	return &Service{
		integrations: integrations,
		dispatcher:   dispatcher,
		logger:       logger.Named("integrations"),
	}
}

// List returns all integrations
func (s *Service) List(ctx context.Context) ([]integration.Integration, error) {
	items, err := s.integrations.List(ctx)
	if err != nil {
		return nil, s.wrap("list", err)
	}
	return items, nil
}

// Get returns one integration
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	in, err := s.integrations.FindByID(ctx, id)
	if err != nil {
		return nil, s.wrap("get", err)
	}
	return in, nil
}

// Create adds an integration
func (s *Service) Create(ctx context.Context, input Input) (*integration.Integration, error) {
	in, err := integration.NewIntegration(input.Name, input.URL, input.Events, input.Secret)
	if err != nil {
		return nil, err
	}
	if input.Active != nil {
		in.SetActive(*input.Active)
	}
	if err := s.integrations.Create(ctx, in); err != nil {
		return nil, s.wrap("create", err)
	}
	s.logger.Info("Integration created", zap.String("integration_id", in.ID.String()), zap.Strings("events", in.Events))
	return in, nil
}

// Update replaces an integration definition. An empty secret keeps the
// stored one.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input Input) (*integration.Integration, error) {
	in, err := s.integrations.FindByID(ctx, id)
	if err != nil {
		return nil, s.wrap("update", err)
	}
	secret := input.Secret
	if secret == "" {
		secret = in.Secret
	}
	if err := in.Update(input.Name, input.URL, input.Events, secret); err != nil {
		return nil, err
	}
	if input.Active != nil {
		in.SetActive(*input.Active)
	}
	if err := s.integrations.Update(ctx, in); err != nil {
		return nil, s.wrap("update", err)
	}
	return in, nil
}

// Delete removes an integration
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.integrations.Delete(ctx, id); err != nil {
		return s.wrap("delete", err)
	}
	return nil
}

// Test sends a ping delivery to one integration, active or not, and reports
// the response synchronously.
func (s *Service) Test(ctx context.Context, id uuid.UUID) (*TestResult, error) {
	in, err := s.integrations.FindByID(ctx, id)
	if err != nil {
		return nil, s.wrap("test", err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Event:      integration.EventPing,
		OccurredAt: s.dispatcher.now(),
		Data:       map[string]string{"integration_id": in.ID.String(), "name": in.Name},
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, s.wrap("test", err)
	}

	status, err := s.dispatcher.deliver(ctx, in, env, body)
	result := &TestResult{StatusCode: status, Success: err == nil && integration.IsSuccess(status)}
	if err != nil {
		result.Error = err.Error()
	}
	return result, nil
}

func (s *Service) wrap(op string, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return errIntegrationNotFound
	}
	if shared.IsDomainError(err) {
		return err
	}
	s.logger.Error("Integration operation failed", zap.String("operation", op), zap.Error(err))
	return shared.NewDomainError(shared.CodeInternal, "Failed to process integration request")
}
