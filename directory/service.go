package directory

import "context"

// Reader abstracts repository operations for the service.
type Reader interface {
	AgentExists(ctx context.Context, id string) (bool, error)
	BranchExists(ctx context.Context, id string) (bool, error)
	AccountExists(ctx context.Context, id string) (bool, error)
	AgentSummary(ctx context.Context, id string) (AgentSummary, error)
	BillingCategory(ctx context.Context, id string) (BillingCategory, error)
}

// Service exposes lookup operations against the external back-office data.
type Service struct {
	repo Reader
}

// NewService builds a Service using the provided repository.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

func (s *Service) AgentExists(ctx context.Context, id string) (bool, error) {
	return s.repo.AgentExists(ctx, id)
}

func (s *Service) BranchExists(ctx context.Context, id string) (bool, error) {
	return s.repo.BranchExists(ctx, id)
}

func (s *Service) AccountExists(ctx context.Context, id string) (bool, error) {
	return s.repo.AccountExists(ctx, id)
}

// AgentSummary returns the display slice for the given agent profile.
func (s *Service) AgentSummary(ctx context.Context, id string) (AgentSummary, error) {
	return s.repo.AgentSummary(ctx, id)
}

// BillingCategory returns the billing category with its allowed purposes.
func (s *Service) BillingCategory(ctx context.Context, id string) (BillingCategory, error) {
	return s.repo.BillingCategory(ctx, id)
}
