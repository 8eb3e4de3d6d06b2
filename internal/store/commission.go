package store

import (
	"context"
	"fmt"

	"salonsched/internal/commission"
	"salonsched/internal/model"

	"github.com/shopspring/decimal"
)

// CreatePolicy stores a commission policy. A second staff-specific policy covering an
// already covered (scope, staff) pair is rejected with ErrDuplicatePolicy.
func (s *Store) CreatePolicy(ctx context.Context, p model.CommissionPolicy) (model.CommissionPolicy, int64, error) {
	if set, ok := p.StaffScope.(model.StaffSet); ok {
		p.StaffScope = model.StaffSet{IDs: model.NormalizeIDs(set.IDs)}
	}
	if err := p.Validate(); err != nil {
		return model.CommissionPolicy{}, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.newID()
	} else if _, ok := s.state.Policies[p.ID]; ok {
		return model.CommissionPolicy{}, 0, model.Invalid("id", "policy "+p.ID+" already exists")
	}
	if err := commission.CheckDuplicate(s.state.PolicyList(), p); err != nil {
		return model.CommissionPolicy{}, 0, err
	}
	p.Version = 1
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}

	version, err := s.commit(ctx, Change{Policies: []model.CommissionPolicy{p}}, func(int64) {
		s.state.Policies[p.ID] = p
	})
	if err != nil {
		return model.CommissionPolicy{}, 0, fmt.Errorf("create policy: %w", err)
	}
	return p, version, nil
}

func (s *Store) DeletePolicy(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Policies[id]; !ok {
		return 0, notFound("policy", id)
	}
	version, err := s.commit(ctx, Change{DeletedPolicies: []string{id}}, func(int64) {
		delete(s.state.Policies, id)
	})
	if err != nil {
		return 0, fmt.Errorf("delete policy: %w", err)
	}
	return version, nil
}

// Policies lists every policy by creation time.
func (s *Store) Policies() []model.CommissionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.PolicyList()
}

// ResolveCommission computes the commission of a sale against the stored policies.
func (s *Store) ResolveCommission(scope model.CommissionScope, staffID string, saleAmount decimal.Decimal) (commission.Resolution, error) {
	s.mu.RLock()
	policies := s.state.PolicyList()
	s.mu.RUnlock()
	return s.resolver.Resolve(policies, scope, staffID, saleAmount)
}
