package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"salonsched/internal/metrics"
	"salonsched/internal/model"
)

// CreateResource stores a resource or room with its initial service set. The whole
// command fails when any service is already held by another resource of the branch.
func (s *Store) CreateResource(ctx context.Context, r model.Resource) (model.Resource, int64, error) {
	r = r.Clone()
	if r.Kind == "" {
		r.Kind = model.KindResource
	}
	if r.Capacity == 0 {
		r.Capacity = 1
	}
	r.ServiceIDs = model.NormalizeIDs(r.ServiceIDs)
	if err := r.Validate(); err != nil {
		return model.Resource{}, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.newID()
	} else if _, ok := s.state.Resources[r.ID]; ok {
		return model.Resource{}, 0, model.Invalid("id", "resource "+r.ID+" already exists")
	}
	if err := s.checkAssignment(r.ID, r.BranchID, r.ServiceIDs); err != nil {
		return model.Resource{}, 0, err
	}
	r.Version = 1
	r.CreatedAt = s.now()

	version, err := s.commit(ctx, Change{Resources: []model.Resource{r}}, func(int64) {
		s.state.Resources[r.ID] = r
		s.index.PutResource(r)
		s.mustAssign(r)
	})
	if err != nil {
		return model.Resource{}, 0, fmt.Errorf("create resource: %w", err)
	}
	return r.Clone(), version, nil
}

// AssignServices replaces the service set of a resource, all or nothing.
func (s *Store) AssignServices(ctx context.Context, resourceID string, serviceIDs []string, expectedVersion int64) (model.Resource, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.state.Resources[resourceID]
	if !ok {
		return model.Resource{}, 0, notFound("resource", resourceID)
	}
	if err := checkVersion("resource", resourceID, expectedVersion, r.Version); err != nil {
		return model.Resource{}, 0, err
	}
	ids := model.NormalizeIDs(serviceIDs)
	if err := s.checkAssignment(r.ID, r.BranchID, ids); err != nil {
		return model.Resource{}, 0, err
	}

	r = r.Clone()
	r.ServiceIDs = ids
	r.Version++

	version, err := s.commit(ctx, Change{Resources: []model.Resource{r}}, func(int64) {
		s.state.Resources[r.ID] = r
		s.index.PutResource(r)
		s.mustAssign(r)
	})
	if err != nil {
		return model.Resource{}, 0, fmt.Errorf("assign services: %w", err)
	}
	s.logger.Info().Str("resource_id", r.ID).Strs("services", ids).Msg("services assigned")
	return r.Clone(), version, nil
}

// DeleteResource removes a resource and releases its services.
func (s *Store) DeleteResource(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Resources[id]; !ok {
		return 0, notFound("resource", id)
	}
	version, err := s.commit(ctx, Change{DeletedResources: []string{id}}, func(int64) {
		delete(s.state.Resources, id)
		s.index.RemoveResource(id)
		s.assign.Release(id)
	})
	if err != nil {
		return 0, fmt.Errorf("delete resource: %w", err)
	}
	return version, nil
}

// Resource returns one resource.
func (s *Store) Resource(id string) (model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.Resources[id]
	if !ok {
		return model.Resource{}, notFound("resource", id)
	}
	return r.Clone(), nil
}

// Resources lists the resources of a branch (all when branchID is empty) by id.
func (s *Store) Resources(branchID string) []model.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Resource
	for _, r := range s.state.Resources {
		if branchID == "" || r.BranchID == branchID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnassignedServices returns the services of serviceIDs that no resource of the branch holds.
func (s *Store) UnassignedServices(branchID string, serviceIDs []string) []string {
	return s.assign.Unassigned(branchID, serviceIDs)
}

func (s *Store) checkAssignment(resourceID, branchID string, serviceIDs []string) error {
	err := s.assign.Check(resourceID, branchID, serviceIDs)
	var conflict *model.AssignmentConflictError
	if errors.As(err, &conflict) {
		metrics.IncAssignmentConflict()
		s.logger.Info().
			Str("resource_id", resourceID).
			Str("branch_id", branchID).
			Strs("conflicts", conflict.Conflicts).
			Msg("service assignment rejected")
	}
	return err
}

// mustAssign applies an assignment that checkAssignment accepted under the same lock.
func (s *Store) mustAssign(r model.Resource) {
	if err := s.assign.Assign(r.ID, r.BranchID, r.ServiceIDs); err != nil {
		s.logger.Error().Err(err).Str("resource_id", r.ID).Msg("assignment diverged from state")
	}
}
