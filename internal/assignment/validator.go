// Package assignment keeps the exclusive service to resource mapping of every branch.
package assignment

import (
	"sort"
	"sync"

	"salonsched/internal/model"
)

// Validator tracks, per branch, which resource or room owns each service id.
type Validator struct {
	mu sync.RWMutex

	owners   map[string]map[string]string // branch -> service -> resource
	branches map[string]string            // resource -> branch
	services map[string][]string          // resource -> services
}

// NewValidator returns an empty validator.
func NewValidator() *Validator {
	return &Validator{
		owners:   make(map[string]map[string]string),
		branches: make(map[string]string),
		services: make(map[string][]string),
	}
}

// Check reports, without changing anything, every service id in serviceIDs that another
// resource of branchID already owns.
func (v *Validator) Check(resourceID, branchID string, serviceIDs []string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.check(resourceID, branchID, model.NormalizeIDs(serviceIDs))
}

func (v *Validator) check(resourceID, branchID string, serviceIDs []string) error {
	if resourceID == "" || branchID == "" {
		return model.Invalid("resource", "resource id and branch id are required")
	}
	if current, ok := v.branches[resourceID]; ok && current != branchID {
		return model.Invalid("branch_id", "resource "+resourceID+" belongs to branch "+current)
	}

	owners := v.owners[branchID]
	var conflicts []string
	for _, id := range serviceIDs {
		if owner, ok := owners[id]; ok && owner != resourceID {
			conflicts = append(conflicts, id)
		}
	}
	if len(conflicts) > 0 {
		return &model.AssignmentConflictError{ResourceID: resourceID, BranchID: branchID, Conflicts: conflicts}
	}
	return nil
}

// Assign replaces the service set of a resource. On conflict nothing changes and the
// returned AssignmentConflictError lists every offending service id.
func (v *Validator) Assign(resourceID, branchID string, serviceIDs []string) error {
	ids := model.NormalizeIDs(serviceIDs)

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.check(resourceID, branchID, ids); err != nil {
		return err
	}
	v.release(resourceID)

	owners, ok := v.owners[branchID]
	if !ok {
		owners = make(map[string]string)
		v.owners[branchID] = owners
	}
	for _, id := range ids {
		owners[id] = resourceID
	}
	v.branches[resourceID] = branchID
	v.services[resourceID] = ids
	return nil
}

// Release returns every service of a resource to the unassigned pool.
func (v *Validator) Release(resourceID string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.release(resourceID)
}

func (v *Validator) release(resourceID string) []string {
	branchID, ok := v.branches[resourceID]
	if !ok {
		return nil
	}
	released := v.services[resourceID]
	owners := v.owners[branchID]
	for _, id := range released {
		if owners[id] == resourceID {
			delete(owners, id)
		}
	}
	if len(owners) == 0 {
		delete(v.owners, branchID)
	}
	delete(v.branches, resourceID)
	delete(v.services, resourceID)
	return released
}

// Owner returns the resource holding serviceID in branchID.
func (v *Validator) Owner(branchID, serviceID string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	owner, ok := v.owners[branchID][serviceID]
	return owner, ok
}

// Unassigned filters serviceIDs down to those no resource of the branch owns.
func (v *Validator) Unassigned(branchID string, serviceIDs []string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []string
	for _, id := range model.NormalizeIDs(serviceIDs) {
		if _, ok := v.owners[branchID][id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Load rebuilds the validator from stored resources. Resources whose services are
// already owned are still loaded without the conflicting ids, and every such clash is
// returned so the caller can report it.
func (v *Validator) Load(resources []model.Resource) []model.AssignmentConflictError {
	sorted := append([]model.Resource(nil), resources...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	v.mu.Lock()
	defer v.mu.Unlock()
	v.owners = make(map[string]map[string]string)
	v.branches = make(map[string]string)
	v.services = make(map[string][]string)

	var clashes []model.AssignmentConflictError
	for _, r := range sorted {
		owners, ok := v.owners[r.BranchID]
		if !ok {
			owners = make(map[string]string)
			v.owners[r.BranchID] = owners
		}
		var kept, lost []string
		for _, id := range model.NormalizeIDs(r.ServiceIDs) {
			if owner, taken := owners[id]; taken && owner != r.ID {
				lost = append(lost, id)
				continue
			}
			owners[id] = r.ID
			kept = append(kept, id)
		}
		v.branches[r.ID] = r.BranchID
		v.services[r.ID] = kept
		if len(lost) > 0 {
			clashes = append(clashes, model.AssignmentConflictError{ResourceID: r.ID, BranchID: r.BranchID, Conflicts: lost})
		}
	}
	return clashes
}

