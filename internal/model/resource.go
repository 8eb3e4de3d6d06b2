package model

import (
	"sort"
	"time"
)

// ResourceKind distinguishes rooms from other capacity units (chairs, equipment).
type ResourceKind string

const (
	KindResource ResourceKind = "resource"
	KindRoom     ResourceKind = "room"
)

// Resource is a physical capacity unit. A service id belongs to at most one resource per branch.
type Resource struct {
	ID         string       `json:"id"`
	BranchID   string       `json:"branch_id"`
	Kind       ResourceKind `json:"kind"`
	Name       string       `json:"name"`
	Capacity   int          `json:"capacity"`
	ServiceIDs []string     `json:"service_ids"`
	Version    int64        `json:"version"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (r Resource) HasService(id string) bool {
	return contains(r.ServiceIDs, id)
}

func (r Resource) Validate() error {
	v := NewValidationError()
	if r.BranchID == "" {
		v.Add("branch_id", "is required")
	}
	if r.Kind != KindResource && r.Kind != KindRoom {
		v.Add("kind", "must be resource or room")
	}
	if r.Capacity < 1 {
		v.Add("capacity", "must be at least 1")
	}
	return v.Err()
}

// Clone returns a deep copy.
func (r Resource) Clone() Resource {
	out := r
	out.ServiceIDs = append([]string(nil), r.ServiceIDs...)
	return out
}

// NormalizeIDs returns ids sorted with blanks and duplicates removed.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
