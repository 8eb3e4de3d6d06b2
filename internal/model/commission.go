package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CommissionScope is the kind of sale a policy applies to.
type CommissionScope string

const (
	ScopeServiceCategory CommissionScope = "service_category"
	ScopeService         CommissionScope = "service"
	ScopeProduct         CommissionScope = "product"
	ScopeGiftCard        CommissionScope = "gift_card"
	ScopeMembership      CommissionScope = "membership"
	ScopePackage         CommissionScope = "package"
)

func (s CommissionScope) Valid() bool {
	switch s {
	case ScopeServiceCategory, ScopeService, ScopeProduct, ScopeGiftCard, ScopeMembership, ScopePackage:
		return true
	}
	return false
}

// CommissionType selects the payout formula.
type CommissionType string

const (
	CommissionPercent CommissionType = "percent"
	CommissionFixed   CommissionType = "fixed"
)

// CommissionTarget is who receives the commission.
type CommissionTarget string

const (
	TargetServiceProvider CommissionTarget = "service_provider"
	TargetSeller          CommissionTarget = "seller"
)

// StaffScope is either AllStaff or StaffSet.
type StaffScope interface {
	Includes(staffID string) bool
	staffScope()
}

// AllStaff matches every staff member.
type AllStaff struct{}

func (AllStaff) Includes(string) bool { return true }
func (AllStaff) staffScope()          {}

// StaffSet matches the listed staff members only.
type StaffSet struct {
	IDs []string
}

func (s StaffSet) Includes(staffID string) bool { return contains(s.IDs, staffID) }
func (StaffSet) staffScope()                    {}

// CommissionPolicy maps a sale scope and a set of staff to a payout rule.
type CommissionPolicy struct {
	ID         string           `json:"id"`
	Scope      CommissionScope  `json:"scope"`
	Type       CommissionType   `json:"type"`
	Value      decimal.Decimal  `json:"value"`
	AppliesTo  CommissionTarget `json:"applies_to"`
	StaffScope StaffScope       `json:"-"`
	Version    int64            `json:"version"`
	CreatedAt  time.Time        `json:"created_at"`
}

// IsStaffSpecific reports whether the policy targets explicit staff ids.
func (p CommissionPolicy) IsStaffSpecific() bool {
	_, ok := p.StaffScope.(StaffSet)
	return ok
}

func (p CommissionPolicy) Validate() error {
	v := NewValidationError()
	if !p.Scope.Valid() {
		v.Add("scope", "unknown scope "+string(p.Scope))
	}
	if p.Type != CommissionPercent && p.Type != CommissionFixed {
		v.Add("type", "must be percent or fixed")
	}
	if p.Value.IsNegative() {
		v.Add("value", "cannot be negative")
	}
	if p.AppliesTo != TargetServiceProvider && p.AppliesTo != TargetSeller {
		v.Add("applies_to", "must be service_provider or seller")
	}
	switch s := p.StaffScope.(type) {
	case AllStaff:
	case StaffSet:
		if len(s.IDs) == 0 {
			v.Add("staff_scope", "staff_ids cannot be empty")
		}
	default:
		v.Add("staff_scope", "is required")
	}
	return v.Err()
}

// staffScopeJSON is "all" or {"staff_ids": [...]} on the wire.
type staffScopeJSON struct {
	StaffIDs []string `json:"staff_ids"`
}

// MarshalStaffScope encodes a scope to its wire form.
func MarshalStaffScope(s StaffScope) ([]byte, error) {
	switch v := s.(type) {
	case AllStaff:
		return json.Marshal("all")
	case StaffSet:
		return json.Marshal(staffScopeJSON{StaffIDs: v.IDs})
	default:
		return nil, fmt.Errorf("unknown staff scope %T", s)
	}
}

// UnmarshalStaffScope decodes "all" or {"staff_ids": [...]}.
func UnmarshalStaffScope(data []byte) (StaffScope, error) {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag == "all" {
			return AllStaff{}, nil
		}
		return nil, fmt.Errorf("invalid staff scope %q", tag)
	}
	var set staffScopeJSON
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("invalid staff scope: %w", err)
	}
	return StaffSet{IDs: NormalizeIDs(set.StaffIDs)}, nil
}

type policyAlias CommissionPolicy

// MarshalJSON adds the staff_scope union to the plain fields.
func (p CommissionPolicy) MarshalJSON() ([]byte, error) {
	var scope json.RawMessage
	if p.StaffScope != nil {
		raw, err := MarshalStaffScope(p.StaffScope)
		if err != nil {
			return nil, err
		}
		scope = raw
	}
	return json.Marshal(struct {
		policyAlias
		StaffScope json.RawMessage `json:"staff_scope,omitempty"`
	}{policyAlias(p), scope})
}

// UnmarshalJSON reads the staff_scope union.
func (p *CommissionPolicy) UnmarshalJSON(data []byte) error {
	aux := struct {
		*policyAlias
		StaffScope json.RawMessage `json:"staff_scope"`
	}{policyAlias: (*policyAlias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.StaffScope) == 0 {
		p.StaffScope = nil
		return nil
	}
	scope, err := UnmarshalStaffScope(aux.StaffScope)
	if err != nil {
		return err
	}
	p.StaffScope = scope
	return nil
}
