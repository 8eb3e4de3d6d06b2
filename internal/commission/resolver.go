// Package commission picks the commission policy for a sale and computes the payout.
package commission

import (
	"fmt"
	"sort"

	"salonsched/internal/metrics"
	"salonsched/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Resolution is the payout for one sale.
type Resolution struct {
	Amount        decimal.Decimal      `json:"amount"`
	PolicyID      string               `json:"policy_id"`
	Type          model.CommissionType `json:"type"`
	StaffSpecific bool                 `json:"staff_specific"`
	Capped        bool                 `json:"capped"`
}

// Resolver selects the most specific policy: a staff set containing the staff member
// beats a policy for all staff. Ties go to the most recently created policy and are
// reported as integrity warnings.
type Resolver struct {
	logger zerolog.Logger
}

// NewResolver creates a resolver that logs integrity warnings to logger.
func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{logger: logger.With().Str("component", "commission").Logger()}
}

// Resolve computes the commission for a sale of saleAmount in scope made by staffID.
func (r *Resolver) Resolve(policies []model.CommissionPolicy, scope model.CommissionScope, staffID string, saleAmount decimal.Decimal) (Resolution, error) {
	v := model.NewValidationError()
	if !scope.Valid() {
		v.Add("scope", "unknown scope "+string(scope))
	}
	if saleAmount.IsNegative() {
		v.Add("sale_amount", "cannot be negative")
	}
	if err := v.Err(); err != nil {
		return Resolution{}, err
	}

	var specific, general []model.CommissionPolicy
	for _, p := range policies {
		if p.Scope != scope {
			continue
		}
		switch s := p.StaffScope.(type) {
		case model.StaffSet:
			if s.Includes(staffID) {
				specific = append(specific, p)
			}
		case model.AllStaff:
			general = append(general, p)
		}
	}

	var chosen model.CommissionPolicy
	switch {
	case len(specific) > 0:
		chosen = r.pick(specific, scope, staffID, "duplicate_staff_policy")
	case len(general) > 0:
		chosen = r.pick(general, scope, staffID, "duplicate_all_staff_policy")
	default:
		return Resolution{}, fmt.Errorf("%w for scope %s and staff %s", model.ErrNoPolicy, scope, staffID)
	}

	amount, capped := Compute(chosen, saleAmount)
	metrics.IncCommissionResolved(string(chosen.Type))
	return Resolution{
		Amount:        amount,
		PolicyID:      chosen.ID,
		Type:          chosen.Type,
		StaffSpecific: chosen.IsStaffSpecific(),
		Capped:        capped,
	}, nil
}

func (r *Resolver) pick(candidates []model.CommissionPolicy, scope model.CommissionScope, staffID, kind string) model.CommissionPolicy {
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID > candidates[j].ID
	})
	if len(candidates) > 1 {
		ids := make([]string, 0, len(candidates))
		for _, p := range candidates {
			ids = append(ids, p.ID)
		}
		w := model.IntegrityWarning{
			Kind:   kind,
			Detail: fmt.Sprintf("%d policies match scope %s for staff %s, using %s", len(candidates), scope, staffID, candidates[0].ID),
			IDs:    ids,
		}
		metrics.IncIntegrityWarning(w.Kind)
		r.logger.Warn().
			Str("kind", w.Kind).
			Strs("policy_ids", w.IDs).
			Str("chosen", candidates[0].ID).
			Msg(w.Detail)
	}
	return candidates[0]
}

// Compute applies one policy to a sale amount. Percent policies pay amount*value/100.
// Fixed policies pay value, capped at the sale amount when the seller is paid.
func Compute(p model.CommissionPolicy, saleAmount decimal.Decimal) (amount decimal.Decimal, capped bool) {
	switch p.Type {
	case model.CommissionPercent:
		return saleAmount.Mul(p.Value).Shift(-2), false
	case model.CommissionFixed:
		if p.AppliesTo == model.TargetSeller && p.Value.GreaterThan(saleAmount) {
			return saleAmount, true
		}
		return p.Value, false
	default:
		return decimal.Zero, false
	}
}

// CheckDuplicate enforces at most one staff-specific policy per (scope, staff id).
// candidate is compared against existing, ignoring a policy with the same id.
func CheckDuplicate(existing []model.CommissionPolicy, candidate model.CommissionPolicy) error {
	set, ok := candidate.StaffScope.(model.StaffSet)
	if !ok {
		return nil
	}
	for _, p := range existing {
		if p.ID == candidate.ID || p.Scope != candidate.Scope {
			continue
		}
		other, ok := p.StaffScope.(model.StaffSet)
		if !ok {
			continue
		}
		for _, id := range set.IDs {
			if other.Includes(id) {
				return fmt.Errorf("%w: staff %s already covered by policy %s for scope %s", model.ErrDuplicatePolicy, id, p.ID, p.Scope)
			}
		}
	}
	return nil
}
