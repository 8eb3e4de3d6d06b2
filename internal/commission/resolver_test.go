package commission

import (
	"errors"
	"testing"
	"time"

	"salonsched/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func policy(id string, typ model.CommissionType, value int64, scope model.StaffScope, created time.Duration) model.CommissionPolicy {
	return model.CommissionPolicy{
		ID:         id,
		Scope:      model.ScopeService,
		Type:       typ,
		Value:      dec(value),
		AppliesTo:  model.TargetServiceProvider,
		StaffScope: scope,
		CreatedAt:  base.Add(created),
	}
}

func TestResolve_StaffSpecificWins(t *testing.T) {
	r := NewResolver(zerolog.Nop())
	policies := []model.CommissionPolicy{
		policy("P1", model.CommissionPercent, 40, model.AllStaff{}, 0),
		policy("P2", model.CommissionFixed, 15, model.StaffSet{IDs: []string{"staff-7"}}, time.Hour),
	}

	got, err := r.Resolve(policies, model.ScopeService, "staff-7", dec(100))
	require.NoError(t, err)
	assert.Equal(t, "P2", got.PolicyID)
	assert.True(t, got.Amount.Equal(dec(15)), got.Amount.String())
	assert.True(t, got.StaffSpecific)

	got, err = r.Resolve(policies, model.ScopeService, "staff-8", dec(100))
	require.NoError(t, err)
	assert.Equal(t, "P1", got.PolicyID)
	assert.True(t, got.Amount.Equal(dec(40)), got.Amount.String())
	assert.False(t, got.StaffSpecific)
}

func TestResolve_ScopeFilter(t *testing.T) {
	r := NewResolver(zerolog.Nop())
	product := policy("prod", model.CommissionPercent, 10, model.AllStaff{}, 0)
	product.Scope = model.ScopeProduct

	_, err := r.Resolve([]model.CommissionPolicy{product}, model.ScopeService, "staff-1", dec(100))
	assert.ErrorIs(t, err, model.ErrNoPolicy)

	got, err := r.Resolve([]model.CommissionPolicy{product}, model.ScopeProduct, "staff-1", dec(250))
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec(25)))
}

func TestResolve_DuplicateStaffPolicies(t *testing.T) {
	r := NewResolver(zerolog.Nop())
	policies := []model.CommissionPolicy{
		policy("old", model.CommissionFixed, 10, model.StaffSet{IDs: []string{"staff-7"}}, 0),
		policy("new", model.CommissionFixed, 12, model.StaffSet{IDs: []string{"staff-7", "staff-9"}}, time.Hour),
		policy("all", model.CommissionPercent, 50, model.AllStaff{}, 2*time.Hour),
	}

	got, err := r.Resolve(policies, model.ScopeService, "staff-7", dec(100))
	require.NoError(t, err)
	assert.Equal(t, "new", got.PolicyID, "most recent staff-specific policy wins")
	assert.True(t, got.Amount.Equal(dec(12)))
}

func TestResolve_Validation(t *testing.T) {
	r := NewResolver(zerolog.Nop())
	policies := []model.CommissionPolicy{policy("P1", model.CommissionPercent, 40, model.AllStaff{}, 0)}

	_, err := r.Resolve(policies, model.ScopeService, "staff-1", dec(-5))
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "sale_amount")

	_, err = r.Resolve(policies, "tips", "staff-1", dec(5))
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "scope")
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name       string
		typ        model.CommissionType
		value      string
		appliesTo  model.CommissionTarget
		sale       string
		want       string
		wantCapped bool
	}{
		{"percent", model.CommissionPercent, "40", model.TargetServiceProvider, "100", "40", false},
		{"percent fractional", model.CommissionPercent, "12.5", model.TargetSeller, "19.99", "2.49875", false},
		{"percent of zero", model.CommissionPercent, "40", model.TargetServiceProvider, "0", "0", false},
		{"fixed provider", model.CommissionFixed, "15", model.TargetServiceProvider, "10", "15", false},
		{"fixed seller capped", model.CommissionFixed, "15", model.TargetSeller, "10", "10", true},
		{"fixed seller under sale", model.CommissionFixed, "15", model.TargetSeller, "100", "15", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := model.CommissionPolicy{Type: tt.typ, Value: decimal.RequireFromString(tt.value), AppliesTo: tt.appliesTo}
			got, capped := Compute(p, decimal.RequireFromString(tt.sale))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
			assert.Equal(t, tt.wantCapped, capped)
		})
	}
}

func TestCompute_NonNegativeAndLinear(t *testing.T) {
	p := model.CommissionPolicy{Type: model.CommissionPercent, Value: decimal.RequireFromString("37.5")}
	unit, _ := Compute(p, dec(1))
	for _, sale := range []int64{0, 1, 7, 100, 12345} {
		got, _ := Compute(p, dec(sale))
		assert.False(t, got.IsNegative())
		assert.True(t, got.Equal(unit.Mul(dec(sale))), "sale %d", sale)
	}
}

func TestCheckDuplicate(t *testing.T) {
	existing := []model.CommissionPolicy{
		policy("P1", model.CommissionPercent, 40, model.AllStaff{}, 0),
		policy("P2", model.CommissionFixed, 15, model.StaffSet{IDs: []string{"staff-7"}}, 0),
	}

	dup := policy("P3", model.CommissionFixed, 20, model.StaffSet{IDs: []string{"staff-8", "staff-7"}}, 0)
	assert.ErrorIs(t, CheckDuplicate(existing, dup), model.ErrDuplicatePolicy)

	otherScope := dup
	otherScope.Scope = model.ScopeProduct
	assert.NoError(t, CheckDuplicate(existing, otherScope))

	assert.NoError(t, CheckDuplicate(existing, policy("P4", model.CommissionPercent, 30, model.AllStaff{}, 0)))

	sameID := existing[1]
	sameID.Value = dec(16)
	assert.NoError(t, CheckDuplicate(existing, sameID), "updating a policy does not clash with itself")
}
