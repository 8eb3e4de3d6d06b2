package assignment

import (
	"errors"
	"testing"
	"time"

	"salonsched/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign_ConflictInSameBranch(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Assign("res-a", "br-1", []string{"svc-1"}))

	err := v.Assign("res-b", "br-1", []string{"svc-1", "svc-2"})
	var conflict *model.AssignmentConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"svc-1"}, conflict.Conflicts)
	assert.Equal(t, "res-b", conflict.ResourceID)

	owner, ok := v.Owner("br-1", "svc-1")
	require.True(t, ok)
	assert.Equal(t, "res-a", owner, "resource A untouched")

	_, ok = v.Owner("br-1", "svc-2")
	assert.False(t, ok, "no partial assignment")
}

func TestAssign_FullConflictList(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Assign("res-a", "br-1", []string{"svc-1", "svc-3"}))
	require.NoError(t, v.Assign("room-c", "br-1", []string{"svc-4"}))

	err := v.Check("res-b", "br-1", []string{"svc-4", "svc-2", "svc-1", "svc-3"})
	var conflict *model.AssignmentConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"svc-1", "svc-3", "svc-4"}, conflict.Conflicts)
}

func TestAssign_CrossBranchAllowed(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Assign("res-a", "br-1", []string{"svc-1"}))
	require.NoError(t, v.Assign("res-b", "br-2", []string{"svc-1"}))

	ownerA, _ := v.Owner("br-1", "svc-1")
	ownerB, _ := v.Owner("br-2", "svc-1")
	assert.Equal(t, "res-a", ownerA)
	assert.Equal(t, "res-b", ownerB)
}

func TestAssign_ReplaceOwnSet(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Assign("res-a", "br-1", []string{"svc-1", "svc-2"}))
	require.NoError(t, v.Assign("res-a", "br-1", []string{"svc-2", "svc-3"}))

	_, ok := v.Owner("br-1", "svc-1")
	assert.False(t, ok, "dropped service released")
	assert.Equal(t, []string{"svc-1"}, v.Unassigned("br-1", []string{"svc-1", "svc-2", "svc-3"}))

	err := v.Assign("res-a", "br-2", []string{"svc-9"})
	var verr *model.ValidationError
	assert.True(t, errors.As(err, &verr), "resource cannot change branch")
}

func TestRelease(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Assign("res-a", "br-1", []string{"svc-1", "svc-2"}))

	released := v.Release("res-a")
	assert.Equal(t, []string{"svc-1", "svc-2"}, released)
	require.NoError(t, v.Assign("res-b", "br-1", []string{"svc-1", "svc-2"}))
	assert.Nil(t, v.Release("missing"))
}

func TestLoad_ReportsClashes(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	v := NewValidator()
	clashes := v.Load([]model.Resource{
		{ID: "res-b", BranchID: "br-1", ServiceIDs: []string{"svc-1", "svc-2"}, CreatedAt: base.Add(time.Hour)},
		{ID: "res-a", BranchID: "br-1", ServiceIDs: []string{"svc-1"}, CreatedAt: base},
	})

	require.Len(t, clashes, 1)
	assert.Equal(t, "res-b", clashes[0].ResourceID)
	assert.Equal(t, []string{"svc-1"}, clashes[0].Conflicts)

	owner, _ := v.Owner("br-1", "svc-1")
	assert.Equal(t, "res-a", owner, "oldest resource keeps the service")
	owner, _ = v.Owner("br-1", "svc-2")
	assert.Equal(t, "res-b", owner)
}
