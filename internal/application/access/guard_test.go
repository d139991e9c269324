package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestGuard_OwnerAndAdmin(t *testing.T) {
	t.Parallel()

	g := New()
	owner := strPtr("user-1")

	for _, op := range []Operation{OpRead, OpWrite, OpExecute, OpDebug} {
		assert.True(t, g.Can("user-1", RoleUser, owner, op), "owner denied %s", op)
		assert.True(t, g.Can("someone-else", RoleAdmin, owner, op), "admin denied %s", op)
		assert.False(t, g.Can("someone-else", RoleUser, owner, op), "stranger permitted %s", op)
	}
}

func TestGuard_LegacySharedResources(t *testing.T) {
	t.Parallel()

	g := New()
	// nil owner marks a legacy resource: open to everyone.
	for _, op := range []Operation{OpRead, OpWrite, OpExecute, OpDebug} {
		assert.True(t, g.Can("anyone", RoleUser, nil, op))
	}
}

func TestGuard_DenialErrorShapes(t *testing.T) {
	t.Parallel()

	g := New()
	owner := strPtr("user-1")

	// Read and debug denials look like missing resources so IDs cannot be
	// enumerated.
	assert.ErrorIs(t, g.Authorize("intruder", RoleUser, owner, OpRead), ErrNotFound)
	assert.ErrorIs(t, g.Authorize("intruder", RoleUser, owner, OpDebug), ErrNotFound)

	// Write and execute on caller-named targets are explicit denials.
	assert.ErrorIs(t, g.Authorize("intruder", RoleUser, owner, OpWrite), ErrAccessDenied)
	assert.ErrorIs(t, g.Authorize("intruder", RoleUser, owner, OpExecute), ErrAccessDenied)

	assert.NoError(t, g.Authorize("user-1", RoleUser, owner, OpWrite))
}
