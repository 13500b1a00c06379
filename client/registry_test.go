// ABOUTME: Tests for the per-org operation registry
// ABOUTME: Cancellation must be scoped to one org and reentrancy-safe

package client

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOperation(t *testing.T) {
	ctx, op, finish := NewOperation(context.Background())

	assert.False(t, op.Finished())
	assert.NoError(t, ctx.Err())

	finish()
	assert.True(t, op.Finished())
	assert.Error(t, ctx.Err(), "finish releases the context")
}

func TestNewOperation_Cancel(t *testing.T) {
	ctx, op, _ := NewOperation(context.Background())

	op.Cancel()
	assert.Error(t, ctx.Err())
	// Cancelled is not finished; the operation's goroutine still has to
	// observe the cancellation and wind down.
	assert.False(t, op.Finished())

	// Cancel is idempotent.
	op.Cancel()
}

func TestOperationRegistry_CancelAllScopedToOrg(t *testing.T) {
	r := NewOperationRegistry()
	org1 := uuid.New()
	org2 := uuid.New()

	ctx1, op1, _ := NewOperation(context.Background())
	ctx2, op2, _ := NewOperation(context.Background())
	r.Register(org1, op1)
	r.Register(org2, op2)

	r.CancelAll(org1)

	assert.Error(t, ctx1.Err(), "org1 operation should be cancelled")
	assert.NoError(t, ctx2.Err(), "org2 operation must be untouched")
	assert.Equal(t, 0, r.Len(org1))
	assert.Equal(t, 1, r.Len(org2))
}

func TestOperationRegistry_CancelAllTenants(t *testing.T) {
	r := NewOperationRegistry()

	var ctxs []context.Context
	for i := 0; i < 3; i++ {
		ctx, op, _ := NewOperation(context.Background())
		r.Register(uuid.New(), op)
		ctxs = append(ctxs, ctx)
	}

	r.CancelAllTenants()
	for _, ctx := range ctxs {
		assert.Error(t, ctx.Err())
	}
}

func TestOperationRegistry_Prune(t *testing.T) {
	r := NewOperationRegistry()
	orgID := uuid.New()

	_, running, _ := NewOperation(context.Background())
	_, done, finish := NewOperation(context.Background())
	r.Register(orgID, running)
	r.Register(orgID, done)
	finish()

	r.Prune()
	assert.Equal(t, 1, r.Len(orgID))

	// An org whose operations all finished disappears entirely.
	other := uuid.New()
	_, op, finishOther := NewOperation(context.Background())
	r.Register(other, op)
	finishOther()
	r.Prune()
	assert.Equal(t, 0, r.Len(other))
}

// reentrantOp calls back into the registry from Cancel, which deadlocks if
// cancellation runs under the registry lock.
type reentrantOp struct {
	r     *OperationRegistry
	orgID uuid.UUID
	done  bool
}

func (o *reentrantOp) Cancel()        { o.r.CancelAll(o.orgID); o.done = true }
func (o *reentrantOp) Finished() bool { return o.done }

func TestOperationRegistry_CancelReentrancy(t *testing.T) {
	r := NewOperationRegistry()
	orgID := uuid.New()

	op := &reentrantOp{r: r, orgID: orgID}
	r.Register(orgID, op)

	// Must not deadlock.
	r.CancelAll(orgID)
	require.True(t, op.done)
}
