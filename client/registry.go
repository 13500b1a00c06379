// ABOUTME: Per-org registry of in-flight operations with bulk cancellation
// ABOUTME: Cancellation is advisory; operations observe it via their context

package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Operation is a cancellable unit of in-flight work. Cancel is advisory:
// the operation's own goroutine decides when to stop, typically by watching
// the context it was started with.
type Operation interface {
	// Cancel requests that the operation stop. Safe to call repeatedly.
	Cancel()
	// Finished reports whether the operation has completed, whether it ran
	// to the end or stopped after cancellation.
	Finished() bool
}

// ctxOperation backs an Operation with a cancellable context.
type ctxOperation struct {
	cancel context.CancelFunc
	mu     sync.Mutex
	done   bool
}

// NewOperation derives a cancellable context from parent and returns it with
// an Operation handle. The caller marks completion with finish().
func NewOperation(parent context.Context) (context.Context, Operation, func()) {
	ctx, cancel := context.WithCancel(parent)
	op := &ctxOperation{cancel: cancel}
	finish := func() {
		op.mu.Lock()
		op.done = true
		op.mu.Unlock()
		cancel()
	}
	return ctx, op, finish
}

func (o *ctxOperation) Cancel() {
	o.cancel()
}

func (o *ctxOperation) Finished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// OperationRegistry tracks in-flight operations grouped by org. Switching
// orgs cancels the outgoing org's operations in bulk without touching any
// other org's work.
type OperationRegistry struct {
	mu  sync.Mutex
	ops map[uuid.UUID][]Operation
}

// NewOperationRegistry returns an empty registry.
func NewOperationRegistry() *OperationRegistry {
	return &OperationRegistry{ops: make(map[uuid.UUID][]Operation)}
}

// Register records op as in-flight for orgID.
func (r *OperationRegistry) Register(orgID uuid.UUID, op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[orgID] = append(r.ops[orgID], op)
}

// CancelAll cancels every operation registered for orgID. The operations
// are detached under the lock and cancelled outside it, so a Cancel
// implementation is free to call back into the registry.
func (r *OperationRegistry) CancelAll(orgID uuid.UUID) {
	r.mu.Lock()
	ops := r.ops[orgID]
	delete(r.ops, orgID)
	r.mu.Unlock()

	for _, op := range ops {
		op.Cancel()
	}
}

// CancelAllTenants cancels every operation for every org. Used on sign-out.
func (r *OperationRegistry) CancelAllTenants() {
	r.mu.Lock()
	all := r.ops
	r.ops = make(map[uuid.UUID][]Operation)
	r.mu.Unlock()

	for _, ops := range all {
		for _, op := range ops {
			op.Cancel()
		}
	}
}

// Prune drops finished operations so the registry does not grow without
// bound under long-lived orgs.
func (r *OperationRegistry) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for orgID, ops := range r.ops {
		kept := ops[:0]
		for _, op := range ops {
			if !op.Finished() {
				kept = append(kept, op)
			}
		}
		if len(kept) == 0 {
			delete(r.ops, orgID)
		} else {
			r.ops[orgID] = kept
		}
	}
}

// Len reports the number of registered operations for orgID, including any
// that have finished but not yet been pruned.
func (r *OperationRegistry) Len(orgID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops[orgID])
}
