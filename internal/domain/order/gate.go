package order

import "sync"

// IntakeGate serializes order creation per customer. A second submission
// for a held customer is rejected immediately rather than queued.
//
// The gate is in-memory and therefore only valid for a single process
// instance; order number generation is only as safe as this gate.
type IntakeGate struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

// NewIntakeGate returns an empty gate. Construct it once at startup and
// pass it to the order service.
func NewIntakeGate() *IntakeGate {
	return &IntakeGate{held: make(map[int64]struct{})}
}

// TryAcquire reports whether the customer slot was free and claims it.
// There is no queueing or fairness.
func (g *IntakeGate) TryAcquire(customerID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[customerID]; ok {
		return false
	}
	g.held[customerID] = struct{}{}
	return true
}

// Release frees the customer slot. Releasing an unheld slot is a no-op.
func (g *IntakeGate) Release(customerID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.held, customerID)
}
