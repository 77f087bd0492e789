package aggregates

import "sketchroom-backend/domain/core/entities"

// InProgressTable maps a producer to the single operation it is currently
// drawing. Beginning a new operation silently replaces the old one.
// Not safe for concurrent use; the owning room serializes access.
type InProgressTable struct {
	ops map[string]*entities.Operation
}

// NewInProgressTable creates an empty table.
func NewInProgressTable() *InProgressTable {
	return &InProgressTable{ops: make(map[string]*entities.Operation)}
}

func (t *InProgressTable) Put(producerID string, op *entities.Operation) {
	t.ops[producerID] = op
}

func (t *InProgressTable) Get(producerID string) (*entities.Operation, bool) {
	op, ok := t.ops[producerID]
	return op, ok
}

// Take removes and returns the producer's operation.
func (t *InProgressTable) Take(producerID string) (*entities.Operation, bool) {
	op, ok := t.ops[producerID]
	if ok {
		delete(t.ops, producerID)
	}
	return op, ok
}

func (t *InProgressTable) Clear() {
	clear(t.ops)
}

func (t *InProgressTable) Len() int {
	return len(t.ops)
}
