package aggregates

import (
	"github.com/google/uuid"

	"sketchroom-backend/domain/core/entities"
	"sketchroom-backend/domain/core/valueobjects"
)

// DefaultMaxLogLength bounds the applied history of a room.
const DefaultMaxLogLength = 2000

// OperationLog is the aggregate holding a room's drawing history: the
// finalized operations in application order, the redo buffer, and the
// strokes still being drawn.
//
// Undo and redo are global to the room; any member may undo anyone's stroke.
// The log never returns errors. Lookups that find nothing report false and
// leave state untouched. Not safe for concurrent use.
type OperationLog struct {
	applied    []*entities.Operation
	redo       []*entities.Operation
	inProgress *InProgressTable
	maxLen     int
	newID      func() string
}

// LogOption customizes an OperationLog.
type LogOption func(*OperationLog)

// WithMaxLength overrides the retention cap. Values below 1 are ignored.
func WithMaxLength(n int) LogOption {
	return func(l *OperationLog) {
		if n > 0 {
			l.maxLen = n
		}
	}
}

// WithIDGenerator overrides how operation ids are minted.
func WithIDGenerator(gen func() string) LogOption {
	return func(l *OperationLog) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// NewOperationLog creates an empty log.
func NewOperationLog(opts ...LogOption) *OperationLog {
	l := &OperationLog{
		applied:    make([]*entities.Operation, 0, 64),
		inProgress: NewInProgressTable(),
		maxLen:     DefaultMaxLogLength,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BeginOperation starts a stroke for authorID, replacing any stroke the
// author had in progress.
func (l *OperationLog) BeginOperation(authorID string, style valueobjects.StrokeStyle, clientTempID string) *entities.Operation {
	op := entities.NewStroke(l.newID(), authorID, style, clientTempID)
	l.inProgress.Put(authorID, op)
	return op
}

// AppendPoints extends the author's in-progress stroke.
func (l *OperationLog) AppendPoints(authorID string, points []valueobjects.Point) (*entities.Operation, bool) {
	op, ok := l.inProgress.Get(authorID)
	if !ok {
		return nil, false
	}
	op.AppendPoints(points)
	return op, true
}

// FinalizeOperation commits the author's in-progress stroke to the history.
// Any redo history is discarded and the oldest entries are trimmed past the
// retention cap.
func (l *OperationLog) FinalizeOperation(authorID string) (*entities.Operation, bool) {
	op, ok := l.inProgress.Take(authorID)
	if !ok {
		return nil, false
	}
	l.applied = append(l.applied, op)
	clear(l.redo)
	l.redo = l.redo[:0]
	if overflow := len(l.applied) - l.maxLen; overflow > 0 {
		clear(l.applied[:overflow])
		l.applied = l.applied[overflow:]
	}
	return op, true
}

// Undo moves the most recent operation onto the redo buffer.
func (l *OperationLog) Undo() (*entities.Operation, bool) {
	n := len(l.applied)
	if n == 0 {
		return nil, false
	}
	op := l.applied[n-1]
	l.applied[n-1] = nil
	l.applied = l.applied[:n-1]
	l.redo = append(l.redo, op)
	return op, true
}

// Redo reapplies the most recently undone operation.
func (l *OperationLog) Redo() (*entities.Operation, bool) {
	n := len(l.redo)
	if n == 0 {
		return nil, false
	}
	op := l.redo[n-1]
	l.redo[n-1] = nil
	l.redo = l.redo[:n-1]
	l.applied = append(l.applied, op)
	return op, true
}

// Clear drops the history, the redo buffer and every in-progress stroke.
func (l *OperationLog) Clear() {
	clear(l.applied)
	l.applied = l.applied[:0]
	clear(l.redo)
	l.redo = l.redo[:0]
	l.inProgress.Clear()
}

// Snapshot returns the applied operations in order. The slice is a copy;
// the operations are shared.
func (l *OperationLog) Snapshot() []*entities.Operation {
	out := make([]*entities.Operation, len(l.applied))
	copy(out, l.applied)
	return out
}

// Len returns the number of applied operations.
func (l *OperationLog) Len() int {
	return len(l.applied)
}

// RedoLen returns the number of operations available to redo.
func (l *OperationLog) RedoLen() int {
	return len(l.redo)
}

// InProgressLen returns the number of strokes currently being drawn.
func (l *OperationLog) InProgressLen() int {
	return l.inProgress.Len()
}
