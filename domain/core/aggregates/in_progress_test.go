package aggregates

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sketchroom-backend/domain/core/entities"
)

func TestInProgressTable(t *testing.T) {
	table := NewInProgressTable()
	first := &entities.Operation{ID: "1"}
	second := &entities.Operation{ID: "2"}

	table.Put("alice", first)
	table.Put("alice", second)
	assert.Equal(t, 1, table.Len())

	got, ok := table.Get("alice")
	assert.True(t, ok)
	assert.Same(t, second, got)

	taken, ok := table.Take("alice")
	assert.True(t, ok)
	assert.Same(t, second, taken)

	_, ok = table.Take("alice")
	assert.False(t, ok)

	table.Put("bob", first)
	table.Clear()
	assert.Zero(t, table.Len())
	_, ok = table.Get("bob")
	assert.False(t, ok)
}
