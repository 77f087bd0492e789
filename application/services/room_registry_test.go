package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketchroom-backend/domain/core/entities"
	"sketchroom-backend/domain/core/valueobjects"
)

var brush = valueobjects.StrokeStyle{Color: "#000", WidthPx: 4, Mode: valueobjects.ModeBrush}

func newTestRegistry() *RoomRegistry {
	n := 0
	var mu sync.Mutex
	return NewRoomRegistry(RegistryConfig{
		Palette: valueobjects.Palette{"#1", "#2", "#3"},
		NewOperationID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("op-%d", n)
		},
	})
}

func memberIDs(members []entities.Presence) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.ID
	}
	return out
}

func TestEnsureRoom(t *testing.T) {
	g := newTestRegistry()

	a := g.EnsureRoom("main")
	b := g.EnsureRoom("main")
	assert.Same(t, a, b)
	assert.Equal(t, "main", a.ID())
	assert.Equal(t, 1, g.Len())

	_, ok := g.Lookup("other")
	assert.False(t, ok)
	assert.Equal(t, 1, g.Len())
}

func TestAddMember(t *testing.T) {
	t.Run("Should assign palette colors by member count", func(t *testing.T) {
		g := newTestRegistry()
		colors := []string{}
		for _, id := range []string{"a", "b", "c", "d"} {
			colors = append(colors, g.AddMember("main", id, id).Color)
		}
		assert.Equal(t, []string{"#1", "#2", "#3", "#1"}, colors)
		assert.Equal(t, []string{"a", "b", "c", "d"}, memberIDs(g.ListMembers("main")))
	})

	t.Run("Should overwrite a re-added member in place", func(t *testing.T) {
		g := newTestRegistry()
		g.AddMember("main", "a", "Alice")
		g.AddMember("main", "b", "Bob")

		p := g.AddMember("main", "a", "Alicia")
		assert.Equal(t, "Alicia", p.DisplayName)
		members := g.ListMembers("main")
		assert.Equal(t, []string{"a", "b"}, memberIDs(members))
		assert.Equal(t, "Alicia", members[0].DisplayName)
	})

	t.Run("Should keep rooms independent", func(t *testing.T) {
		g := newTestRegistry()
		g.AddMember("one", "a", "A")
		p := g.AddMember("two", "b", "B")
		assert.Equal(t, "#1", p.Color)
		assert.True(t, g.IsMember("one", "a"))
		assert.False(t, g.IsMember("two", "a"))
	})
}

func TestRemoveMember(t *testing.T) {
	t.Run("Should report every affected room in creation order", func(t *testing.T) {
		g := newTestRegistry()
		g.EnsureRoom("r1")
		g.EnsureRoom("r2")
		g.EnsureRoom("r3")
		g.AddMember("r3", "p", "P")
		g.AddMember("r1", "p", "P")
		g.AddMember("r2", "q", "Q")

		affected := g.RemoveMember("p")
		assert.Equal(t, []string{"r1", "r3"}, affected)
		assert.Empty(t, g.ListMembers("r1"))
		assert.Empty(t, g.ListMembers("r3"))
		assert.Equal(t, []string{"q"}, memberIDs(g.ListMembers("r2")))
	})

	t.Run("Should return nothing for an unknown producer", func(t *testing.T) {
		g := newTestRegistry()
		g.AddMember("main", "a", "A")
		assert.Empty(t, g.RemoveMember("ghost"))
	})

	t.Run("Should run hooks with the remaining members", func(t *testing.T) {
		g := newTestRegistry()
		g.AddMember("main", "a", "A")
		g.AddMember("main", "b", "B")

		var gotRoom string
		var gotMembers []entities.Presence
		g.RemoveMember("a", func(roomID string, remaining []entities.Presence) {
			gotRoom = roomID
			gotMembers = remaining
		})

		assert.Equal(t, "main", gotRoom)
		assert.Equal(t, []string{"b"}, memberIDs(gotMembers))
	})

	t.Run("Should keep the room and its history", func(t *testing.T) {
		g := newTestRegistry()
		g.AddMember("main", "a", "A")
		g.BeginOperation("main", "a", brush, "")
		g.FinalizeOperation("main", "a")

		g.RemoveMember("a")
		info, ok := g.Info("main")
		require.True(t, ok)
		assert.Equal(t, 1, info.Operations)
		assert.Zero(t, info.Members)
	})
}

func TestListMembersUnknownRoom(t *testing.T) {
	g := newTestRegistry()
	assert.Empty(t, g.ListMembers("nowhere"))
	assert.Zero(t, g.Len())
}

func TestOperationPassthroughs(t *testing.T) {
	g := newTestRegistry()

	op := g.BeginOperation("main", "a", brush, "tmp")
	assert.Equal(t, "op-1", op.ID)

	_, ok := g.AppendPoints("other", "a", []valueobjects.Point{{X: 1, Y: 1}})
	assert.False(t, ok, "in-progress strokes are scoped to their room")

	got, ok := g.AppendPoints("main", "a", []valueobjects.Point{{X: 1, Y: 1}})
	require.True(t, ok)
	assert.Same(t, op, got)

	_, ok = g.FinalizeOperation("main", "a")
	require.True(t, ok)
	assert.Len(t, g.Snapshot("main"), 1)

	_, ok = g.Undo("main")
	assert.True(t, ok)
	assert.Empty(t, g.Snapshot("main"))

	_, ok = g.Redo("main")
	assert.True(t, ok)
	assert.Len(t, g.Snapshot("main"), 1)

	g.Clear("main")
	assert.Empty(t, g.Snapshot("main"))
}

func TestAcceptUndoBroadcast(t *testing.T) {
	g := newTestRegistry()
	window := 300 * time.Millisecond
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, g.AcceptUndoBroadcast("main", t0, window))
	assert.False(t, g.AcceptUndoBroadcast("main", t0.Add(100*time.Millisecond), window))
	assert.True(t, g.AcceptUndoBroadcast("other", t0.Add(100*time.Millisecond), window))
	assert.True(t, g.AcceptUndoBroadcast("main", t0.Add(300*time.Millisecond), window))
	assert.False(t, g.AcceptUndoBroadcast("main", t0.Add(599*time.Millisecond), window))
}

func TestRoomsInCreationOrder(t *testing.T) {
	g := newTestRegistry()
	g.AddMember("b", "x", "X")
	g.EnsureRoom("a")

	rooms := g.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "b", rooms[0].ID)
	assert.Equal(t, 1, rooms[0].Members)
	assert.Equal(t, "a", rooms[1].ID)
}

func TestSerializeOrdersConcurrentEvents(t *testing.T) {
	g := newTestRegistry()
	var (
		wg    sync.WaitGroup
		order []string
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			author := fmt.Sprintf("p%d", i)
			g.Serialize("main", func() {
				g.BeginOperation("main", author, brush, "")
				op, _ := g.FinalizeOperation("main", author)
				order = append(order, op.ID)
			})
		}(i)
	}
	wg.Wait()

	snap := g.Snapshot("main")
	require.Len(t, snap, 50)
	for i, op := range snap {
		assert.Equal(t, order[i], op.ID)
	}
}
