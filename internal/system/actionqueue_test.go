package system

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runegate/server/internal/world"
)

func TestActionsDrainInPIDOrderMovementFirst(t *testing.T) {
	g := newGame(t)
	a := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	b := g.addPlayer("bob", world.Tile{X: 6, Z: 5})

	var ran []string
	g.deps.Actions.QueueAction(b.ID, "attack", func() { ran = append(ran, "b-attack") })
	g.deps.Actions.QueueMovement(b.ID, "moveRequest", func() { ran = append(ran, "b-move") })
	g.deps.Actions.QueueAction(a.ID, "pickupItem", func() { ran = append(ran, "a-pickup") })
	g.deps.Actions.QueueMovement(a.ID, "moveRequest", func() { ran = append(ran, "a-move") })

	g.step()

	assert.Equal(t, []string{"a-move", "a-pickup", "b-move", "b-attack"}, ran)
}

func TestPanickingActionDoesNotStopTheDrain(t *testing.T) {
	g := newGame(t)
	a := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	b := g.addPlayer("bob", world.Tile{X: 6, Z: 5})

	var ran []string
	g.deps.Actions.QueueAction(a.ID, "attack", func() { panic("bad click") })
	g.deps.Actions.QueueAction(b.ID, "pickupItem", func() { ran = append(ran, "b-pickup") })

	g.step()
	assert.Equal(t, []string{"b-pickup"}, ran, "one panicking action cannot take the tick down")

	// The queue keeps working afterwards.
	g.deps.Actions.QueueAction(a.ID, "attack", func() { ran = append(ran, "a-attack") })
	g.step()
	assert.Equal(t, []string{"b-pickup", "a-attack"}, ran)
}
