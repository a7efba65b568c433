package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerHandleStateAndSuicideAccessors(t *testing.T) {
	h := &WorkerHandle{id: 5, events: newEmitter()}

	assert.Equal(t, 5, h.ID())
	assert.Equal(t, StateNone, h.State())
	assert.False(t, h.Suicide())

	h.setState(StateOnline)
	assert.Equal(t, StateOnline, h.State())

	h.setSuicide(true)
	assert.True(t, h.Suicide())
}

func TestWorkerHandleKillOnDisconnectDefaultsFalse(t *testing.T) {
	h := &WorkerHandle{events: newEmitter()}
	assert.False(t, h.shouldKillOnDisconnect())

	h.markKillOnDisconnect()
	assert.True(t, h.shouldKillOnDisconnect())
}
