package cluster

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectRoleMasterWhenUnset(t *testing.T) {
	os.Unsetenv(uniqueIDEnv)

	isMaster, isWorker, id := DetectRole()
	assert.True(t, isMaster)
	assert.False(t, isWorker)
	assert.Nil(t, id)
}

func TestDetectRoleWorkerWithValidID(t *testing.T) {
	t.Setenv(uniqueIDEnv, "7")

	isMaster, isWorker, id := DetectRole()
	assert.False(t, isMaster)
	assert.True(t, isWorker)
	require.NotNil(t, id)
	assert.Equal(t, 7, *id)
}

func TestDetectRoleWorkerWithMalformedID(t *testing.T) {
	t.Setenv(uniqueIDEnv, "not-a-number")

	isMaster, isWorker, id := DetectRole()
	assert.False(t, isMaster)
	assert.True(t, isWorker)
	assert.Nil(t, id)
}

func TestMustBeMasterPanicsForWorker(t *testing.T) {
	assert.Panics(t, func() { MustBeMaster(false) })
	assert.NotPanics(t, func() { MustBeMaster(true) })
}

func TestMustBeWorkerPanicsForMaster(t *testing.T) {
	assert.Panics(t, func() { MustBeWorker(false) })
	assert.NotPanics(t, func() { MustBeWorker(true) })
}
