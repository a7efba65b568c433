package cluster

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupMasterIsIdempotent(t *testing.T) {
	os.Unsetenv(uniqueIDEnv)
	s := NewSupervisor(nil)

	s.SetupMaster(Settings{Exec: "/first"})
	s.SetupMaster(Settings{Exec: "/second"})

	assert.Equal(t, "/first", s.Settings().Exec)
}

func TestSettingsReturnsDefaultsBeforeSetup(t *testing.T) {
	s := NewSupervisor(nil)
	assert.NotEmpty(t, s.Settings().Exec)
}

func TestWorkersEmptyInitially(t *testing.T) {
	s := NewSupervisor(nil)
	assert.Empty(t, s.Workers())
}

func TestDisconnectWithNoWorkersFiresCallbackImmediately(t *testing.T) {
	os.Unsetenv(uniqueIDEnv)
	s := NewSupervisor(nil)

	done := make(chan struct{})
	s.Disconnect(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Disconnect callback not invoked for an empty worker set")
	}
}

func TestMergeEnvAppendsOverrides(t *testing.T) {
	base := []string{"A=1", "B=2"}
	out := mergeEnv(base, map[string]string{"C": "3"})

	require.Len(t, out, 3)
	assert.Contains(t, out, "C=3")
}

func TestMergeEnvNoOverridesReturnsBaseUnchanged(t *testing.T) {
	base := []string{"A=1"}
	out := mergeEnv(base, nil)
	assert.Equal(t, base, out)
}

func TestSupervisorMethodsPanicWhenConstructedAsWorker(t *testing.T) {
	t.Setenv(uniqueIDEnv, "1")
	s := NewSupervisor(nil)

	assert.Panics(t, func() { s.SetupMaster(Settings{}) })
	assert.Panics(t, func() { s.Disconnect(nil) })
	assert.Panics(t, func() { s.Fork(nil) })
}
