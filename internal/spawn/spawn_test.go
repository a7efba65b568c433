package spawn

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpawnTracksProcessLifecycle(t *testing.T) {
	execPath, err := exec.LookPath("true")
	require.NoError(t, err)

	p, err := Spawn(Config{Exec: execPath, Silent: true})
	require.NoError(t, err)
	defer p.CloseChannel()

	require.Greater(t, p.Pid(), 0)

	select {
	case <-p.Died():
	case <-time.After(5 * time.Second):
		t.Fatal("spawned process did not report exit")
	}

	state, err := p.ExitState()
	require.NoError(t, err)
	require.NotNil(t, state)
	require.True(t, state.Success())
}

func TestSpawnRejectsMissingExecutable(t *testing.T) {
	_, err := Spawn(Config{Exec: "/nonexistent/wcluster-test-binary"})
	require.Error(t, err)
}
