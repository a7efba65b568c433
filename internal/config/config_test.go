package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("WCLUSTER_PARENT_PID", "4242")
	t.Setenv("WCLUSTER_DEBUG", "cluster:*")

	rt, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4242, rt.ParentPID)
	assert.Equal(t, "cluster:*", rt.DebugPattern)
}

func TestLoadDefaultsToZeroValues(t *testing.T) {
	os.Unsetenv("WCLUSTER_PARENT_PID")
	os.Unsetenv("WCLUSTER_DEBUG")

	rt, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0, rt.ParentPID)
	assert.Equal(t, "", rt.DebugPattern)
}
