// Package config loads process-wide defaults from the environment with
// github.com/golobby/config/v3, the struct-tag-driven feeder the teacher
// (github.com/porkg/porkg) depends on but never got around to wiring up
// for its own WorkerConfig (Uid.Start env:"UID_START", ...). This module
// uses the same env-tag mechanism for the handful of knobs that aren't
// already covered by spec.md's Settings object, which is populated
// programmatically via SetupMaster instead.
package config

import (
	"fmt"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/feeder"
)

// Runtime holds process-wide knobs that are read once at startup, outside
// the Settings spec.md §3 defines for fork(), which are captured once by
// SetupMaster.
type Runtime struct {
	// ParentPID, set by the supervisor at fork time, lets a worker open
	// a pidfd on its supervisor for internal/handle's listener handoff.
	ParentPID int `env:"WCLUSTER_PARENT_PID"`

	// DebugPattern mirrors spec.md §6's NODE_DEBUG convention: verbose
	// logging turns on when this substring-matches "cluster".
	DebugPattern string `env:"WCLUSTER_DEBUG"`
}

// Load feeds Runtime from the current environment.
func Load() (Runtime, error) {
	var rt Runtime
	c, err := config.New(feeder.Env{})
	if err != nil {
		return rt, fmt.Errorf("config: failed to create feeder: %w", err)
	}
	if err := c.Feed(&rt); err != nil {
		return rt, fmt.Errorf("config: failed to load runtime config: %w", err)
	}
	return rt, nil
}
