// Package cluster implements the supervisor/worker protocol of
// SPEC_FULL.md §§2-4: a master process that forks workers and transfers
// shared listening sockets to them. Grounded throughout on
// github.com/porkg/porkg's process-pair model (internal/zygote,
// internal/worker), generalized from porkg's fixed zygote/worker/job
// roles to the master/worker roles spec.md defines, and from porkg's
// closed message-type table to the cmd-string dispatch spec.md §4.3
// requires.
package cluster

import (
	"os"
	"strconv"
)

// uniqueIDEnv is the role marker spec.md §6 calls NODE_UNIQUE_ID, renamed
// to this module's namespace.
const uniqueIDEnv = "WCLUSTER_UNIQUE_ID"

// parentPIDEnv carries the supervisor's PID to a forked worker so it can
// open a pidfd on it for internal/handle's listener handoff.
const parentPIDEnv = "WCLUSTER_PARENT_PID"

// DetectRole inspects the environment once at process start. Absent
// marker => master; present => worker, with id parsed as a decimal
// integer (nil if malformed, matching spec.md §4.1's "observable but not
// fatal" note).
func DetectRole() (isMaster, isWorker bool, workerID *int) {
	v, ok := os.LookupEnv(uniqueIDEnv)
	if !ok {
		return true, false, nil
	}

	id, err := strconv.Atoi(v)
	if err != nil {
		return false, true, nil
	}
	return false, true, &id
}

// MustBeMaster panics if called from a worker process. Role misuse is a
// programmer error (spec.md §7), not a recoverable condition.
func MustBeMaster(isMaster bool) {
	if !isMaster {
		panic("cluster: operation requires the master role")
	}
}

// MustBeWorker panics if called from the master process.
func MustBeWorker(isWorker bool) {
	if !isWorker {
		panic("cluster: operation requires the worker role")
	}
}
