package cluster

import "os"

// Settings is the master-side, immutable-after-first-spawn configuration
// spec.md §3 defines, captured as a plain value at the first SetupMaster
// call rather than module-level mutable state (the settings-mutation
// open question of spec.md §9 is resolved this way: a read-only
// snapshot, not a pointer into caller-owned memory).
type Settings struct {
	Exec     string
	ExecArgv []string
	Args     []string
	Silent   bool
}

// defaultSettings mirrors spec.md §4.2's defaults: the supervisor's own
// program path, its own runtime flags (there is no separate runtime
// binary in a compiled Go program, so ExecArgv is empty), and its
// program arguments tail.
func defaultSettings() Settings {
	exec, err := os.Executable()
	if err != nil {
		exec = os.Args[0]
	}

	var args []string
	if len(os.Args) > 1 {
		args = append(args, os.Args[1:]...)
	}

	return Settings{
		Exec:     exec,
		ExecArgv: nil,
		Args:     args,
		Silent:   false,
	}
}
