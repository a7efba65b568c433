// Package logging builds the process-wide zerolog.Logger, the ambient
// logging stack the teacher (github.com/porkg/porkg) uses directly in
// internal/worker/linux.go and internal/worker/proto/linux.go, extended
// with the pretty-console setup zerolog's own docs pair it with: a
// TTY-gated github.com/mattn/go-isatty check and Windows colorization via
// github.com/mattn/go-colorable.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Role names the process role for the "<pid>,<Master|Worker>" debug
// prefix spec.md §6 specifies.
type Role string

const (
	RoleMaster Role = "Master"
	RoleWorker Role = "Worker"
)

// instanceID tags every log line from this process, so that restarts of
// a whole supervisor tree (e.g. under an external process manager) can be
// told apart in aggregated logs.
var instanceID = uuid.NewString()

// New builds a logger for role, raising verbosity to Trace when
// debugPattern substring-matches "cluster" (spec.md §6's NODE_DEBUG
// convention, renamed WCLUSTER_DEBUG).
func New(role Role, debugPattern string) zerolog.Logger {
	level := zerolog.InfoLevel
	if strings.Contains(debugPattern, "cluster") {
		level = zerolog.TraceLevel
	}

	out := os.Stderr
	var writer = zerolog.ConsoleWriter{Out: colorable.NewColorable(out), TimeFormat: "15:04:05"}
	if !isatty.IsTerminal(out.Fd()) {
		writer.NoColor = true
	}

	prefix := fmt.Sprintf("%d,%s", os.Getpid(), role)

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("proc", prefix).
		Str("instance", instanceID).
		Logger()
}
