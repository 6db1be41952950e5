package update

import "os"

// osExit is a package-level seam so tests can intercept termination.
var osExit = os.Exit

// Operation names what a Handoff will complete.
type Operation string

const (
	OperationUpdate Operation = "update"
	OperationRevert Operation = "revert"
)

// Handoff is returned once the helper script is running. The helper waits
// for this process to exit before touching Target, so the caller must finish
// its own shutdown and then call Terminate.
type Handoff struct {
	Operation Operation
	Target    string
	Staged    string
	Script    string
	PID       int
	Mode      SwapMode
}

// Terminate exits the process with status 0.
func (h *Handoff) Terminate() {
	osExit(0)
}
