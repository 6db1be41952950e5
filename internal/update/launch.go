package update

import (
	"os/exec"
)

// Launcher starts the helper process. Implementations must not wait for it.
type Launcher interface {
	Launch(name string, args []string) (pid int, err error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(name string, args []string) (int, error)

// Launch implements Launcher.
func (f LauncherFunc) Launch(name string, args []string) (int, error) {
	return f(name, args)
}

// DetachedLauncher starts the helper in its own session or process group
// with no inherited stdio, so it survives this process exiting.
type DetachedLauncher struct{}

// Launch implements Launcher.
func (DetachedLauncher) Launch(name string, args []string) (int, error) {
	//nolint:gosec // G204: argv is the generated helper script
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = detachedAttr()
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
