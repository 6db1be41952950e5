// Command updraft checks for, installs and reverts releases of a locally
// installed application.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
)

func main() {
	os.Exit(run(context.Background(), newApp(), os.Args[1:]))
}

// run executes the command tree through fang and returns the exit status.
func run(ctx context.Context, a *app, args []string) int {
	root := newRootCommand(a)
	root.SetArgs(args)
	if err := fang.Execute(
		ctx,
		root,
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		return 1
	}
	return 0
}
