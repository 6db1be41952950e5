// Package update checks for, installs and reverts releases of a locally
// installed application.
//
// This package handles:
//   - Fetching release metadata from a release API or a static manifest
//   - Comparing dotted versions, leniently, to detect available updates
//   - Downloading the artifact and backing up the installed one
//   - Generating a platform helper script that swaps files after exit
//
// A running executable cannot reliably overwrite itself, so the swap is done
// by a detached helper that sleeps (and optionally waits for this PID) before
// copying or extracting the new artifact and relaunching. Once the helper is
// started, PerformUpdate and Revert return a Handoff; the caller finishes its
// own shutdown and calls Handoff.Terminate.
//
// Example usage:
//
//	source := update.NewReleaseSource("owner", "repo", update.ChannelStable)
//	runner, err := update.NewRunner()
//	if err != nil {
//	    // handle error
//	}
//	u := update.NewUpdater(source, runner)
//	info, err := u.CheckForUpdates(ctx, currentVersion)
//	if err != nil || info == nil {
//	    return
//	}
//	handoff, err := u.PerformUpdate(ctx, *info)
//	if err != nil {
//	    // installed artifact is unchanged
//	}
//	handoff.Terminate()
package update
