package update

import (
	"context"
	"strings"

	"updraft/internal/debug"
)

// Updater decides whether a fetched release is newer than the running one
// and delegates the swap to a Runner. It never retries.
type Updater struct {
	source   Source
	runner   *Runner
	recorder Recorder
	current  string
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithRecorder journals every check, update and revert.
func WithRecorder(rec Recorder) UpdaterOption {
	return func(u *Updater) {
		u.recorder = rec
	}
}

// WithCurrentVersion sets the running version recorded with updates and reverts.
// CheckForUpdates also sets it.
func WithCurrentVersion(v string) UpdaterOption {
	return func(u *Updater) {
		u.current = v
	}
}

// NewUpdater creates an orchestrator over source and runner.
func NewUpdater(source Source, runner *Runner, opts ...UpdaterOption) *Updater {
	u := &Updater{source: source, runner: runner}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// CheckForUpdates fetches once and returns the release only when it is newer
// than currentVersion. A nil result with a nil error means no update.
func (u *Updater) CheckForUpdates(ctx context.Context, currentVersion string) (*UpdateInfo, error) {
	if strings.TrimSpace(currentVersion) == "" {
		err := fail(ErrParse, "current version is empty", nil)
		u.record(ctx, Event{Kind: EventCheck, Outcome: OutcomeFailed, Err: err})
		return nil, err
	}
	u.current = currentVersion

	info, err := u.source.FetchUpdate(ctx)
	if err != nil {
		u.record(ctx, Event{Kind: EventCheck, FromVersion: currentVersion, Outcome: OutcomeFailed, Err: err})
		return nil, err
	}
	if info == nil || strings.TrimSpace(info.Version) == "" {
		u.record(ctx, Event{Kind: EventCheck, FromVersion: currentVersion, Outcome: OutcomeNone})
		return nil, nil
	}

	latest, err := ParseVersion(info.Version)
	if err != nil {
		u.record(ctx, Event{Kind: EventCheck, FromVersion: currentVersion, Outcome: OutcomeNone})
		return nil, nil
	}
	if !IsStrictSemver(info.Version) || !IsStrictSemver(currentVersion) {
		debug.Warn("comparing non-semver versions leniently", "latest", info.Version, "current", currentVersion)
	}

	if !latest.IsNewerThan(currentVersion) {
		debug.Info("no newer release", "latest", info.Version, "current", currentVersion)
		u.record(ctx, Event{Kind: EventCheck, FromVersion: currentVersion, ToVersion: info.Version, Outcome: OutcomeNone})
		return nil, nil
	}

	u.record(ctx, Event{Kind: EventCheck, FromVersion: currentVersion, ToVersion: info.Version, Outcome: OutcomeAvailable})
	return info, nil
}

// PerformUpdate hands info to the runner. On success the caller must finish
// its own shutdown and then call Handoff.Terminate.
func (u *Updater) PerformUpdate(ctx context.Context, info UpdateInfo) (*Handoff, error) {
	h, err := u.runner.DownloadAndUpdate(ctx, info)
	u.record(ctx, Event{
		Kind:        EventUpdate,
		FromVersion: u.current,
		ToVersion:   info.Version,
		Outcome:     outcomeOf(err),
		Err:         err,
	})
	return h, err
}

// Revert restores the backup through the runner.
func (u *Updater) Revert(ctx context.Context) (*Handoff, error) {
	h, err := u.runner.RevertToBackup(ctx)
	u.record(ctx, Event{Kind: EventRevert, FromVersion: u.current, Outcome: outcomeOf(err), Err: err})
	return h, err
}

func outcomeOf(err error) Outcome {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeLaunched
}

func (u *Updater) record(ctx context.Context, ev Event) {
	if u.recorder == nil {
		return
	}
	if err := u.recorder.Record(ctx, ev); err != nil {
		debug.Error("record update event", "kind", string(ev.Kind), "err", err)
	}
}
