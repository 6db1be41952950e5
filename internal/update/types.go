package update

import (
	"context"
	"fmt"
	"strings"

	apperrors "updraft/internal/errors"
)

// UpdateInfo describes one release offered by a Source.
type UpdateInfo struct {
	Version     string `json:"version" yaml:"version"`
	DownloadURL string `json:"download_url" yaml:"download_url"`
	Changelog   string `json:"changelog" yaml:"changelog"`
}

// Source fetches release metadata from a remote origin.
// A nil *UpdateInfo with a nil error means no release is available.
type Source interface {
	FetchUpdate(ctx context.Context) (*UpdateInfo, error)
}

// Channel selects which release stream a source queries.
type Channel int

const (
	// ChannelStable follows the latest published release.
	ChannelStable Channel = iota
	// ChannelNightly follows the most recent release of any kind.
	ChannelNightly
)

// String returns the string representation of a Channel.
func (c Channel) String() string {
	switch c {
	case ChannelNightly:
		return "nightly"
	default:
		return "stable"
	}
}

// ParseChannel converts a configuration value into a Channel.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stable":
		return ChannelStable, nil
	case "nightly":
		return ChannelNightly, nil
	default:
		return ChannelStable, apperrors.New(apperrors.CodeConfigurationError,
			fmt.Sprintf("unknown channel %q (want stable or nightly)", s), nil)
	}
}

// EventKind names the operation an Event describes.
type EventKind string

const (
	EventCheck  EventKind = "check"
	EventUpdate EventKind = "update"
	EventRevert EventKind = "revert"
)

// Outcome is the result recorded for an Event.
type Outcome string

const (
	OutcomeAvailable Outcome = "available"
	OutcomeNone      Outcome = "none"
	OutcomeLaunched  Outcome = "launched"
	OutcomeFailed    Outcome = "failed"
)

// Event is handed to a Recorder after each orchestrator call.
type Event struct {
	Kind        EventKind
	FromVersion string
	ToVersion   string
	Outcome     Outcome
	Err         error
}

// Recorder persists orchestrator events. Errors are logged, never surfaced.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}
