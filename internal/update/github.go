package update

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"updraft/internal/debug"
)

// ReleaseSource reads releases from a GitHub-style release API.
type ReleaseSource struct {
	owner   string
	repo    string
	channel Channel
	cfg     sourceConfig
}

// NewReleaseSource creates a source for owner/repo on the given channel.
func NewReleaseSource(owner, repo string, channel Channel, opts ...SourceOption) *ReleaseSource {
	return &ReleaseSource{
		owner:   owner,
		repo:    repo,
		channel: channel,
		cfg:     newSourceConfig(runtime.GOOS, opts),
	}
}

// URL returns the endpoint queried for the configured channel.
func (s *ReleaseSource) URL() string {
	if s.channel == ChannelNightly {
		return fmt.Sprintf("%s/repos/%s/%s/releases", s.cfg.baseURL, s.owner, s.repo)
	}
	return fmt.Sprintf("%s/repos/%s/%s/releases/latest", s.cfg.baseURL, s.owner, s.repo)
}

// FetchUpdate queries the release API. Stable reads the latest release;
// nightly reads the release list and uses its first entry. A 404 or an empty
// list means no release exists and returns nil, nil.
func (s *ReleaseSource) FetchUpdate(ctx context.Context) (*UpdateInfo, error) {
	headers := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if s.cfg.token != "" {
		headers["Authorization"] = "Bearer " + s.cfg.token
	}

	body, found, err := s.cfg.fetchText(ctx, s.URL(), headers)
	if err != nil || !found {
		return nil, err
	}

	if s.channel == ChannelNightly {
		first, ok, err := firstRelease(body)
		if err != nil || !ok {
			return nil, err
		}
		body = first
	}

	info, err := parseRelease(body, s.cfg.goos)
	if err != nil {
		return nil, err
	}
	debug.Info("found release", "version", info.Version, "channel", s.channel.String())
	return info, nil
}

// firstRelease returns the newest entry of a release list. An empty list
// means no release exists.
func firstRelease(body string) (string, bool, error) {
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		return "", false, fail(ErrParse, "release list is not a JSON array", err)
	}
	if len(list) == 0 {
		return "", false, nil
	}
	return string(list[0]), true, nil
}

// parseRelease extracts tag_name, body and a platform asset URL.
func parseRelease(body, goos string) (*UpdateInfo, error) {
	version, _ := extractField(body, "tag_name")
	changelog, _ := extractField(body, "body")
	url := pickAssetURL(body, goos)

	if version == "" {
		return nil, fail(ErrParse, "release metadata has no tag_name", nil)
	}
	if url == "" {
		return nil, fail(ErrParse, fmt.Sprintf("release %s has no %s asset", version, strings.Join(assetExtensions(goos), " or ")), nil)
	}
	return &UpdateInfo{Version: version, DownloadURL: url, Changelog: changelog}, nil
}

// assetExtensions lists acceptable archive extensions in preference order.
func assetExtensions(goos string) []string {
	if goos == "windows" {
		return []string{".zip", ".tar.gz"}
	}
	return []string{".tar.gz"}
}

func pickAssetURL(body, goos string) string {
	urls := extractAllFields(body, "browser_download_url")
	for _, ext := range assetExtensions(goos) {
		for _, u := range urls {
			if strings.HasSuffix(u, ext) {
				return u
			}
		}
	}
	return ""
}
