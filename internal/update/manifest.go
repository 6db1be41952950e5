package update

import (
	"context"
	"runtime"

	"updraft/internal/debug"
)

// ManifestSource reads a static JSON manifest with version, url and
// changelog fields.
type ManifestSource struct {
	url string
	cfg sourceConfig
}

// NewManifestSource creates a source for the manifest at url.
func NewManifestSource(url string, opts ...SourceOption) *ManifestSource {
	return &ManifestSource{url: url, cfg: newSourceConfig(runtime.GOOS, opts)}
}

// URL returns the manifest location.
func (s *ManifestSource) URL() string {
	return s.url
}

// FetchUpdate downloads and parses the manifest. A 404 returns nil, nil.
func (s *ManifestSource) FetchUpdate(ctx context.Context) (*UpdateInfo, error) {
	body, found, err := s.cfg.fetchText(ctx, s.url, map[string]string{"Accept": "application/json"})
	if err != nil || !found {
		return nil, err
	}
	info, err := parseManifest(body)
	if err != nil {
		return nil, err
	}
	debug.Info("found manifest release", "version", info.Version)
	return info, nil
}

func parseManifest(body string) (*UpdateInfo, error) {
	version, _ := extractField(body, "version")
	url, _ := extractField(body, "url")
	changelog, _ := extractField(body, "changelog")

	if version == "" || url == "" {
		return nil, fail(ErrParse, "manifest is missing version or url", nil)
	}
	return &UpdateInfo{Version: version, DownloadURL: url, Changelog: changelog}, nil
}
