package update

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is a parsed dotted-numeric version with an optional pre-release
// suffix. The zero value is not meaningful; use ParseVersion.
type Version struct {
	parts  []int
	suffix string
	raw    string
}

// ParseVersion parses text such as "v1.2.3" or "2.0-beta".
//
// Parsing is lenient: a numeric segment that is not an integer becomes 0
// rather than an error, so "1.x.3" parses as 1.0.3. Only empty input fails.
func ParseVersion(text string) (Version, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Version{}, fail(ErrParse, "empty version string", nil)
	}

	raw := s
	s = strings.TrimPrefix(s, "v")

	core, suffix, _ := strings.Cut(s, "-")
	segments := strings.Split(core, ".")
	parts := make([]int, len(segments))
	for i, seg := range segments {
		n, err := strconv.Atoi(seg)
		if err != nil || n < 0 {
			n = 0
		}
		parts[i] = n
	}

	return Version{parts: parts, suffix: suffix, raw: raw}, nil
}

// Parts returns a copy of the numeric segments.
func (v Version) Parts() []int {
	out := make([]int, len(v.parts))
	copy(out, v.parts)
	return out
}

// Suffix returns the pre-release tag, empty for a release.
func (v Version) Suffix() string {
	return v.suffix
}

// Raw returns the text the version was parsed from.
func (v Version) Raw() string {
	return v.raw
}

// String joins the numeric parts with dots and appends "-suffix" when present.
// The leading 'v' of the input is not reproduced.
func (v Version) String() string {
	segs := make([]string, len(v.parts))
	for i, p := range v.parts {
		segs[i] = strconv.Itoa(p)
	}
	base := strings.Join(segs, ".")
	if v.suffix != "" {
		return base + "-" + v.suffix
	}
	return base
}

// Compare compares two versions.
// Returns:
//
//	-1 if v < other
//	 0 if v == other
//	 1 if v > other
//
// Missing trailing segments count as 0. A release outranks any pre-release
// with the same numbers; two suffixes compare as plain strings.
func (v Version) Compare(other Version) int {
	n := max(len(v.parts), len(other.parts))
	for i := range n {
		if c := compareInt(segment(v.parts, i), segment(other.parts, i)); c != 0 {
			return c
		}
	}
	return compareSuffix(v.suffix, other.suffix)
}

// LessThan returns true if v < other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// GreaterThan returns true if v > other.
func (v Version) GreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

// Equal returns true if v == other.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// IsNewerThan reports whether v orders strictly above baseline.
// An empty baseline never has anything newer than it reported.
func (v Version) IsNewerThan(baseline string) bool {
	b, err := ParseVersion(baseline)
	if err != nil {
		return false
	}
	return v.GreaterThan(b)
}

// IsStrictSemver reports whether text (minus a leading 'v') is a strict
// semantic version. Lenient parsing accepts far more than this.
func IsStrictSemver(text string) bool {
	_, err := semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(text), "v"))
	return err == nil
}

func segment(parts []int, i int) int {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}

func compareInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func compareSuffix(a, b string) int {
	// No suffix is greater than any suffix
	if a == "" && b == "" {
		return 0
	}
	if a == "" {
		return 1
	}
	if b == "" {
		return -1
	}
	return strings.Compare(a, b)
}
