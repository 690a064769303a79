package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// versionSegmentWidth is the zero-padded width of each dot segment in a
// normalized version. Registry versions observed in the wild never exceed
// five digits per segment.
const versionSegmentWidth = 5

// NormalizeVersion converts a dot-separated numeric version into a sortable
// form: each segment is zero-padded so lexical order equals numeric order
// ("1.9" -> "00001.00009" sorts below "1.10" -> "00001.00010"). A segment
// that is not a non-negative integer is an error.
func NormalizeVersion(version string) (string, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return "", fmt.Errorf("empty version string")
	}
	segments := strings.Split(version, ".")
	normalized := make([]string, len(segments))
	for i, seg := range segments {
		n, err := strconv.Atoi(seg)
		if err != nil || n < 0 {
			return "", fmt.Errorf("version %q: segment %q is not numeric", version, seg)
		}
		normalized[i] = fmt.Sprintf("%0*d", versionSegmentWidth, n)
	}
	return strings.Join(normalized, "."), nil
}

// CompareVersions compares two raw version strings numerically per dot
// segment, returning -1, 0 or 1. Missing segments compare as zero
// ("1" == "1.0"); non-numeric segments also compare as zero so that a
// malformed version never outranks a well-formed one.
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimSpace(a), ".")
	bs := strings.Split(strings.TrimSpace(b), ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av := segmentValue(as, i)
		bv := segmentValue(bs, i)
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

func segmentValue(segments []string, i int) int {
	if i >= len(segments) {
		return 0
	}
	n, err := strconv.Atoi(segments[i])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
