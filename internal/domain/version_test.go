package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVersion(t *testing.T) {
	norm19, err := NormalizeVersion("1.9")
	require.NoError(t, err)

	norm110, err := NormalizeVersion("1.10")
	require.NoError(t, err)

	// Normalized forms must sort numerically, not lexically
	assert.Less(t, norm19, norm110, "1.9 should sort below 1.10 after normalization")
}

func TestNormalizeVersion_Invalid(t *testing.T) {
	cases := []string{"", "1.x", "v1.2", "1.-2", "  "}
	for _, c := range cases {
		_, err := NormalizeVersion(c)
		assert.Error(t, err, "version %q should not normalize", c)
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.9", "1.10", -1},
		{"1.10", "1.9", 1},
		{"2.0", "2.0", 0},
		{"1", "1.0", 0},
		{"2", "1.99", 1},
		{"1.0.1", "1.0", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b), "compare %q vs %q", tt.a, tt.b)
	}
}

func TestCompareVersions_MalformedSegmentsCompareAsZero(t *testing.T) {
	// A malformed version must never outrank a well-formed one
	assert.Equal(t, -1, CompareVersions("x.y", "0.1"))
	assert.Equal(t, 0, CompareVersions("x", "0"))
}

func TestPanelPayloadValidate(t *testing.T) {
	valid := &PanelPayload{ExternalID: "3", Name: "Hearing loss", Version: "2.1"}
	require.NoError(t, valid.Validate())

	missing := []*PanelPayload{
		{Name: "No id", Version: "1.0"},
		{ExternalID: "3", Version: "1.0"},
		{ExternalID: "3", Name: "No version"},
		{ExternalID: "3", Name: "Bad version", Version: "one"},
	}
	for i, p := range missing {
		err := p.Validate()
		require.Error(t, err, "payload %d should fail validation", i)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	}
}
