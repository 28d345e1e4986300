package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinorUnits(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"68.00", 6800},
		{"9.99", 999},
		{"9.9", 990},
		{"9", 900},
		{"0.01", 1},
		{" 68.00 ", 6800},
	}
	for _, tc := range cases {
		got, err := ParseMinorUnits(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestParseMinorUnitsRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"abc",
		"9.999",
		"-9.99",
		"+9.99",
		"9.-9",
		"9.+9",
		"9..9",
		"9,99",
	} {
		_, err := ParseMinorUnits(raw)
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "alipay_AF1001", EventKey(ProviderAlipay, "AF1001"))
}
