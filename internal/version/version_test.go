package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVersionGreaterThan(t *testing.T) {
	assert.True(t, IsVersionGreaterThan("0.4.2", "0.4.1"))
	assert.True(t, IsVersionGreaterThan("1.0.0", "0.9.9"))
	assert.False(t, IsVersionGreaterThan("0.4.2", "0.4.2"))
	assert.False(t, IsVersionGreaterThan("0.4.1", "0.4.2"))
	// Dev suffixes are ignored for comparison.
	assert.False(t, IsVersionGreaterThan("0.4.2-dev", "0.4.2"))
}

func TestIsVersionGreaterOrEqualThan(t *testing.T) {
	assert.True(t, IsVersionGreaterOrEqualThan("0.4.2", "0.4.2"))
	assert.True(t, IsVersionGreaterOrEqualThan("0.4.3", "0.4.2"))
	assert.False(t, IsVersionGreaterOrEqualThan("0.4.1", "0.4.2"))
}

func TestGetMinorVersion(t *testing.T) {
	assert.Equal(t, "0.4", GetMinorVersion("0.4.2"))
	assert.Equal(t, "0.4", GetMinorVersion("0.4.2-dev"))
}
