package messenger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  *OriginPolicy
		origin  string
		allowed bool
	}{
		{"open policy accepts anything", NewOriginPolicy(""), "https://anything.test", true},
		{"parent exact", NewOriginPolicy("https://parent.test"), "https://parent.test", true},
		{"parent trailing slash", NewOriginPolicy("https://parent.test/"), "https://parent.test", true},
		{"parent mismatch", NewOriginPolicy("https://parent.test"), "https://evil.test", false},
		{"empty origin rejected once pinned", NewOriginPolicy("https://parent.test"), "", false},
		{"allow-list wildcard", NewOriginPolicy("", "https://*.leanix.net"), "https://eu.leanix.net", true},
		{"allow-list miss", NewOriginPolicy("", "https://*.leanix.net"), "https://leanix.evil", false},
		{"parent or allow-list", NewOriginPolicy("https://parent.test", "http://localhost:*"), "http://localhost:8787", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.policy.Allows(tt.origin))
		})
	}
}

func TestOriginPolicyPinning(t *testing.T) {
	p := NewOriginPolicy("")
	assert.True(t, p.Open())

	p.SetParentOrigin("https://parent.test")
	assert.False(t, p.Open())
	assert.False(t, p.Allows("https://evil.test"))
	assert.Equal(t, "https://parent.test", p.ParentOrigin())
}

func TestParseErrorPolicy(t *testing.T) {
	for _, s := range []string{"", "log", "LOG"} {
		p, err := ParseErrorPolicy(s)
		require.NoError(t, err)
		assert.Equal(t, ErrorPolicyLog, p)
	}

	p, err := ParseErrorPolicy("notify")
	require.NoError(t, err)
	assert.Equal(t, "notify", p.String())

	p, err = ParseErrorPolicy(" none ")
	require.NoError(t, err)
	assert.Equal(t, ErrorPolicyNone, p)

	_, err = ParseErrorPolicy("toast")
	assert.Error(t, err)
}
