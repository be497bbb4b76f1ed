package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProxyTag(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		suffix  string
		wantErr error
	}{
		{name: "prefix only", prefix: "A:"},
		{name: "suffix only", suffix: "-a"},
		{name: "both", prefix: "[", suffix: "]"},
		{name: "neither", wantErr: ErrEmptyProxyTag},
		{name: "whitespace only", prefix: "  ", suffix: "\t", wantErr: ErrEmptyProxyTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, err := NewProxyTag(tt.prefix, tt.suffix)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, tag.Prefix)
			assert.Equal(t, tt.suffix, tag.Suffix)
		})
	}
}

func TestProxyTagString(t *testing.T) {
	assert.Equal(t, "[text]", ProxyTag{Prefix: "[", Suffix: "]"}.String())
}

func TestParseEnums(t *testing.T) {
	p, err := ParsePrivacyLevel(2)
	require.NoError(t, err)
	assert.Equal(t, PrivacyPrivate, p)
	assert.Equal(t, "private", p.String())

	_, err = ParsePrivacyLevel(0)
	assert.Error(t, err)

	m, err := ParseAutoproxyMode(3)
	require.NoError(t, err)
	assert.Equal(t, AutoproxyLatch, m)
	assert.Equal(t, "latch", m.String())

	_, err = ParseAutoproxyMode(9)
	assert.Error(t, err)
}

func TestSnowflakeRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	id := SnowflakeAt(at)
	assert.Equal(t, at, SnowflakeTime(id))
	assert.Equal(t, at, SnowflakeTime(id|0x3FFFFF), "low bits carry no time")
	assert.Zero(t, SnowflakeAt(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNewHID(t *testing.T) {
	hid, err := NewHID()
	require.NoError(t, err)
	assert.Len(t, hid, 5)
	for _, r := range hid {
		assert.True(t, r >= 'a' && r <= 'z', "unexpected rune %q", r)
	}
}

func TestServerChannelLists(t *testing.T) {
	s := Server{ID: 1, LogChannel: 50, Blacklist: []int64{10}, LogBlacklist: []int64{11}}

	assert.True(t, s.IsBlacklisted(10))
	assert.False(t, s.IsBlacklisted(11))
	assert.True(t, s.ShouldLog(10))
	assert.False(t, s.ShouldLog(11))
	assert.False(t, Server{}.ShouldLog(10), "no log channel configured")
}

func TestSwitchPrimary(t *testing.T) {
	_, ok := Switch{}.Primary()
	assert.False(t, ok)

	m, ok := Switch{Members: []int64{7, 8}}.Primary()
	assert.True(t, ok)
	assert.Equal(t, int64(7), m)
}
