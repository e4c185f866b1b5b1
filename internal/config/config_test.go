package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
channels:
  "0":
    persist: 128
    fulldup: true
`))
	require.NoError(t, err)

	ch, ok := cfg.Channels["0"]
	require.True(t, ok)

	assert.Equal(t, 1200, ch.Baud)
	assert.Equal(t, 10, ch.SlotTime)
	assert.Equal(t, 128, ch.Persist)
	assert.Equal(t, 10, ch.TXDelay)
	assert.Equal(t, 10, ch.TXTail)
	assert.True(t, ch.FullDup)
	assert.Equal(t, 0, ch.DWait)
	assert.Equal(t, 4, ch.FRAck)
	assert.Equal(t, 256, ch.PacLen)
}

func TestParseEmptyDocumentGetsDefaultChannel(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)
	require.Len(t, cfg.Channels, 1)
	assert.Equal(t, DefaultChannel(), cfg.Channels["0"])
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("channels: [not: a map"))
	assert.Error(t, err)
}

func TestParseMultipleChannels(t *testing.T) {
	cfg, err := Parse([]byte(`
channels:
  vhf:
    baud: 1200
    slottime: 5
  uhf:
    txdelay: 30
`))
	require.NoError(t, err)
	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, 5, cfg.Channels["vhf"].SlotTime)
	assert.Equal(t, 30, cfg.Channels["uhf"].TXDelay)
	assert.Equal(t, 10, cfg.Channels["uhf"].SlotTime)
}
