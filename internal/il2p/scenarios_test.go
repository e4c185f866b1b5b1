package il2p

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0call/qpsktnc/internal/ax25"
)

func helloFrame() *ax25.Frame {
	return &ax25.Frame{
		Dest:    ax25.Address{Call: "N0CALL", SSID: 0},
		Src:     ax25.Address{Call: "N0CALL", SSID: 1},
		Command: true,
		Type:    ax25.FrameUUI,
		PID:     0xf0,
		Info:    []byte("HELLO"),
	}
}

// feedBits pushes a byte stream through a bit receiver MSB first and
// collects every completed frame.
func feedBits(t *testing.T, r *BitReceiver, stream []byte) []*Result {
	t.Helper()
	var results []*Result
	for _, b := range stream {
		for i := 7; i >= 0; i-- {
			res, _ := r.Bit(int((b >> uint(i)) & 1))
			if res != nil && res.Frame != nil {
				results = append(results, res)
			}
		}
	}
	return results
}

func TestEncodedFrameLengthAndSyncWord(t *testing.T) {
	encoded, err := EncodeFrame(helloFrame(), true, false)
	require.NoError(t, err)

	// 3 sync + 13 header + 2 header parity + (5 payload + 16 parity).
	assert.Equal(t, 39, len(encoded))
	assert.Equal(t, []byte{0xf1, 0x5e, 0x48}, encoded[:3])
}

func TestBitReceiverCleanStream(t *testing.T) {
	encoded, err := EncodeFrame(helloFrame(), true, false)
	require.NoError(t, err)

	results := feedBits(t, NewBitReceiver(false), encoded)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Corrected)
	assert.Equal(t, "HELLO", string(results[0].Frame.Info))
	assert.Equal(t, "N0CALL", results[0].Frame.Src.Call)
	assert.Equal(t, 1, results[0].Frame.Src.SSID)
}

func TestBitReceiverCorrectsSingleBitError(t *testing.T) {
	encoded, err := EncodeFrame(helloFrame(), true, false)
	require.NoError(t, err)

	// Flip one bit inside the scrambled payload region (after sync,
	// header, and header parity).
	corrupted := append([]byte{}, encoded...)
	corrupted[3+HeaderSize+HeaderParity+2] ^= 0x10

	results := feedBits(t, NewBitReceiver(false), corrupted)
	require.Len(t, results, 1)
	assert.GreaterOrEqual(t, results[0].Corrected, 1)
	assert.Equal(t, "HELLO", string(results[0].Frame.Info))
}

func TestBitReceiverDropsUncorrectableBlock(t *testing.T) {
	encoded, err := EncodeFrame(helloFrame(), true, false)
	require.NoError(t, err)

	// Clobber 17 symbols of the single 21-byte payload block, beyond the
	// 8-symbol correction capacity of 16 parity symbols.
	corrupted := append([]byte{}, encoded...)
	start := 3 + HeaderSize + HeaderParity
	for i := 0; i < 17; i++ {
		corrupted[start+i] ^= 0xff
	}

	r := NewBitReceiver(false)
	results := feedBits(t, r, corrupted)
	assert.Empty(t, results)

	// The receiver is back in sync search: a following clean frame
	// decodes normally.
	results = feedBits(t, r, encoded)
	require.Len(t, results, 1)
	assert.Equal(t, "HELLO", string(results[0].Frame.Info))
}

func TestZeroLengthPayload(t *testing.T) {
	f := helloFrame()
	f.Info = nil

	encoded, err := EncodeFrame(f, true, false)
	require.NoError(t, err)
	assert.Equal(t, 3+HeaderSize+HeaderParity, len(encoded))

	results := feedBits(t, NewBitReceiver(false), encoded)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Frame.Info)
}

func TestMaxPayloadUsesFiveBlocks(t *testing.T) {
	layout, encLen, err := computeLayout(MaxPayloadSize, true)
	require.NoError(t, err)
	assert.Equal(t, 5, layout.blockCount)
	assert.Equal(t, MaxPayloadSize+5*16, encLen)

	f := helloFrame()
	f.Info = bytes.Repeat([]byte{0xa5}, MaxPayloadSize)

	encoded, err := EncodeFrame(f, true, false)
	require.NoError(t, err)

	result, err := DecodeFrame(encoded[3:], false)
	require.NoError(t, err)
	assert.Equal(t, f.Info, result.Frame.Info)
}

func TestSyncWordInPayloadDoesNotResync(t *testing.T) {
	f := helloFrame()
	f.Info = bytes.Repeat(SyncWord[:], 8)

	encoded, err := EncodeFrame(f, true, false)
	require.NoError(t, err)

	results := feedBits(t, NewBitReceiver(false), encoded)
	require.Len(t, results, 1)
	assert.Equal(t, f.Info, results[0].Frame.Info)
}

func TestPayloadComputeTotals(t *testing.T) {
	for size := 0; size <= MaxPayloadSize; size++ {
		layout, encLen, err := computeLayout(size, true)
		require.NoError(t, err)
		if size == 0 {
			assert.Equal(t, 0, encLen)
			continue
		}

		assert.Equal(t, layout.blockCount, layout.smallBlockCount+layout.largeBlockCount)
		covered := layout.smallBlockCount*layout.smallBlockSize + layout.largeBlockCount*layout.largeBlockSize
		assert.Equal(t, size, covered)
		assert.Equal(t, covered+layout.blockCount*layout.parityPerBlock, encLen)
	}
}

func TestType0FallbackForUnmappablePID(t *testing.T) {
	f := helloFrame()
	f.PID = 0x42 // no IL2P 4-bit mapping, forces a Type 0 header

	encoded, err := EncodeFrame(f, true, false)
	require.NoError(t, err)

	result, err := DecodeFrame(encoded[3:], false)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), result.Frame.PID)
	assert.Equal(t, "HELLO", string(result.Frame.Info))
	assert.Equal(t, f.Src.Call, result.Frame.Src.Call)
}
