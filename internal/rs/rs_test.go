package rs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// il2pCodec returns a codec with the IL2P field parameters: polynomial
// 0x11d, fcr=0, prim=1.
func il2pCodec(t require.TestingT, nroots int) *Codec {
	c, err := New(0x11d, 0, 1, nroots)
	require.NoError(t, err)
	return c
}

func TestEncodeDecode_NoErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nroots := rapid.SampledFrom([]int{2, 4, 6, 8, 16}).Draw(t, "nroots")
		c := il2pCodec(t, nroots)

		maxData := c.nn - nroots
		data := rapid.SliceOfN(rapid.Byte(), 1, maxData).Draw(t, "data")

		parity := c.Encode(data)
		require.Len(t, parity, nroots)

		block := append(append([]byte{}, data...), parity...)
		corrected, err := c.Decode(block, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, corrected)
		assert.Equal(t, data, block[:len(data)])
	})
}

func TestDecode_CorrectsUpToHalfParity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nroots := rapid.SampledFrom([]int{4, 6, 8, 16}).Draw(t, "nroots")
		c := il2pCodec(t, nroots)

		maxData := c.nn - nroots
		data := rapid.SliceOfN(rapid.Byte(), nroots, maxData).Draw(t, "data")
		parity := c.Encode(data)
		block := append(append([]byte{}, data...), parity...)

		maxErrors := nroots / 2
		numErrors := rapid.IntRange(1, maxErrors).Draw(t, "numErrors")

		corrupted := append([]byte{}, block...)
		positions := rapid.SliceOfNDistinct(rapid.IntRange(0, len(block)-1), numErrors, numErrors, rapid.ID).Draw(t, "positions")
		for _, pos := range positions {
			flip := rapid.Byte().Filter(func(b byte) bool { return b != 0 }).Draw(t, "flip")
			corrupted[pos] ^= flip
		}

		corrected, err := c.Decode(corrupted, 0)
		require.NoError(t, err)
		assert.Equal(t, numErrors, corrected)
		assert.Equal(t, block, corrupted)
	})
}

func TestDecode_TooManyErrorsUncorrectable(t *testing.T) {
	c := il2pCodec(t, 16)
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	parity := c.Encode(data)
	block := append(append([]byte{}, data...), parity...)

	corrupted := append([]byte{}, block...)
	for i := 0; i < len(corrupted); i++ {
		corrupted[i] ^= 0xff
	}

	_, err := c.Decode(corrupted, 0)
	assert.ErrorIs(t, err, ErrUncorrectable)
}

func TestDecode_PaddingRegionFailsCorrection(t *testing.T) {
	c := il2pCodec(t, 16)
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i * 3)
	}
	parity := c.Encode(data)
	block := append(append([]byte{}, data...), parity...)

	corrupted := append([]byte{}, block...)
	corrupted[0] ^= 0x55

	_, err := c.Decode(corrupted, 1)
	assert.Error(t, err)
}
