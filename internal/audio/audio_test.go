package audio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestStreamRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "n")
		samples := make([]complex128, n)
		for i := range samples {
			samples[i] = complex(
				rapid.Float64Range(-1, 1).Draw(t, "i"),
				rapid.Float64Range(-1, 1).Draw(t, "q"),
			)
		}

		var buf bytes.Buffer
		sink := NewStreamSink(&buf)
		for _, s := range samples {
			require.NoError(t, sink.Put(s))
		}
		require.Equal(t, n*4, buf.Len())

		src := NewStreamSource(&buf)
		for _, want := range samples {
			got, err := src.Get()
			require.NoError(t, err)
			// 16-bit quantization bounds the error to one step.
			assert.InDelta(t, real(want), real(got), 1.0/Scale)
			assert.InDelta(t, imag(want), imag(got), 1.0/Scale)
		}

		_, err := src.Get()
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestSourceEOFOnTruncatedPair(t *testing.T) {
	src := NewStreamSource(bytes.NewReader([]byte{0x01, 0x02}))
	_, err := src.Get()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSinkClampsOverdrive(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStreamSink(&buf)
	require.NoError(t, sink.Put(complex(10, -10)))

	src := NewStreamSource(&buf)
	got, err := src.Get()
	require.NoError(t, err)
	assert.InDelta(t, 32767.0/Scale, real(got), 1e-9)
	assert.InDelta(t, -32768.0/Scale, imag(got), 1e-9)
}

func TestScaleMapsUnitToHalfFullScale(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStreamSink(&buf)
	require.NoError(t, sink.Put(complex(1, 0)))

	raw := buf.Bytes()
	assert.Equal(t, byte(0x00), raw[0])
	assert.Equal(t, byte(0x40), raw[1]) // 16384 little-endian
}
