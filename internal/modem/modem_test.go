package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0call/qpsktnc/internal/ax25"
	"github.com/n0call/qpsktnc/internal/dsp"
	"github.com/n0call/qpsktnc/internal/il2p"
)

const (
	testSampleRate = 9600.0
	testSymbolRate = 1200.0
	testCenterFreq = 1000.0
	testRolloff    = 0.35
	testTaps       = 65

	// TX and RX each contribute (taps-1)/2 samples of filter delay;
	// at 8 samples per symbol that is exactly 8 symbols end to end.
	chainDelaySymbols = (testTaps - 1) / 8
)

// sampleSink collects the modulator's complex output before PCM
// conversion, so the loopback below is bit-exact on the DSP chain.
type sampleSink struct {
	samples []complex128
}

func (s *sampleSink) Put(v complex128) error { s.samples = append(s.samples, v); return nil }
func (s *sampleSink) Flush() error           { return nil }
func (s *sampleSink) Wait() error            { return nil }

// bitTap records every demodulated bit.
type bitTap struct {
	bits []int
}

func (b *bitTap) Bit(bit int) (*il2p.Result, error) {
	b.bits = append(b.bits, bit)
	return nil, nil
}

func newTestModulator(sink *sampleSink) *Modulator {
	return NewModulator(ModulatorConfig{
		SampleRate: testSampleRate,
		SymbolRate: testSymbolRate,
		CenterFreq: testCenterFreq,
		Rolloff:    testRolloff,
		Taps:       testTaps,
	}, sink)
}

func newTestDemodulator(sink BitSink) *Demodulator {
	return NewDemodulator(DemodulatorConfig{
		SampleRate:  testSampleRate,
		SymbolRate:  testSymbolRate,
		CenterFreq:  testCenterFreq,
		Rolloff:     testRolloff,
		Taps:        testTaps,
		LoopBW:      0.0349,
		Damping:     0.707,
		MinFreq:     -1.0,
		MaxFreq:     1.0,
		CostasStart: false,
	}, sink)
}

// runLoopback modulates data, pads enough idle to flush both filter
// chains, and demodulates everything, returning the recovered bits.
func runLoopback(t *testing.T, demod *Demodulator, data []byte) ([]int, []*il2p.Result) {
	t.Helper()

	sink := &sampleSink{}
	mod := newTestModulator(sink)

	require.NoError(t, mod.SendBytes(data))
	require.NoError(t, mod.SendIdle(4)) // flush filter delay

	var results []*il2p.Result
	cycles := int(testSampleRate / testSymbolRate)
	tap, _ := demod.sink.(*bitTap)

	for i := 0; i+cycles <= len(sink.samples); i += cycles {
		block := append([]complex128{}, sink.samples[i:i+cycles]...)
		res, _ := demod.ProcessBlock(block)
		if res != nil && res.Frame != nil {
			results = append(results, res)
		}
	}

	if tap != nil {
		return tap.bits, results
	}
	return nil, results
}

func TestLoopbackSingleDibit(t *testing.T) {
	tap := &bitTap{}
	demod := newTestDemodulator(tap)

	bits, _ := runLoopback(t, demod, []byte{0x00})

	// The first data dibit emerges after the chain delay.
	offset := 2 * chainDelaySymbols
	require.Greater(t, len(bits), offset+2)
	assert.Equal(t, 0, bits[offset])
	assert.Equal(t, 0, bits[offset+1])
}

func TestLoopbackByteStream(t *testing.T) {
	data := []byte{0x1b, 0xc5, 0x00, 0xff, 0x3c}

	tap := &bitTap{}
	demod := newTestDemodulator(tap)
	bits, _ := runLoopback(t, demod, data)

	offset := 2 * chainDelaySymbols
	require.GreaterOrEqual(t, len(bits), offset+8*len(data))

	for i, b := range data {
		for j := 7; j >= 0; j-- {
			want := int((b >> uint(j)) & 1)
			got := bits[offset+8*i+(7-j)]
			require.Equal(t, want, got, "byte %d bit %d", i, j)
		}
	}
}

func TestLoopbackWholeFrame(t *testing.T) {
	f := &ax25.Frame{
		Dest:    ax25.Address{Call: "N0CALL", SSID: 0},
		Src:     ax25.Address{Call: "N0CALL", SSID: 1},
		Command: true,
		Type:    ax25.FrameUUI,
		PID:     0xf0,
		Info:    []byte("HELLO"),
	}
	encoded, err := il2p.EncodeFrame(f, true, false)
	require.NoError(t, err)

	// Preamble long enough to absorb filter warmup and any spurious
	// sync attempt before the real frame starts.
	stream := make([]byte, 0, len(encoded)+24)
	for i := 0; i < 20; i++ {
		stream = append(stream, IdleOctet)
	}
	stream = append(stream, encoded...)

	rx := il2p.NewBitReceiver(false)
	demod := newTestDemodulator(rx)
	_, results := runLoopback(t, demod, stream)

	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Corrected)
	assert.Equal(t, "HELLO", string(results[0].Frame.Info))
	assert.Equal(t, "N0CALL", results[0].Frame.Src.Call)
}

func TestDemodulatorEOFOnFrequencyRunaway(t *testing.T) {
	tap := &bitTap{}
	// Pin the loop frequency above the EOF threshold via its clamp:
	// 0.6 rad/symbol at 1200 sym/s is ~115 Hz.
	demod := NewDemodulator(DemodulatorConfig{
		SampleRate:  testSampleRate,
		SymbolRate:  testSymbolRate,
		CenterFreq:  testCenterFreq,
		Rolloff:     testRolloff,
		Taps:        testTaps,
		LoopBW:      0.0349,
		Damping:     0.707,
		MinFreq:     0.6,
		MaxFreq:     0.6,
		CostasStart: true,
	}, tap)

	block := make([]complex128, 8)
	for j := range block {
		block[j] = complex(1, 0)
	}
	_, _ = demod.ProcessBlock(block)

	assert.True(t, demod.EOF())
	assert.GreaterOrEqual(t, demod.OffsetFreqHz(), EOFFrequencyHz)
}

func TestAudioLevelTracksEnvelope(t *testing.T) {
	tap := &bitTap{}
	demod := newTestDemodulator(tap)

	assert.Equal(t, 0.0, demod.AudioLevel())

	sink := &sampleSink{}
	mod := newTestModulator(sink)
	require.NoError(t, mod.SendIdle(50))

	cycles := int(testSampleRate / testSymbolRate)
	for i := 0; i+cycles <= len(sink.samples); i += cycles {
		block := append([]complex128{}, sink.samples[i:i+cycles]...)
		_, _ = demod.ProcessBlock(block)
	}

	assert.Greater(t, demod.AudioLevel(), 0.0)
}

func TestDibitPointRoundTripThroughRotation(t *testing.T) {
	for d := dsp.Dibit(0); d < 4; d++ {
		rotated := dsp.MapToPoint(d) * dsp.Rotate45
		assert.Equal(t, d, dsp.Decide(rotated))
	}
}
