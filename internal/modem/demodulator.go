// Package modem composes the dsp primitives (oscillator, RRC filter,
// Gardner TED, Costas loop) and the IL2P bit receiver into the two
// synchronous halves of the transceiver: the demodulator (PCM IQ in,
// dibits out, frames delivered through a bit sink) and the modulator
// (bits in, PCM IQ out).
//
// Both types are explicit, independently-constructed values with no
// package-level filter memory, so two transceivers can coexist in one
// process.
package modem

import (
	"math"
	"math/cmplx"

	"github.com/n0call/qpsktnc/internal/dsp"
	"github.com/n0call/qpsktnc/internal/il2p"
)

// EOFFrequencyHz is the offset-frequency magnitude beyond which the
// demodulator declares its carrier lock lost and halts.
const EOFFrequencyHz = 100.0

// BitSink receives one bit at a time, MSB-first within a dibit. The
// IL2P bit receiver implements this.
type BitSink interface {
	Bit(bit int) (*il2p.Result, error)
}

// Demodulator runs the receive-side chain: down-mix, RRC match filter,
// Gardner timing recovery at 2 samples/symbol, Costas carrier recovery,
// QPSK slicing, and delivery of dibits to a BitSink.
type Demodulator struct {
	osc    *dsp.Oscillator
	rrc    *dsp.RRC
	ted    *dsp.TED
	costas *dsp.Costas
	sink   BitSink

	symbolRate float64
	decimate   int // raw samples per TED feed (cycles / InputsPerSymbol)

	quickAttack   float64
	sluggishDecay float64
	peak, valley  float64
	offsetFreqHz  float64
	lostCarrier   bool
}

// DemodulatorConfig bundles the parameters needed to build a
// Demodulator.
type DemodulatorConfig struct {
	SampleRate  float64
	SymbolRate  float64
	CenterFreq  float64
	Rolloff     float64
	Taps        int
	LoopBW      float64
	Damping     float64
	MinFreq     float64
	MaxFreq     float64
	CostasStart bool // initial Costas loop enable state
}

// NewDemodulator builds a demodulator for the given configuration,
// delivering decoded dibits to sink.
func NewDemodulator(cfg DemodulatorConfig, sink BitSink) *Demodulator {
	cycles := int(cfg.SampleRate / cfg.SymbolRate)
	d := &Demodulator{
		osc:           dsp.NewOscillator(cfg.CenterFreq, cfg.SampleRate, true),
		rrc:           dsp.NewRRC(cfg.SampleRate, cfg.SymbolRate, cfg.Rolloff, cfg.Taps),
		ted:           dsp.NewTED(),
		costas:        dsp.NewCostas(cfg.LoopBW, cfg.Damping, cfg.MinFreq, cfg.MaxFreq),
		sink:          sink,
		symbolRate:    cfg.SymbolRate,
		decimate:      cycles / dsp.InputsPerSymbol,
		quickAttack:   0.016,
		sluggishDecay: 2.4e-5,
	}
	d.costas.SetEnable(cfg.CostasStart)
	return d
}

// SetCostasEnable turns carrier tracking on or off.
func (d *Demodulator) SetCostasEnable(enable bool) { d.costas.SetEnable(enable) }

// EOF reports whether the demodulator has declared carrier lock lost.
func (d *Demodulator) EOF() bool { return d.lostCarrier }

// AudioLevel returns the 0-100 peak-minus-valley envelope level.
func (d *Demodulator) AudioLevel() float64 {
	level := (d.peak - d.valley) * 50.0
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// OffsetFreqHz returns the last measured carrier frequency offset.
func (d *Demodulator) OffsetFreqHz() float64 { return d.offsetFreqHz }

// dcdHoldLevel and dcdDropLevel give the DCD predicate hysteresis: DCD
// asserts once the envelope separation climbs above dcdHoldLevel and
// stays asserted until it falls below dcdDropLevel, so a single weak
// dip in signal doesn't chatter the channel-busy indicator.
const (
	dcdHoldLevel = 2.0
	dcdDropLevel = 1.0
)

// DCD reports whether the channel currently looks busy, applying
// hysteresis to AudioLevel so the predicate doesn't chatter around the
// threshold. latch holds the caller-owned hysteresis state across
// calls; the transmit sequencer's CSMA arbitration consumes this as its
// carrier-sense input.
func (d *Demodulator) DCD(latch *bool) bool {
	level := d.AudioLevel()
	switch {
	case !*latch && level >= dcdHoldLevel:
		*latch = true
	case *latch && level <= dcdDropLevel:
		*latch = false
	}
	return *latch
}

// ProcessBlock runs one block of Fs/Rs PCM IQ samples, one symbol
// period, through the full chain. It returns the bit receiver's Result
// if a complete frame was just decoded (successfully or not; check the
// returned error), and nil otherwise. The block is mixed and filtered
// in place.
func (d *Demodulator) ProcessBlock(block []complex128) (*il2p.Result, error) {
	d.osc.MixBlock(block)
	d.rrc.FilterBlock(block)

	// Decimate to two samples per symbol for the TED. After both feeds
	// the window's middle sample is the on-symbol instant.
	for i := 0; i < len(block); i += d.decimate {
		d.ted.Input(block[i])
	}

	return d.onSymbol()
}

// onSymbol carrier-corrects, slices and delivers the symbol decision
// the TED window has settled on for this block, then updates the
// envelope and offset-frequency telemetry.
func (d *Demodulator) onSymbol() (*il2p.Result, error) {
	decision := d.ted.Middle()

	mag := cmplx.Abs(decision)
	fsam := mag * mag // envelope tracks power, not amplitude
	d.updateEnvelope(fsam)

	var rotated complex128
	if d.costas.Enabled() {
		rotated = decision * cmplx.Conj(cmplx.Rect(1, d.costas.Phase()))

		errTerm := dsp.PhaseDetector(rotated)
		d.costas.Advance(errTerm)
	} else {
		rotated = decision * dsp.Rotate45
	}

	d.offsetFreqHz = d.costas.Frequency() * d.symbolRate / (2 * math.Pi)
	if math.Abs(d.offsetFreqHz) >= EOFFrequencyHz {
		d.lostCarrier = true
	}

	dibit := dsp.Decide(rotated)
	hiBit := int((dibit >> 1) & 1)
	loBit := int(dibit & 1)

	// Both bits always reach the sink, even when the first completes a
	// frame, so the following stream stays aligned.
	res1, err1 := d.sink.Bit(hiBit)
	res2, err2 := d.sink.Bit(loBit)
	if res1 != nil || err1 != nil {
		return res1, err1
	}
	return res2, err2
}

func (d *Demodulator) updateEnvelope(fsam float64) {
	if fsam >= d.peak {
		d.peak = fsam*d.quickAttack + d.peak*(1-d.quickAttack)
	} else {
		d.peak = fsam*d.sluggishDecay + d.peak*(1-d.sluggishDecay)
	}

	if fsam <= d.valley {
		d.valley = fsam*d.quickAttack + d.valley*(1-d.quickAttack)
	} else {
		d.valley = fsam*d.sluggishDecay + d.valley*(1-d.sluggishDecay)
	}
}
