package modem

import (
	"github.com/n0call/qpsktnc/internal/audio"
	"github.com/n0call/qpsktnc/internal/dsp"
)

// IdleOctet is the fill pattern used for TX-delay preamble and TX-tail
// trailer padding.
const IdleOctet = 0xCC

// Modulator runs the transmit-side chain: bits to dibits to QPSK
// symbols, zero-insertion upsampling, RRC shaping, up-mixing, and PCM
// output.
type Modulator struct {
	rrc              *dsp.RRC
	osc              *dsp.Oscillator
	samplesPerSymbol int
	sink             audio.Sink
}

// ModulatorConfig bundles the parameters needed to build a Modulator.
type ModulatorConfig struct {
	SampleRate float64
	SymbolRate float64
	CenterFreq float64
	Rolloff    float64
	Taps       int
}

// NewModulator builds a modulator writing PCM samples to sink.
func NewModulator(cfg ModulatorConfig, sink audio.Sink) *Modulator {
	return &Modulator{
		rrc:              dsp.NewRRC(cfg.SampleRate, cfg.SymbolRate, cfg.Rolloff, cfg.Taps),
		osc:              dsp.NewOscillator(cfg.CenterFreq, cfg.SampleRate, false),
		samplesPerSymbol: int(cfg.SampleRate / cfg.SymbolRate),
		sink:             sink,
	}
}

// SendBytes transmits data MSB-first, two bits (one dibit, high-order
// bit first) per QPSK symbol.
func (m *Modulator) SendBytes(data []byte) error {
	for _, b := range data {
		for shift := 6; shift >= 0; shift -= 2 {
			dibit := dsp.Dibit((b >> uint(shift)) & 0x3)
			if err := m.sendSymbol(dibit); err != nil {
				return err
			}
		}
	}
	return nil
}

// SendIdle transmits nOctets of the 0xCC fill pattern, packaged exactly
// like data bits, to realize TX-delay and TX-tail idle periods.
func (m *Modulator) SendIdle(nOctets int) error {
	idle := make([]byte, nOctets)
	for i := range idle {
		idle[i] = IdleOctet
	}
	return m.SendBytes(idle)
}

// Flush drains the output sink. The sequencer calls this before
// computing the wall-clock burst duration so PTT release lines up with
// the last sample actually leaving the device.
func (m *Modulator) Flush() error {
	if err := m.sink.Flush(); err != nil {
		return err
	}
	return m.sink.Wait()
}

// sendSymbol upsamples one QPSK symbol by zero-insertion, RRC-shapes,
// mixes to passband, and writes the resulting PCM samples.
func (m *Modulator) sendSymbol(d dsp.Dibit) error {
	point := dsp.MapToPoint(d)

	for i := 0; i < m.samplesPerSymbol; i++ {
		var s complex128
		if i == 0 {
			s = point
		}
		shaped := m.rrc.Filter(s)
		mixed := m.osc.Mix(shaped)
		if err := m.sink.Put(mixed); err != nil {
			return err
		}
	}
	m.osc.Renormalize()
	return nil
}
