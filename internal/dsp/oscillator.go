package dsp

import "math/cmplx"

// Oscillator is a complex NCO: a unit-magnitude phasor advanced by a fixed
// per-sample rotation. It is renormalized periodically to cancel floating
// point drift in its magnitude.
type Oscillator struct {
	phase complex128 // current unit-magnitude phasor
	rect  complex128 // per-sample advance, exp(i*2*pi*f/Fs)
}

// NewOscillator builds an oscillator for the given frequency (Hz) and
// sample rate (Hz). Pass down=true to build the down-mixing (conjugated)
// variant used by the receiver.
func NewOscillator(freqHz, sampleRate float64, down bool) *Oscillator {
	rect := cmplx.Rect(1, 2*pi*freqHz/sampleRate)
	if down {
		rect = cmplx.Conj(rect)
	}
	return &Oscillator{phase: 1, rect: rect}
}

const pi = 3.14159265358979323846

// Mix advances the oscillator by one sample and multiplies it against the
// input.
func (o *Oscillator) Mix(sample complex128) complex128 {
	o.phase *= o.rect
	return sample * o.phase
}

// MixBlock mixes a block of samples in place, renormalizing the phasor
// magnitude once at the end of the block.
func (o *Oscillator) MixBlock(block []complex128) {
	for i, s := range block {
		block[i] = o.Mix(s)
	}
	o.Renormalize()
}

// Renormalize divides the phasor by its magnitude, preventing drift.
func (o *Oscillator) Renormalize() {
	mag := cmplx.Abs(o.phase)
	if mag == 0 {
		o.phase = 1
		return
	}
	o.phase /= complex(mag, 0)
}
