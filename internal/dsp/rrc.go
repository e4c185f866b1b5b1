// Package dsp implements the physical-layer signal processing blocks of the
// QPSK soundcard modem: root-raised-cosine pulse shaping, the complex
// mixing oscillator, Costas carrier recovery, the Gardner timing-error
// detector, and the constellation slicer.
//
// Every type here is an explicit value owned by whichever of the RX or TX
// threads uses it — there is no package-level filter memory, so two
// transceivers can coexist in one process.
package dsp

import "math"

// RRC is a root-raised-cosine pulse-shaping filter with its own shift
// register. TX and RX each get an independent instance.
type RRC struct {
	coeffs []float64
	mem    []complex128 // shift register, oldest first
}

// RRCGain is the empirical target passband gain the coefficient set is
// normalized to.
const RRCGain = 1.55

// NewRRC builds the filter coefficients for the given sample rate, symbol
// rate and roll-off, with the given (odd) number of taps, normalized so
// the coefficients sum to RRCGain.
func NewRRC(sampleRate, symbolRate, rolloff float64, taps int) *RRC {
	if taps%2 == 0 {
		taps++
	}

	coeffs := make([]float64, taps)
	samplesPerSymbol := sampleRate / symbolRate
	center := taps / 2

	var sum float64
	for i := 0; i < taps; i++ {
		x := float64(i-center) / samplesPerSymbol
		coeffs[i] = rrcTap(x, rolloff, i == center)
		sum += coeffs[i]
	}

	if sum != 0 {
		scale := RRCGain / sum
		for i := range coeffs {
			coeffs[i] *= scale
		}
	}

	return &RRC{
		coeffs: coeffs,
		mem:    make([]complex128, taps),
	}
}

// rrcTap evaluates the standard root-raised-cosine impulse response at
// x = t/Tsymbol, guarding the two removable singularities (t=0 and
// 4*alpha*t/T = +-1).
func rrcTap(x, alpha float64, isCenter bool) float64 {
	if isCenter {
		// Closed form at t=0.
		return 1 + alpha*(4/math.Pi-1)
	}

	denom := 1 - math.Pow(4*alpha*x, 2)
	if math.Abs(denom) < 1e-6 {
		// t = +-T/(4*alpha): L'Hopital-reduced closed form.
		return (alpha / math.Sqrt2) * ((1+2/math.Pi)*math.Sin(math.Pi/(4*alpha)) +
			(1-2/math.Pi)*math.Cos(math.Pi/(4*alpha)))
	}

	num := math.Cos((1+alpha)*math.Pi*x) +
		(math.Sin((1-alpha)*math.Pi*x) / (4 * alpha * x))
	return 4 * alpha * num / (math.Pi * denom)
}

// Filter shapes one sample in place: shift it into the register, take the
// inner product against the coefficient table, and return the output.
func (f *RRC) Filter(sample complex128) complex128 {
	copy(f.mem, f.mem[1:])
	f.mem[len(f.mem)-1] = sample

	var y complex128
	for i, c := range f.coeffs {
		y += f.mem[i] * complex(c, 0)
	}
	return y
}

// FilterBlock shapes a block of samples in place.
func (f *RRC) FilterBlock(block []complex128) {
	for i, s := range block {
		block[i] = f.Filter(s)
	}
}

// CoefficientSum returns the sum of the filter's coefficients, which
// the normalization in NewRRC holds at RRCGain.
func (f *RRC) CoefficientSum() float64 {
	var sum float64
	for _, c := range f.coeffs {
		sum += c
	}
	return sum
}
