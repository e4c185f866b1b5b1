package dsp

import "math"

// InputsPerSymbol is the number of TED input samples per symbol (2x
// oversampling at the symbol rate).
const InputsPerSymbol = 2

// TED is the Gardner timing-error detector. It keeps the three most recent
// input samples and their sliced decisions in a fixed-size window — a
// bounded ring, not a heap-allocated deque.
type TED struct {
	input    [3]complex128 // [0]=oldest .. [2]=newest
	decision [3]complex128

	inputClock int // counts 0..InputsPerSymbol-1

	err     float64
	prevErr float64
}

// NewTED returns a TED ready to receive its first samples.
func NewTED() *TED {
	t := &TED{}
	t.Reset()
	return t
}

// Reset clears the window and the input clock, placing the clock so the
// very next Input() call lands on a symbol instant. Until three real
// samples have been fed, that estimate is computed over the placeholder
// window and is clipped like any other.
func (t *TED) Reset() {
	inf := complex(math.MaxFloat32, math.MaxFloat32)
	t.input = [3]complex128{inf, inf, inf}
	t.decision = [3]complex128{inf, inf, inf}
	t.err = 0
	t.prevErr = 0
	t.inputClock = InputsPerSymbol - 1
}

// Input feeds one new sample into the TED. When the input clock wraps to
// zero (the symbol instant) a new error estimate is computed and Input
// returns true. At that point Middle holds the mid-symbol sample between
// the two on-symbol samples; after the next Input it holds the on-symbol
// sample.
func (t *TED) Input(sample complex128) bool {
	t.input[0], t.input[1], t.input[2] = t.input[1], t.input[2], sample
	t.decision[0], t.decision[1], t.decision[2] = t.decision[1], t.decision[2], MapToPoint(Slice(sample))

	t.inputClock = (t.inputClock + 1) % InputsPerSymbol
	if t.inputClock == 0 {
		t.prevErr = t.err
		t.err = t.computeError()
		return true
	}
	return false
}

// computeError implements the Gardner error formula over the 3-sample
// window: e = (I_prev - I_cur)*I_mid + (Q_prev - Q_cur)*Q_mid, clipped to
// +-0.3 with NaN/Inf replaced by 0.
func (t *TED) computeError() float64 {
	prev, mid, cur := t.input[0], t.input[1], t.input[2]

	e := (real(prev)-real(cur))*real(mid) + (imag(prev)-imag(cur))*imag(mid)

	if math.IsNaN(e) || math.IsInf(e, 0) {
		return 0
	}
	if e > 0.3 {
		return 0.3
	}
	if e < -0.3 {
		return -0.3
	}
	return e
}

// Error returns the current symbol timing error estimate.
func (t *TED) Error() float64 { return t.err }

// Middle returns the middle (on-symbol decision) sample of the window —
// the sample the demodulator slices and hands to the Costas loop.
func (t *TED) Middle() complex128 { return t.input[1] }

// Revert rolls the TED's processing state back one step. Unless
// preserveError is set, the previous error estimate is restored too.
func (t *TED) Revert(preserveError bool) {
	if t.inputClock == 0 && !preserveError {
		t.err = t.prevErr
	}
	t.revertInputClock()

	t.decision[2], t.decision[1], t.decision[0] = t.decision[1], t.decision[0], t.decision[0]
	t.input[2], t.input[1], t.input[0] = t.input[1], t.input[0], t.input[0]
}

func (t *TED) revertInputClock() {
	if t.inputClock == 0 {
		t.inputClock = InputsPerSymbol - 1
	} else {
		t.inputClock--
	}
}
