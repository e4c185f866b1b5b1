package dsp

import "math/cmplx"

// Dibit is two bits, one QPSK symbol, values 0-3.
type Dibit byte

// qpskPoints is the Gray-coded diamond-form constellation:
// 00 -> (+1,0), 01 -> (0,+1), 10 -> (0,-1), 11 -> (-1,0).
var qpskPoints = [4]complex128{
	complex(1, 0),
	complex(0, 1),
	complex(0, -1),
	complex(-1, 0),
}

// Rotate45 is the static -45 degree (diamond-to-rectangular) rotation the
// demodulator applies in place of Costas correction when the loop is
// disabled.
var Rotate45 = cmplx.Rect(1, -pi4)

const pi4 = 0.7853981633974483

// MapToPoint returns the reference constellation point for a dibit.
func MapToPoint(d Dibit) complex128 {
	return qpskPoints[d&3]
}

// Slice makes the rectangular-domain QPSK decision:
// 2*[Q>0] + [I>0].
func Slice(sample complex128) Dibit {
	var d Dibit
	if imag(sample) > 0 {
		d |= 2
	}
	if real(sample) > 0 {
		d |= 1
	}
	return d
}

// quadrantToDibit inverts the diamond transmit mapping: rotating point d
// by -pi/4 lands it in rectangular quadrant q, and this table takes q
// back to d, so a demodulated symbol recovers the transmitted dibit.
var quadrantToDibit = [4]Dibit{2, 0, 3, 1}

// Decide slices a rectangular-rotated sample and maps the quadrant back
// to the dibit that selected the transmitted constellation point.
func Decide(sample complex128) Dibit {
	return quadrantToDibit[Slice(sample)]
}
