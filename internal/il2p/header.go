package il2p

import (
	"fmt"
	"strings"

	"github.com/n0call/qpsktnc/internal/ax25"
)

// HeaderSize is the unscrambled, unprotected Type 1/Type 0 header length
// in bytes.
const HeaderSize = 13

// HeaderParity is the number of RS parity symbols protecting the header —
// enough to always correct one damaged symbol.
const HeaderParity = 2

// MaxPayloadSize is the largest AX.25 information field (Type 1 header)
// or whole frame (Type 0 header) IL2P can carry.
const MaxPayloadSize = 1023

// Header is a decoded IL2P header, independent of its Type 0/Type 1 wire
// representation.
type Header struct {
	Type             int // 0 or 1
	FECLevel         bool
	PayloadByteCount int

	// Type 1 only.
	Frame *ax25.Frame
}

func asciiToSixbit(a byte) byte {
	if a >= ' ' && a <= '_' {
		return a - ' '
	}
	return 31 // '?'
}

func sixbitToAscii(s byte) byte { return s + ' ' }

// setField ORs value (width bits, LSB first) into bit bitNum of hdr[lsbIndex],
// hdr[lsbIndex-1], ... — the bit-interleaving trick that hides extra
// header fields in the otherwise-unused high bits of the SIXBIT address
// bytes.
func setField(hdr []byte, bitNum, lsbIndex, width, value int) {
	for width > 0 && value != 0 {
		if value&1 != 0 {
			hdr[lsbIndex] |= 1 << uint(bitNum)
		}
		value >>= 1
		lsbIndex--
		width--
	}
}

func getField(hdr []byte, bitNum, lsbIndex, width int) int {
	lsbIndex -= width - 1
	result := 0
	for width > 0 {
		result <<= 1
		if hdr[lsbIndex]&(1<<uint(bitNum)) != 0 {
			result |= 1
		}
		lsbIndex++
		width--
	}
	return result
}

func setUI(hdr []byte, v int)               { setField(hdr, 6, 0, 1, v) }
func setPID(hdr []byte, v int)              { setField(hdr, 6, 4, 4, v) }
func setControl(hdr []byte, v int)          { setField(hdr, 6, 11, 7, v) }
func setFECLevel(hdr []byte, v int)         { setField(hdr, 7, 0, 1, v) }
func setHdrType(hdr []byte, v int)          { setField(hdr, 7, 1, 1, v) }
func setPayloadByteCount(hdr []byte, v int) { setField(hdr, 7, 11, 10, v) }

func getUI(hdr []byte) int               { return getField(hdr, 6, 0, 1) }
func getPID(hdr []byte) int              { return getField(hdr, 6, 4, 4) }
func getControl(hdr []byte) int          { return getField(hdr, 6, 11, 7) }
func getFECLevel(hdr []byte) int         { return getField(hdr, 7, 0, 1) }
func getHdrType(hdr []byte) int          { return getField(hdr, 7, 1, 1) }
func getPayloadByteCount(hdr []byte) int { return getField(hdr, 7, 11, 10) }

// encodePID squeezes an AX.25 PID byte into IL2P's 4-bit field. ok is
// false when no mapping exists, meaning the caller must fall back to a
// Type 0 header.
func encodePID(pid byte) (int, bool) {
	switch {
	case pid&0x30 == 0x20, pid&0x30 == 0x10:
		return 0x2, true // AX.25 layer 3
	case pid == 0x01:
		return 0x3, true // ISO 8208 / CCITT X.25 PLP
	case pid == 0x06:
		return 0x4, true // compressed TCP/IP
	case pid == 0x07:
		return 0x5, true // uncompressed TCP/IP
	case pid == 0x08:
		return 0x6, true // segmentation fragment
	case pid == 0xcc:
		return 0xb, true // ARPA internet protocol
	case pid == 0xcd:
		return 0xc, true // ARPA address resolution
	case pid == 0xce:
		return 0xd, true // FlexNet
	case pid == 0xcf:
		return 0xe, true // TheNET
	case pid == 0xf0:
		return 0xf, true // no layer 3
	default:
		return 0, false
	}
}

var decodePIDTable = [16]byte{
	0xf0, 0xf0, 0x20, 0x01, 0x06, 0x07, 0x08, 0xf0,
	0xf0, 0xf0, 0xf0, 0xcc, 0xcd, 0xce, 0xcf, 0xf0,
}

func decodePID(v int) byte { return decodePIDTable[v&0x0f] }

// BuildType1 attempts to build a Type 1 header for f. ok is false when f
// cannot be represented (more than 2 addresses, extended sequencing, an
// unmappable PID) and the caller should fall back to BuildType0.
func BuildType1(f *ax25.Frame, maxFEC bool) (hdr [HeaderSize]byte, infoLen int, ok bool) {
	destCall := strings.ToUpper(strings.TrimSpace(f.Dest.Call))
	srcCall := strings.ToUpper(strings.TrimSpace(f.Src.Call))
	for _, c := range destCall + srcCall {
		if c < ' ' || c > '_' {
			return hdr, 0, false
		}
	}

	buf := hdr[:]
	for i := 0; i < len(destCall); i++ {
		buf[i] = asciiToSixbit(destCall[i])
	}
	for i := 0; i < len(srcCall); i++ {
		buf[6+i] = asciiToSixbit(srcCall[i])
	}
	buf[12] = byte((f.Dest.SSID << 4) | f.Src.SSID)

	pf := 0
	if f.PF {
		pf = 1
	}
	cmdBit := 0
	if f.Command {
		cmdBit = 1
	}

	switch {
	case f.IsS():
		setUI(buf, 0)
		setPID(buf, 0)
		var ss int
		switch f.Type {
		case ax25.FrameSRR:
			ss = 0
		case ax25.FrameSRNR:
			ss = 1
		case ax25.FrameSREJ:
			ss = 2
		default:
			ss = 3
		}
		setControl(buf, (pf<<6)|(f.NR<<3)|(cmdBit<<2)|ss)

	case f.IsU():
		if f.Type == ax25.FrameUUI {
			setUI(buf, 1)
			pid, mapped := encodePID(f.PID)
			if !mapped {
				return hdr, 0, false
			}
			setPID(buf, pid)
		} else {
			setPID(buf, 1)
		}

		var opcode int
		switch f.Type {
		case ax25.FrameUSABM:
			opcode = 0
		case ax25.FrameUDISC:
			opcode = 1
		case ax25.FrameUDM:
			opcode = 2
		case ax25.FrameUUA:
			opcode = 3
		case ax25.FrameUFRMR:
			opcode = 4
		case ax25.FrameUUI:
			opcode = 5
		case ax25.FrameUXID:
			opcode = 6
		case ax25.FrameUTEST:
			opcode = 7
		}
		setControl(buf, (pf<<6)|(cmdBit<<2)|(opcode<<3))

	case f.Type == ax25.FrameI:
		setUI(buf, 0)
		pid, mapped := encodePID(f.PID)
		if !mapped {
			return hdr, 0, false
		}
		setPID(buf, pid)
		setControl(buf, (pf<<6)|(f.NR<<3)|f.NS)

	default:
		return hdr, 0, false
	}

	fec := 0
	if maxFEC {
		fec = 1
	}
	setFECLevel(buf, fec)
	setHdrType(buf, 1)

	if len(f.Info) > MaxPayloadSize {
		return hdr, 0, false
	}
	setPayloadByteCount(buf, len(f.Info))

	return hdr, len(f.Info), true
}

// ParseType1 recovers an ax25.Frame from a Type 1 header. numSymChanged
// is the number of symbols the RS header decode corrected (0 or 1). It is
// not consulted: an invalid callsign character is returned as an error
// whatever its value.
func ParseType1(hdr [HeaderSize]byte, numSymChanged int) (*ax25.Frame, error) {
	if getHdrType(hdr[:]) != 1 {
		return nil, fmt.Errorf("il2p: not a type 1 header")
	}

	destCall, err := decodeCallsign(hdr[0:6])
	if err != nil {
		return nil, err
	}
	srcCall, err := decodeCallsign(hdr[6:12])
	if err != nil {
		return nil, err
	}

	f := &ax25.Frame{
		Dest: ax25.Address{Call: destCall, SSID: int(hdr[12]>>4) & 0x0f},
		Src:  ax25.Address{Call: srcCall, SSID: int(hdr[12]) & 0x0f},
	}

	pid := getPID(hdr[:])
	ui := getUI(hdr[:])
	control := getControl(hdr[:])

	switch {
	case pid == 0:
		f.Command = control&0x04 != 0
		switch control & 0x03 {
		case 0:
			f.Type = ax25.FrameSRR
		case 1:
			f.Type = ax25.FrameSRNR
		case 2:
			f.Type = ax25.FrameSREJ
		default:
			f.Type = ax25.FrameSSREJ
		}
		f.NR = (control >> 3) & 0x07
		f.PF = (control>>6)&0x01 != 0

	case pid == 1:
		f.Command = control&0x04 != 0
		switch (control >> 3) & 0x07 {
		case 0:
			f.Type = ax25.FrameUSABM
		case 1:
			f.Type = ax25.FrameUDISC
		case 2:
			f.Type = ax25.FrameUDM
		case 3:
			f.Type = ax25.FrameUUA
		case 4:
			f.Type = ax25.FrameUFRMR
		case 5:
			f.Type = ax25.FrameUUI
			f.PID = 0xf0
		case 6:
			f.Type = ax25.FrameUXID
		default:
			f.Type = ax25.FrameUTEST
		}
		f.PF = (control>>6)&0x01 != 0

	case ui != 0:
		f.Command = control&0x04 != 0
		f.Type = ax25.FrameUUI
		f.PF = (control>>6)&0x01 != 0
		f.PID = decodePID(getPID(hdr[:]))

	default:
		f.Command = true
		f.Type = ax25.FrameI
		f.PF = (control>>6)&0x01 != 0
		f.NR = (control >> 3) & 0x07
		f.NS = control & 0x07
		f.PID = decodePID(getPID(hdr[:]))
	}

	return f, nil
}

func decodeCallsign(sixbit []byte) (string, error) {
	var b strings.Builder
	for _, s := range sixbit {
		b.WriteByte(sixbitToAscii(s & 0x3f))
	}
	call := strings.TrimRight(b.String(), " ")
	for _, c := range call {
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return "", fmt.Errorf("il2p: invalid callsign character %q", c)
		}
	}
	return call, nil
}

// BuildType0 builds a transparent-encapsulation header: the entire raw
// AX.25 frame goes into the payload unchanged. Used whenever BuildType1
// can't represent the frame.
func BuildType0(rawFrame []byte, maxFEC bool) (hdr [HeaderSize]byte, ok bool) {
	fec := 0
	if maxFEC {
		fec = 1
	}
	setFECLevel(hdr[:], fec)
	setHdrType(hdr[:], 0)

	if len(rawFrame) < 15 || len(rawFrame) > MaxPayloadSize {
		return hdr, false
	}
	setPayloadByteCount(hdr[:], len(rawFrame))
	return hdr, true
}

// HeaderAttributes extracts the header type, FEC level and payload byte
// count without fully parsing the header — used to size the payload
// decode before the Type 1 address fields are trusted.
func HeaderAttributes(hdr [HeaderSize]byte) (hdrType int, maxFEC bool, payloadByteCount int) {
	return getHdrType(hdr[:]), getFECLevel(hdr[:]) != 0, getPayloadByteCount(hdr[:])
}
