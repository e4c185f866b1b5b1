package il2p

import (
	"math/bits"

	"github.com/n0call/qpsktnc/internal/ax25"
)

type state int

const (
	stateSearching state = iota
	stateHeader
	statePayload
	stateCRC
	stateDecode
)

// syncWordBits is the 3-byte sync word packed into a 24-bit accumulator,
// MSB first.
const syncWordBits uint32 = 0xf15e48

// BitReceiver extracts IL2P frames from a stream of received bits. It is
// the receive-side mirror of EncodeFrame: sync search, gathered header,
// gathered payload, optional CRC trailer, then one combined decode — a
// fixed per-instance state struct rather than a process-wide table
// indexed by channel/subchannel/slicer.
type BitReceiver struct {
	CRCEnabled bool

	st       state
	acc      uint32
	bitCount int
	polarity bool

	hdrBlock   []byte
	hdrFilled  int
	hdr        [HeaderSize]byte
	hdrType    int
	maxFEC     bool
	payloadLen int

	encPayloadLen int
	payload       []byte
	payloadFilled int

	crcBlock  [CRCEncodedSize]byte
	crcFilled int

	corrected int
}

// NewBitReceiver returns a receiver ready to search for a sync word.
func NewBitReceiver(crcEnabled bool) *BitReceiver {
	r := &BitReceiver{CRCEnabled: crcEnabled}
	r.reset()
	return r
}

func (r *BitReceiver) reset() {
	r.st = stateSearching
	r.bitCount = 0
	r.hdrBlock = nil
	r.hdrFilled = 0
	r.payload = nil
	r.payloadFilled = 0
	r.crcFilled = 0
	r.corrected = 0
}

// Result is a successfully decoded frame, reported once a receiver
// completes a DECODE cycle.
type Result struct {
	Frame      *ax25.Frame
	Corrected  int
	CRCChecked bool
	CRCValid   bool
}

// Bit feeds one received bit into the state machine. It returns a
// non-nil Result when a full frame has just been decoded (successfully
// or not — check err).
func (r *BitReceiver) Bit(dbit int) (*Result, error) {
	r.acc = ((r.acc << 1) | uint32(dbit&1)) & 0x00ffffff

	switch r.st {
	case stateSearching:
		if bits.OnesCount32(r.acc^syncWordBits) <= 1 {
			r.polarity = false
			r.enterHeader()
		} else if bits.OnesCount32((^r.acc&0x00ffffff)^syncWordBits) <= 1 {
			r.polarity = true
			r.enterHeader()
		}
		return nil, nil

	case stateHeader:
		r.bitCount++
		if r.bitCount < 8 {
			return nil, nil
		}
		r.bitCount = 0
		r.hdrBlock = append(r.hdrBlock, r.byteFromAcc())
		r.hdrFilled++
		if r.hdrFilled < HeaderSize+HeaderParity {
			return nil, nil
		}
		return r.finishHeader()

	case statePayload:
		r.bitCount++
		if r.bitCount < 8 {
			return nil, nil
		}
		r.bitCount = 0
		r.payload = append(r.payload, r.byteFromAcc())
		r.payloadFilled++
		if r.payloadFilled < r.encPayloadLen {
			return nil, nil
		}
		return r.advanceToCRCOrDecode()

	case stateCRC:
		r.bitCount++
		if r.bitCount < 8 {
			return nil, nil
		}
		r.bitCount = 0
		r.crcBlock[r.crcFilled] = r.byteFromAcc()
		r.crcFilled++
		if r.crcFilled < CRCEncodedSize {
			return nil, nil
		}
		return r.decode()
	}

	return nil, nil
}

func (r *BitReceiver) byteFromAcc() byte {
	if r.polarity {
		return byte(^r.acc) & 0xff
	}
	return byte(r.acc) & 0xff
}

func (r *BitReceiver) enterHeader() {
	r.st = stateHeader
	r.bitCount = 0
	r.hdrFilled = 0
	r.hdrBlock = make([]byte, 0, HeaderSize+HeaderParity)
}

func (r *BitReceiver) finishHeader() (*Result, error) {
	hc, err := headerCodec()
	if err != nil {
		r.reset()
		return nil, err
	}

	block := append([]byte{}, r.hdrBlock...)
	corrected, err := hc.Decode(block, 0)
	if err != nil {
		// Header failed FEC; give up on this frame and resume search.
		r.reset()
		return nil, nil
	}
	r.corrected = corrected
	copy(r.hdr[:], descrambleBlock(block[:HeaderSize]))

	hdrType, maxFEC, payloadLen := HeaderAttributes(r.hdr)
	r.hdrType, r.maxFEC, r.payloadLen = hdrType, maxFEC, payloadLen

	_, encLen, err := computeLayout(payloadLen, maxFEC)
	if err != nil || encLen < 0 {
		r.reset()
		return nil, nil
	}
	r.encPayloadLen = encLen

	if encLen >= 1 {
		r.st = statePayload
		r.bitCount = 0
		r.payload = make([]byte, 0, encLen)
		r.payloadFilled = 0
		return nil, nil
	}

	return r.advanceToCRCOrDecode()
}

func (r *BitReceiver) advanceToCRCOrDecode() (*Result, error) {
	if r.CRCEnabled {
		r.st = stateCRC
		r.bitCount = 0
		r.crcFilled = 0
		return nil, nil
	}
	return r.decode()
}

func (r *BitReceiver) decode() (*Result, error) {
	payload, payloadCorrected, err := DecodePayload(r.payload, r.payloadLen, r.maxFEC)
	if err != nil {
		r.reset()
		return &Result{}, err
	}

	var frame *ax25.Frame
	if r.hdrType == 1 {
		frame, err = ParseType1(r.hdr, r.corrected)
		if err != nil {
			r.reset()
			return &Result{}, err
		}
		frame.Info = payload
	} else {
		frame, err = ax25.Decode(payload)
		if err != nil {
			r.reset()
			return &Result{}, err
		}
	}

	result := &Result{Frame: frame, Corrected: r.corrected + payloadCorrected}

	if r.CRCEnabled {
		if frameBytes, err := frame.Encode(); err == nil {
			result.CRCChecked = true
			result.CRCValid = checkCRC(frameBytes, r.crcBlock[:])
		}
	}

	r.reset()
	return result, nil
}
