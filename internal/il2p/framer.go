package il2p

import (
	"fmt"

	"github.com/n0call/qpsktnc/internal/ax25"
	"github.com/n0call/qpsktnc/internal/rs"
)

func headerCodec() (*rs.Codec, error) {
	return rs.New(rsGFPoly, rsFCR, rsPrim, HeaderParity)
}

// EncodeFrame builds a complete IL2P frame (sync word, RS-protected
// scrambled header, RS-protected scrambled payload blocks, and an
// optional trailing CRC) from an AX.25 frame.
func EncodeFrame(f *ax25.Frame, maxFEC bool, crcEnabled bool) ([]byte, error) {
	hc, err := headerCodec()
	if err != nil {
		return nil, err
	}

	var hdr [HeaderSize]byte
	var payload []byte
	var rawFrame []byte

	if h, infoLen, ok := BuildType1(f, maxFEC); ok {
		hdr = h
		payload = f.Info[:infoLen]
	} else {
		rawFrame, err = f.Encode()
		if err != nil {
			return nil, err
		}
		h0, ok := BuildType0(rawFrame, maxFEC)
		if !ok {
			return nil, fmt.Errorf("il2p: frame cannot be encoded as type 0 or type 1")
		}
		hdr = h0
		payload = rawFrame
	}

	scrambledHdr := scrambleBlock(hdr[:])
	hdrParity := hc.Encode(scrambledHdr)

	encPayload, err := EncodePayload(payload, maxFEC)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(SyncWord)+HeaderSize+HeaderParity+len(encPayload)+CRCEncodedSize)
	out = append(out, SyncWord[:]...)
	out = append(out, scrambledHdr...)
	out = append(out, hdrParity...)
	out = append(out, encPayload...)

	if crcEnabled {
		frameBytes := rawFrame
		if frameBytes == nil {
			frameBytes, err = f.Encode()
			if err != nil {
				return nil, err
			}
		}
		crcBytes := encodeCRC(crc16(frameBytes))
		out = append(out, crcBytes[:]...)
	}

	return out, nil
}

// DecodedFrame is the result of decoding a received IL2P frame: the
// recovered AX.25 frame, the total RS symbols corrected, and whether the
// supplemental trailing CRC (if present) validated.
type DecodedFrame struct {
	Frame      *ax25.Frame
	Corrected  int
	CRCChecked bool
	CRCValid   bool
}

// DecodeFrame decodes a received IL2P frame, excluding the 3-byte sync
// word (the caller's bit receiver consumes that separately).
func DecodeFrame(raw []byte, crcEnabled bool) (*DecodedFrame, error) {
	if len(raw) < HeaderSize+HeaderParity {
		return nil, fmt.Errorf("il2p: frame too short for header")
	}

	hc, err := headerCodec()
	if err != nil {
		return nil, err
	}

	hdrBlock := append([]byte{}, raw[:HeaderSize+HeaderParity]...)
	hdrCorrected, err := hc.Decode(hdrBlock, 0)
	if err != nil {
		return nil, fmt.Errorf("il2p: header uncorrectable: %w", err)
	}

	var hdr [HeaderSize]byte
	copy(hdr[:], descrambleBlock(hdrBlock[:HeaderSize]))

	hdrType, maxFEC, payloadByteCount := HeaderAttributes(hdr)

	payloadRaw := raw[HeaderSize+HeaderParity:]
	payload, payloadCorrected, err := DecodePayload(payloadRaw, payloadByteCount, maxFEC)
	if err != nil {
		return nil, fmt.Errorf("il2p: payload uncorrectable: %w", err)
	}

	corrected := hdrCorrected + payloadCorrected

	var frame *ax25.Frame
	if hdrType == 1 {
		frame, err = ParseType1(hdr, hdrCorrected)
		if err != nil {
			return nil, err
		}
		frame.Info = payload
	} else {
		frame, err = ax25.Decode(payload)
		if err != nil {
			return nil, err
		}
	}

	result := &DecodedFrame{Frame: frame, Corrected: corrected}

	if crcEnabled {
		_, encLen, _ := computeLayout(payloadByteCount, maxFEC)
		crcOffset := HeaderSize + HeaderParity + encLen
		if len(raw) >= crcOffset+CRCEncodedSize {
			frameBytes, err := frame.Encode()
			if err == nil {
				result.CRCChecked = true
				result.CRCValid = checkCRC(frameBytes, raw[crcOffset:crcOffset+CRCEncodedSize])
			}
		}
	}

	return result, nil
}
