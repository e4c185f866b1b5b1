package il2p

import (
	"fmt"

	"github.com/n0call/qpsktnc/internal/rs"
)

// MaxParitySymbols is the largest per-block RS parity count IL2P uses
// (the max-FEC profile).
const MaxParitySymbols = 16

// rsGFPoly, rsPrim are the same GF(256) parameters the header codec uses.
const (
	rsGFPoly = 0x11d
	rsFCR    = 0
	rsPrim   = 1
)

func newBlockCodec(nroots int) (*rs.Codec, error) {
	return rs.New(rsGFPoly, rsFCR, rsPrim, nroots)
}

// payloadLayout is the block partitioning for a given payload size —
// direct port of the reference's payload-size math.
type payloadLayout struct {
	byteCount       int
	blockCount      int
	smallBlockSize  int
	largeBlockSize  int
	largeBlockCount int
	smallBlockCount int
	parityPerBlock  int
}

// computeLayout partitions a payload into 1-5 roughly-equal blocks and
// picks the parity-symbol count per block. With maxFEC, every block gets
// the maximum 16 parity symbols; otherwise the parity count scales with
// block size so the total overhead stays proportionate.
func computeLayout(payloadSize int, maxFEC bool) (*payloadLayout, int, error) {
	if payloadSize < 0 || payloadSize > MaxPayloadSize {
		return nil, -1, fmt.Errorf("il2p: payload size %d out of range", payloadSize)
	}
	if payloadSize == 0 {
		return &payloadLayout{}, 0, nil
	}

	p := &payloadLayout{byteCount: payloadSize}

	if maxFEC {
		p.blockCount = (p.byteCount + 238) / 239
		p.smallBlockSize = p.byteCount / p.blockCount
		p.largeBlockSize = p.smallBlockSize + 1
		p.largeBlockCount = p.byteCount - (p.blockCount * p.smallBlockSize)
		p.smallBlockCount = p.blockCount - p.largeBlockCount
		p.parityPerBlock = 16
	} else {
		p.blockCount = (p.byteCount + 246) / 247
		p.smallBlockSize = p.byteCount / p.blockCount
		p.largeBlockSize = p.smallBlockSize + 1
		p.largeBlockCount = p.byteCount - (p.blockCount * p.smallBlockSize)
		p.smallBlockCount = p.blockCount - p.largeBlockCount

		switch {
		case p.smallBlockSize <= 61:
			p.parityPerBlock = 2
		case p.smallBlockSize <= 123:
			p.parityPerBlock = 4
		case p.smallBlockSize <= 185:
			p.parityPerBlock = 6
		case p.smallBlockSize <= 247:
			p.parityPerBlock = 8
		default:
			return nil, -1, fmt.Errorf("il2p: block size %d has no matching parity profile", p.smallBlockSize)
		}
	}

	encLen := p.smallBlockCount*(p.smallBlockSize+p.parityPerBlock) +
		p.largeBlockCount*(p.largeBlockSize+p.parityPerBlock)

	return p, encLen, nil
}

// EncodePayload splits payload into 1-5 RS-protected, individually
// scrambled blocks. Each block is scrambled with its own fresh LFSR
// state; the state is not carried between blocks.
func EncodePayload(payload []byte, maxFEC bool) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("il2p: payload too large: %d bytes", len(payload))
	}
	if len(payload) == 0 {
		return nil, nil
	}

	layout, encLen, err := computeLayout(len(payload), maxFEC)
	if err != nil {
		return nil, err
	}

	codec, err := newBlockCodec(layout.parityPerBlock)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, encLen)
	pos := 0

	appendBlock := func(size int) {
		raw := payload[pos : pos+size]
		pos += size
		scrambled := scrambleBlock(raw)
		parity := codec.Encode(scrambled)
		out = append(out, scrambled...)
		out = append(out, parity...)
	}

	for b := 0; b < layout.largeBlockCount; b++ {
		appendBlock(layout.largeBlockSize)
	}
	for b := 0; b < layout.smallBlockCount; b++ {
		appendBlock(layout.smallBlockSize)
	}

	return out, nil
}

// DecodePayload reverses EncodePayload. It returns the recovered payload,
// the total number of RS symbols corrected across all blocks, and an
// error if any block proved uncorrectable.
func DecodePayload(received []byte, payloadSize int, maxFEC bool) ([]byte, int, error) {
	layout, encLen, err := computeLayout(payloadSize, maxFEC)
	if err != nil {
		return nil, 0, err
	}
	if encLen == 0 {
		return nil, 0, nil
	}
	if len(received) < encLen {
		return nil, 0, fmt.Errorf("il2p: received payload too short: got %d want %d", len(received), encLen)
	}

	codec, err := newBlockCodec(layout.parityPerBlock)
	if err != nil {
		return nil, 0, err
	}

	out := make([]byte, 0, payloadSize)
	pos := 0
	corrected := 0
	var failed error

	takeBlock := func(size int) {
		block := append([]byte{}, received[pos:pos+size+layout.parityPerBlock]...)
		pos += size + layout.parityPerBlock

		n, err := codec.Decode(block, 0)
		if err != nil {
			failed = err
		}
		corrected += n

		out = append(out, descrambleBlock(block[:size])...)
	}

	for b := 0; b < layout.largeBlockCount; b++ {
		takeBlock(layout.largeBlockSize)
	}
	for b := 0; b < layout.smallBlockCount; b++ {
		takeBlock(layout.smallBlockSize)
	}

	if failed != nil {
		return nil, corrected, failed
	}
	if len(out) != payloadSize {
		return nil, corrected, fmt.Errorf("il2p: decoded length %d != expected %d", len(out), payloadSize)
	}

	return out, corrected, nil
}
