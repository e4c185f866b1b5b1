// Package rs implements a GF(256) Reed-Solomon codec: table-driven
// encode, and a classical syndrome / Berlekamp-Massey / Chien-search /
// Forney decode path, after Phil Karn's reference implementation.
package rs

import "fmt"

// Codec is a Reed-Solomon codec over GF(2^symsize) for a fixed number of
// parity (root) symbols. Codecs are cheap to build and hold no shared
// mutable state, so a header codec and a payload-block codec can coexist.
type Codec struct {
	symSize int // bits per symbol, always 8 here
	nn      int // 2^symsize - 1, max block length
	fcr     int // first consecutive root
	prim    int // primitive element
	nroots  int // parity symbol count

	alphaTo []byte // GF log -> antilog
	indexOf []byte // GF antilog -> log
	genPoly []byte // generator polynomial, index form
}

// New builds a codec for the given primitive polynomial, first
// consecutive root, primitive element and parity-symbol count.
func New(gfPoly, fcr, prim, nroots int) (*Codec, error) {
	const symSize = 8
	nn := (1 << symSize) - 1

	if fcr < 0 || fcr >= (1<<symSize) {
		return nil, fmt.Errorf("rs: invalid fcr %d", fcr)
	}
	if prim <= 0 || prim >= (1<<symSize) {
		return nil, fmt.Errorf("rs: invalid prim %d", prim)
	}
	if nroots < 0 || nroots >= (1<<symSize) {
		return nil, fmt.Errorf("rs: invalid nroots %d", nroots)
	}

	c := &Codec{
		symSize: symSize,
		nn:      nn,
		fcr:     fcr,
		prim:    prim,
		nroots:  nroots,
		alphaTo: make([]byte, nn+1),
		indexOf: make([]byte, nn+1),
		genPoly: make([]byte, nroots+1),
	}

	c.indexOf[0] = byte(nn)
	c.alphaTo[nn] = 0

	sr := 1
	for i := 0; i < nn; i++ {
		c.indexOf[sr] = byte(i)
		c.alphaTo[i] = byte(sr)
		sr <<= 1
		if sr&(1<<symSize) != 0 {
			sr ^= gfPoly
		}
		sr &= nn
	}
	if sr != 1 {
		return nil, fmt.Errorf("rs: generator polynomial 0x%x is not primitive", gfPoly)
	}

	c.genPoly[0] = 1
	for i, root := 0, fcr*prim; i < nroots; i, root = i+1, root+prim {
		c.genPoly[i+1] = 1
		for j := i; j > 0; j-- {
			if c.genPoly[j] != 0 {
				c.genPoly[j] = c.genPoly[j-1] ^ c.alphaTo[c.modnn(int(c.indexOf[c.genPoly[j]])+root)]
			} else {
				c.genPoly[j] = c.genPoly[j-1]
			}
		}
		c.genPoly[0] = c.alphaTo[c.modnn(int(c.indexOf[c.genPoly[0]])+root)]
	}
	for i := range c.genPoly {
		c.genPoly[i] = c.indexOf[c.genPoly[i]]
	}

	return c, nil
}

// ParitySymbols returns the configured number of RS parity symbols.
func (c *Codec) ParitySymbols() int { return c.nroots }

func (c *Codec) modnn(x int) int {
	for x >= c.nn {
		x -= c.nn
		x = (x >> c.symSize) + (x & c.nn)
	}
	return x
}

// Encode computes the nroots parity symbols for data (length <= nn-nroots).
func (c *Codec) Encode(data []byte) []byte {
	parity := make([]byte, c.nroots)

	for _, d := range data {
		feedback := int(c.indexOf[int(d)^int(parity[0])])
		if feedback != c.nn {
			for j := 1; j < c.nroots; j++ {
				parity[j] ^= c.alphaTo[c.modnn(feedback+int(c.genPoly[c.nroots-j]))]
			}
		}
		copy(parity, parity[1:])
		if feedback != c.nn {
			parity[c.nroots-1] = c.alphaTo[c.modnn(feedback+int(c.genPoly[0]))]
		} else {
			parity[c.nroots-1] = 0
		}
	}

	return parity
}

// Decode corrects symbol errors in place over data||parity (total length
// <= nn) and reports the number of symbols corrected. ErrUncorrectable
// is returned (with block left unmodified) when the error pattern
// cannot be resolved, or a correction would land in the first padShift
// positions, which shortened codes reserve as zero padding.
func (c *Codec) Decode(block []byte, padShift int) (corrected int, err error) {
	n := len(block)
	if n > c.nn {
		return 0, fmt.Errorf("rs: block length %d exceeds %d", n, c.nn)
	}

	syndromes := c.syndromes(block)
	allZero := true
	for _, s := range syndromes {
		if s != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return 0, nil
	}

	lambda, errCount := c.berlekampMassey(syndromes)
	if errCount == 0 || errCount > c.nroots/2 {
		return 0, ErrUncorrectable
	}

	roots, locators, ok := c.chienSearch(lambda, errCount)
	if !ok {
		return 0, ErrUncorrectable
	}

	omega := c.errorEvaluator(syndromes, lambda, errCount)
	magnitudes := c.forney(lambda, omega, roots, errCount)

	for i := 0; i < errCount; i++ {
		pos := n - 1 - int(locators[i])
		if pos < 0 || pos >= n {
			return 0, ErrUncorrectable
		}
		if pos < padShift {
			return 0, ErrUncorrectable
		}
	}
	for i := 0; i < errCount; i++ {
		block[n-1-int(locators[i])] ^= magnitudes[i]
	}

	return errCount, nil
}

// ErrUncorrectable is returned when an RS block cannot be corrected:
// either too many symbol errors, or a corrected location fell in the
// zero-padding region.
var ErrUncorrectable = fmt.Errorf("rs: uncorrectable")
