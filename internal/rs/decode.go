package rs

// gfMul multiplies two GF(256) elements using the log/antilog tables.
func (c *Codec) gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return c.alphaTo[c.modnn(int(c.indexOf[a])+int(c.indexOf[b]))]
}

// gfMulExp multiplies a GF(256) element by alpha^exp.
func (c *Codec) gfMulExp(a byte, exp int) byte {
	if a == 0 {
		return 0
	}
	return c.alphaTo[c.modnn(int(c.indexOf[a])+exp)]
}

// gfInv returns the multiplicative inverse of a nonzero GF(256) element.
func (c *Codec) gfInv(a byte) byte {
	return c.alphaTo[c.modnn(c.nn-int(c.indexOf[a]))]
}

// gfPow returns alpha^exp.
func (c *Codec) gfPow(exp int) byte {
	return c.alphaTo[c.modnn(exp)]
}

// syndromes evaluates the received polynomial at the nroots consecutive
// roots alpha^((fcr+i)*prim), i=0..nroots-1, via Horner's rule. block[0]
// is the highest-order (first-transmitted) coefficient.
func (c *Codec) syndromes(block []byte) []byte {
	syn := make([]byte, c.nroots)
	for i := 0; i < c.nroots; i++ {
		rootExp := c.modnn((c.fcr + i) * c.prim)
		x := c.gfPow(rootExp)
		var s byte
		for _, b := range block {
			s = c.gfMul(s, x) ^ b
		}
		syn[i] = s
	}
	return syn
}

// berlekampMassey runs the Berlekamp-Massey recursion over the syndromes
// and returns the error-locator polynomial Lambda(x) (Lambda[0]=1) and its
// degree (the number of errors it claims).
func (c *Codec) berlekampMassey(syn []byte) (lambda []byte, errCount int) {
	n := c.nroots
	lambda = make([]byte, n+1)
	b := make([]byte, n+1)
	t := make([]byte, n+1)
	lambda[0] = 1
	b[0] = 1

	l := 0
	m := 1
	bb := byte(1)

	for i := 0; i < n; i++ {
		delta := syn[i]
		for j := 1; j <= l; j++ {
			delta ^= c.gfMul(lambda[j], syn[i-j])
		}

		if delta == 0 {
			m++
			continue
		}

		copy(t, lambda)
		coef := c.gfMul(delta, c.gfInv(bb))
		for j := 0; j+m <= n; j++ {
			lambda[j+m] ^= c.gfMul(coef, b[j])
		}

		if 2*l <= i {
			newL := i + 1 - l
			copy(b, t)
			l = newL
			bb = delta
			m = 1
		} else {
			m++
		}
	}

	return lambda, l
}

// chienSearch finds the roots of Lambda(x). roots holds the field
// element at each root (X_l^-1); locators holds the corresponding error
// exponent e (coefficient index, 0 = least significant). ok is false if
// fewer roots were found than errCount claims, meaning the syndrome
// pattern is uncorrectable. Roots beyond the received block's length
// are still reported; the caller rejects them as out of range.
func (c *Codec) chienSearch(lambda []byte, errCount int) (roots, locators []byte, ok bool) {
	roots = make([]byte, 0, errCount)
	locators = make([]byte, 0, errCount)

	for i := 0; i < c.nn; i++ {
		beta := c.gfPow(i)
		var acc byte = lambda[0]
		for j := 1; j <= errCount; j++ {
			acc ^= c.gfMul(lambda[j], c.gfPow(c.modnn(i*j)))
		}
		if acc != 0 {
			continue
		}

		e := c.modnn(c.nn - i)
		roots = append(roots, beta)
		locators = append(locators, byte(e))

		if len(roots) == errCount {
			break
		}
	}

	return roots, locators, len(roots) == errCount
}

// errorEvaluator computes Omega(x) = S(x)*Lambda(x) mod x^nroots.
func (c *Codec) errorEvaluator(syn, lambda []byte, errCount int) []byte {
	omega := make([]byte, c.nroots)
	for i := 0; i < c.nroots; i++ {
		var acc byte
		for j := 0; j <= errCount && j <= i; j++ {
			acc ^= c.gfMul(lambda[j], syn[i-j])
		}
		omega[i] = acc
	}
	return omega
}

// forney computes the error magnitude at each located root.
func (c *Codec) forney(lambda, omega, roots []byte, errCount int) []byte {
	magnitudes := make([]byte, errCount)

	for l := 0; l < errCount; l++ {
		xinv := roots[l] // X_l^-1

		var omegaVal byte
		for i := c.nroots - 1; i >= 0; i-- {
			omegaVal = c.gfMul(omegaVal, xinv) ^ omega[i]
		}

		var lambdaPrimeVal byte
		for i := 1; i <= errCount; i += 2 {
			var term byte = lambda[i]
			for k := 1; k < i; k++ {
				term = c.gfMul(term, xinv)
			}
			lambdaPrimeVal ^= term
		}

		if lambdaPrimeVal == 0 {
			magnitudes[l] = 0
			continue
		}

		// Scale by X_l^(1-fcr): the root index gives X_l^-1, so the
		// exponent is root*(fcr-1), kept non-negative for the table.
		xinvIdx := int(c.indexOf[xinv])
		exp := (xinvIdx * (c.fcr - 1)) % c.nn
		if exp < 0 {
			exp += c.nn
		}
		scale := c.gfPow(exp)

		magnitudes[l] = c.gfMul(c.gfMul(omegaVal, scale), c.gfInv(lambdaPrimeVal))
	}

	return magnitudes
}
