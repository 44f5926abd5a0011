package crypto

import (
	"errors"

	"filippo.io/edwards25519/field"
)

// X25519 scalar multiplication over Curve25519 (RFC 7748) via a 255-bit
// Montgomery ladder. The ladder state is kept in projective (X:Z) pairs;
// the per-bit conditional swaps go through field.Element.Swap, which is
// constant-time, so the access pattern is independent of the scalar.

// X25519ScalarSize is the size of scalars and u-coordinates in bytes.
const X25519ScalarSize = 32

// X25519Basepoint is the canonical generator u = 9.
var X25519Basepoint = [X25519ScalarSize]byte{9}

// ErrX25519LowOrder is returned when the resulting point is the neutral
// element, which happens for low-order inputs.
var ErrX25519LowOrder = errors.New("crypto: x25519 low-order point")

// a24 = (486662 - 2) / 4 from the curve equation, used in the ladder step.
const x25519A24 = 121665

// X25519 computes scalar * point and returns the resulting u-coordinate.
func X25519(scalar, point *[X25519ScalarSize]byte) ([X25519ScalarSize]byte, error) {
	var out [X25519ScalarSize]byte

	// Clamp per RFC 7748: clear the 3 low bits, clear bit 255, set bit 254.
	var e [X25519ScalarSize]byte
	copy(e[:], scalar[:])
	e[0] &= 248
	e[31] &= 127
	e[31] |= 64

	// field.Element.SetBytes ignores the top bit of the u-coordinate, as
	// RFC 7748 requires.
	var x1 field.Element
	if _, err := x1.SetBytes(point[:]); err != nil {
		return out, err
	}

	var x2, z2, x3, z3 field.Element
	x2.One()
	z2.Zero()
	x3.Set(&x1)
	z3.One()

	swap := 0
	for t := 254; t >= 0; t-- {
		bit := int(e[t>>3]>>(uint(t)&7)) & 1
		swap ^= bit
		x2.Swap(&x3, swap)
		z2.Swap(&z3, swap)
		swap = bit

		var a, aa, b, bb, c, d, da, cb, tmp field.Element
		a.Add(&x2, &z2)
		aa.Square(&a)
		b.Subtract(&x2, &z2)
		bb.Square(&b)
		var ee field.Element
		ee.Subtract(&aa, &bb)
		c.Add(&x3, &z3)
		d.Subtract(&x3, &z3)
		da.Multiply(&d, &a)
		cb.Multiply(&c, &b)

		tmp.Add(&da, &cb)
		x3.Square(&tmp)
		tmp.Subtract(&da, &cb)
		tmp.Square(&tmp)
		z3.Multiply(&x1, &tmp)

		x2.Multiply(&aa, &bb)
		tmp.Mult32(&ee, x25519A24)
		tmp.Add(&aa, &tmp)
		z2.Multiply(&ee, &tmp)
	}
	x2.Swap(&x3, swap)
	z2.Swap(&z3, swap)

	z2.Invert(&z2)
	x2.Multiply(&x2, &z2)
	copy(out[:], x2.Bytes())

	if isZero32(out) {
		return out, ErrX25519LowOrder
	}
	return out, nil
}

// X25519Base computes scalar * basepoint.
func X25519Base(scalar *[X25519ScalarSize]byte) ([X25519ScalarSize]byte, error) {
	return X25519(scalar, &X25519Basepoint)
}

// isZero32 reports whether all bytes are zero. The output of X25519 is
// public, so this need not be constant-time.
func isZero32(b [X25519ScalarSize]byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
