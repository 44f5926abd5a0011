package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"golang.org/x/crypto/curve25519"
)

// RFC 7748 section 5.2, first test vector.
func TestX25519RFC7748Vector(t *testing.T) {
	var scalar, point [X25519ScalarSize]byte
	copy(scalar[:], mustHex(t, "a546e36bf0527c9d3b16154b82465edd62144c0ac1fc5a18506a2244ba449ac4"))
	copy(point[:], mustHex(t, "e6db6867583030db3594c1a424b15f7c726624ec26b3353b10a903a6d0ab1c4c"))
	want := mustHex(t, "c3da55379de9c6908e94ea4df28d084f32eccf03491c71f754b4075577a28552")

	got, err := X25519(&scalar, &point)
	if err != nil {
		t.Fatalf("X25519: %v", err)
	}
	if !bytes.Equal(got[:], want) {
		t.Fatalf("X25519 = %x, want %x", got, want)
	}
}

func TestX25519MatchesReference(t *testing.T) {
	for i := 0; i < 32; i++ {
		var scalar, point [X25519ScalarSize]byte
		if _, err := rand.Read(scalar[:]); err != nil {
			t.Fatalf("rand: %v", err)
		}
		if _, err := rand.Read(point[:]); err != nil {
			t.Fatalf("rand: %v", err)
		}

		got, err := X25519(&scalar, &point)
		if err != nil {
			continue // low-order input, reference also errors
		}
		want, err := curve25519.X25519(scalar[:], point[:])
		if err != nil {
			t.Fatalf("reference X25519: %v", err)
		}
		if !bytes.Equal(got[:], want) {
			t.Fatalf("iteration %d: ladder output %x, reference %x", i, got, want)
		}
	}
}

// Scalar multiplication commutes through the ladder:
// X25519(a, X25519(b, G)) == X25519(b, X25519(a, G)).
func TestX25519Commutes(t *testing.T) {
	for i := 0; i < 8; i++ {
		var a, b [X25519ScalarSize]byte
		if _, err := rand.Read(a[:]); err != nil {
			t.Fatalf("rand: %v", err)
		}
		if _, err := rand.Read(b[:]); err != nil {
			t.Fatalf("rand: %v", err)
		}

		aG, err := X25519Base(&a)
		if err != nil {
			t.Fatalf("X25519Base(a): %v", err)
		}
		bG, err := X25519Base(&b)
		if err != nil {
			t.Fatalf("X25519Base(b): %v", err)
		}

		abG, err := X25519(&a, &bG)
		if err != nil {
			t.Fatalf("X25519(a, bG): %v", err)
		}
		baG, err := X25519(&b, &aG)
		if err != nil {
			t.Fatalf("X25519(b, aG): %v", err)
		}
		if abG != baG {
			t.Fatalf("iteration %d: a*(b*G) = %x, b*(a*G) = %x", i, abG, baG)
		}
	}
}

func TestX25519RejectsLowOrderPoint(t *testing.T) {
	var scalar, zero [X25519ScalarSize]byte
	if _, err := rand.Read(scalar[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if _, err := X25519(&scalar, &zero); err == nil {
		t.Error("zero point accepted")
	}
}
