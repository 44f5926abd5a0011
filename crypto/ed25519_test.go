package crypto

import (
	"bytes"
	stded25519 "crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// RFC 8032 test vector 1 (empty message).
func TestEd25519RFC8032Vector1(t *testing.T) {
	seed := mustHex(t, "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60")
	wantPub := mustHex(t, "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a")
	wantSig := mustHex(t,
		"e5564300c360ac729086e2cc806e828a84877f1eb8e5d974d873e06522490155"+
			"5fb8821590a33bacc61e39701cf9b46bd25bf5f0595bbe24655141438e7a100b")

	pub, err := Ed25519Public(seed)
	if err != nil {
		t.Fatalf("Ed25519Public: %v", err)
	}
	if !bytes.Equal(pub, wantPub) {
		t.Fatalf("public key = %x, want %x", pub, wantPub)
	}

	sig, err := Ed25519Sign(seed, nil)
	if err != nil {
		t.Fatalf("Ed25519Sign: %v", err)
	}
	if !bytes.Equal(sig, wantSig) {
		t.Fatalf("signature = %x, want %x", sig, wantSig)
	}

	if !Ed25519Verify(pub, nil, sig) {
		t.Fatal("vector signature rejected")
	}
}

// RFC 8032 test vector 2 (one-byte message 0x72).
func TestEd25519RFC8032Vector2(t *testing.T) {
	seed := mustHex(t, "4ccd089b28ff96da9db6c346ec114e0f5b8a319f35aba624da8cf6ed4fb8a6fb")
	wantPub := mustHex(t, "3d4017c3e843895a92b70aa74d1b7ebc9c982ccf2ec4968cc0cd55f12af4660c")
	wantSig := mustHex(t,
		"92a009a9f0d4cab8720e820b5f642540a2b27b5416503f8fb3762223ebdb69da"+
			"085ac1e43e15996e458f3613d0f11d8c387b2eaeb4302aeeb00d291612bb0c00")
	msg := []byte{0x72}

	pub, err := Ed25519Public(seed)
	if err != nil {
		t.Fatalf("Ed25519Public: %v", err)
	}
	if !bytes.Equal(pub, wantPub) {
		t.Fatalf("public key = %x, want %x", pub, wantPub)
	}

	sig, err := Ed25519Sign(seed, msg)
	if err != nil {
		t.Fatalf("Ed25519Sign: %v", err)
	}
	if !bytes.Equal(sig, wantSig) {
		t.Fatalf("signature = %x, want %x", sig, wantSig)
	}

	if !Ed25519Verify(pub, msg, sig) {
		t.Fatal("vector signature rejected")
	}
}

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		seed := make([]byte, Ed25519SeedSize)
		if _, err := rand.Read(seed); err != nil {
			t.Fatalf("rand: %v", err)
		}
		msg := make([]byte, 1+i*13)
		if _, err := rand.Read(msg); err != nil {
			t.Fatalf("rand: %v", err)
		}

		pub, err := Ed25519Public(seed)
		if err != nil {
			t.Fatalf("Ed25519Public: %v", err)
		}
		sig, err := Ed25519Sign(seed, msg)
		if err != nil {
			t.Fatalf("Ed25519Sign: %v", err)
		}
		if !Ed25519Verify(pub, msg, sig) {
			t.Fatalf("iteration %d: round-trip verification failed", i)
		}

		// Cross-check against the standard library implementation.
		stdPriv := stded25519.NewKeyFromSeed(seed)
		stdSig := stded25519.Sign(stdPriv, msg)
		if !bytes.Equal(sig, stdSig) {
			t.Fatalf("iteration %d: signature differs from crypto/ed25519", i)
		}
		if !bytes.Equal(pub, stdPriv.Public().(stded25519.PublicKey)) {
			t.Fatalf("iteration %d: public key differs from crypto/ed25519", i)
		}
	}
}

func TestEd25519BitFlipFalsifies(t *testing.T) {
	seed := make([]byte, Ed25519SeedSize)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("rand: %v", err)
	}
	msg := []byte("the quick brown fox")
	pub, _ := Ed25519Public(seed)
	sig, _ := Ed25519Sign(seed, msg)

	// Flip every 37th bit of the signature in turn.
	for i := 0; i < Ed25519SignatureSize*8; i += 37 {
		bad := make([]byte, len(sig))
		copy(bad, sig)
		bad[i/8] ^= 1 << (uint(i) % 8)
		if Ed25519Verify(pub, msg, bad) {
			t.Fatalf("signature with bit %d flipped accepted", i)
		}
	}

	// Flip every 11th bit of the message in turn.
	for i := 0; i < len(msg)*8; i += 11 {
		bad := make([]byte, len(msg))
		copy(bad, msg)
		bad[i/8] ^= 1 << (uint(i) % 8)
		if Ed25519Verify(pub, bad, sig) {
			t.Fatalf("message with bit %d flipped accepted", i)
		}
	}
}

func TestEd25519RejectsBadInputs(t *testing.T) {
	if _, err := Ed25519Public(make([]byte, 31)); err == nil {
		t.Error("short seed accepted")
	}
	if _, err := Ed25519Sign(make([]byte, 33), nil); err == nil {
		t.Error("long seed accepted")
	}
	if Ed25519Verify(make([]byte, 31), nil, make([]byte, 64)) {
		t.Error("short public key accepted")
	}
	if Ed25519Verify(make([]byte, 32), nil, make([]byte, 63)) {
		t.Error("short signature accepted")
	}

	// A signature whose s is not reduced mod l must be rejected.
	seed := make([]byte, Ed25519SeedSize)
	pub, _ := Ed25519Public(seed)
	sig, _ := Ed25519Sign(seed, nil)
	bad := make([]byte, len(sig))
	copy(bad, sig)
	for i := 32; i < 64; i++ {
		bad[i] = 0xff
	}
	if Ed25519Verify(pub, nil, bad) {
		t.Error("non-canonical s accepted")
	}
}
