package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestSHA256EmptyString(t *testing.T) {
	got := hex.EncodeToString(SHA256([]byte{}))
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("SHA256(empty) = %s, want %s", got, want)
	}
}

func TestSHA256Abc(t *testing.T) {
	got := hex.EncodeToString(SHA256([]byte("abc")))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("SHA256(abc) = %s, want %s", got, want)
	}
}

func TestSHA512EmptyString(t *testing.T) {
	got := hex.EncodeToString(SHA512([]byte{}))
	want := "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce" +
		"47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e"
	if got != want {
		t.Errorf("SHA512(empty) = %s, want %s", got, want)
	}
}

func TestSHA512Abc(t *testing.T) {
	got := hex.EncodeToString(SHA512([]byte("abc")))
	want := "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a" +
		"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"
	if got != want {
		t.Errorf("SHA512(abc) = %s, want %s", got, want)
	}
}

func TestSHA256MultipleInputs(t *testing.T) {
	// SHA256("hello", "world") should equal SHA256("helloworld").
	combined := SHA256([]byte("helloworld"))
	separate := SHA256([]byte("hello"), []byte("world"))
	if !bytes.Equal(combined, separate) {
		t.Errorf("SHA256 multi-input mismatch: %x != %x", combined, separate)
	}
}

func TestStreamingMatchesOneShot(t *testing.T) {
	msg := bytes.Repeat([]byte("avb"), 1000)

	var c SHA256Ctx
	c.Init()
	for i := 0; i < len(msg); i += 7 {
		end := i + 7
		if end > len(msg) {
			end = len(msg)
		}
		c.Update(msg[i:end])
	}
	if !bytes.Equal(c.Final(), SHA256(msg)) {
		t.Error("streaming SHA-256 disagrees with one-shot")
	}

	var c5 SHA512Ctx
	c5.Init()
	c5.Update(msg)
	if !bytes.Equal(c5.Final(), SHA512(msg)) {
		t.Error("streaming SHA-512 disagrees with one-shot")
	}
}

func TestContextReinit(t *testing.T) {
	var c SHA256Ctx
	c.Init()
	c.Update([]byte("first"))
	first := make([]byte, SHA256DigestSize)
	copy(first, c.Final())

	c.Init()
	c.Update([]byte("first"))
	if !bytes.Equal(first, c.Final()) {
		t.Error("re-initialized context produced a different digest")
	}
}

func TestNewHasher(t *testing.T) {
	h, err := NewHasher("sha256")
	if err != nil {
		t.Fatalf("NewHasher(sha256): %v", err)
	}
	if h.DigestSize() != SHA256DigestSize {
		t.Errorf("sha256 digest size = %d, want %d", h.DigestSize(), SHA256DigestSize)
	}

	h, err = NewHasher("sha512")
	if err != nil {
		t.Fatalf("NewHasher(sha512): %v", err)
	}
	if h.DigestSize() != SHA512DigestSize {
		t.Errorf("sha512 digest size = %d, want %d", h.DigestSize(), SHA512DigestSize)
	}

	if _, err := NewHasher("md5"); err == nil {
		t.Error("NewHasher(md5) should fail")
	}
}
