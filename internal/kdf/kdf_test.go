package kdf

import (
	"bytes"
	"testing"
)

func TestDeriveIsDeterministic(t *testing.T) {
	var a, b [32]byte
	ikm := []byte("input key material")
	salt := []byte("a salt value")

	if err := Derive(a[:], ikm, salt, []byte(InfoSessionKey)); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if err := Derive(b[:], ikm, salt, []byte(InfoSessionKey)); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if a != b {
		t.Fatal("Derive is not deterministic for identical inputs")
	}
}

func TestDeriveDiffersByInfo(t *testing.T) {
	var session, media [32]byte
	ikm := []byte("input key material")
	salt := []byte("salt")

	if err := NextSessionKey(&session, ikm, salt); err != nil {
		t.Fatalf("NextSessionKey: %v", err)
	}
	if err := MediaKey(&media, ikm, salt); err != nil {
		t.Fatalf("MediaKey: %v", err)
	}
	if session == media {
		t.Fatal("session and media key derivation collided despite different info strings")
	}
}

func TestDeriveDiffersBySalt(t *testing.T) {
	var a, b [32]byte
	ikm := []byte("input key material")

	if err := NextSessionKey(&a, ikm, []byte("salt-one")); err != nil {
		t.Fatalf("NextSessionKey: %v", err)
	}
	if err := NextSessionKey(&b, ikm, []byte("salt-two")); err != nil {
		t.Fatalf("NextSessionKey: %v", err)
	}
	if a == b {
		t.Fatal("session key derivation did not depend on the salt")
	}
}

func TestFreshSessionKeyIsSaltedHash(t *testing.T) {
	var a, b [32]byte
	raw := bytes.Repeat([]byte{0x42}, 16)

	if err := FreshSessionKey(&a, raw, []byte("salt-a")); err != nil {
		t.Fatalf("FreshSessionKey: %v", err)
	}
	if err := FreshSessionKey(&b, raw, []byte("salt-b")); err != nil {
		t.Fatalf("FreshSessionKey: %v", err)
	}
	if a == b {
		t.Fatal("FreshSessionKey ignored the salt")
	}
}

func TestIVLengthMatchesOutputBuffer(t *testing.T) {
	for _, n := range []int{12, 16, 24} {
		out := make([]byte, n)
		if err := IV(out, []byte("client-a"), []byte("stream-1")); err != nil {
			t.Fatalf("IV(len=%d): %v", n, err)
		}
	}
}

func TestIVIsReproducibleFromSameInputs(t *testing.T) {
	a := make([]byte, 16)
	b := make([]byte, 16)
	if err := IV(a, []byte("client-a"), []byte("stream-1")); err != nil {
		t.Fatalf("IV: %v", err)
	}
	if err := IV(b, []byte("client-a"), []byte("stream-1")); err != nil {
		t.Fatalf("IV: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("IV is not reproducible for identical clientID/streamName")
	}
}

func TestIVDiffersByStreamName(t *testing.T) {
	a := make([]byte, 16)
	b := make([]byte, 16)
	if err := IV(a, []byte("client-a"), []byte("stream-1")); err != nil {
		t.Fatalf("IV: %v", err)
	}
	if err := IV(b, []byte("client-a"), []byte("stream-2")); err != nil {
		t.Fatalf("IV: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("IV did not depend on the stream name")
	}
}
