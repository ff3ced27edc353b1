// Package kdf wraps the single HKDF/SHA-512 construction the keystore uses
// for every key-derivation step: session-key ratcheting, media-key
// derivation, hashing externally supplied key material, and per-stream IV
// generation.
package kdf

import (
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Fixed HKDF info strings, byte-for-byte what the signalling layer's C
// keystore uses (SKEY_INFO, MKEY_INFO, CS_INFO).
const (
	InfoSessionKey = "session_key"
	InfoMediaKey   = "media_key"
	InfoFreshKey   = "cs"
)

// SessionKeySize is the fixed width of session and media keys.
const SessionKeySize = 32

// Derive runs HKDF-SHA512 with the given ikm/salt/info and fills out
// completely. The output length is whatever len(out) is, so it doubles as
// the IV derivation primitive (variable length, empty info).
func Derive(out, ikm, salt, info []byte) error {
	r := hkdf.New(sha512.New, ikm, salt, info)
	if _, err := io.ReadFull(r, out); err != nil {
		return fmt.Errorf("kdf: derive: %w", err)
	}
	return nil
}

// NextSessionKey derives the next session key in the ratchet from the
// previous one, keyed by the keystore's salt.
func NextSessionKey(out *[SessionKeySize]byte, prevSessionKey, salt []byte) error {
	return Derive(out[:], prevSessionKey, salt, []byte(InfoSessionKey))
}

// MediaKey derives the media key used by the external AEAD from a session
// key, keyed by the keystore's salt.
func MediaKey(out *[SessionKeySize]byte, sessionKey, salt []byte) error {
	return Derive(out[:], sessionKey, salt, []byte(InfoMediaKey))
}

// FreshSessionKey hashes externally supplied raw key material plus a
// caller-provided salt into a session key, used by SetFreshSessionKey.
func FreshSessionKey(out *[SessionKeySize]byte, raw, freshSalt []byte) error {
	return Derive(out[:], raw, freshSalt, []byte(InfoFreshKey))
}

// IV derives a per-stream initialisation vector. It has no info string and
// no dependence on keystore state beyond the hash algorithm, so it is
// reproducible by any party given the same clientID and streamName.
func IV(out []byte, clientID, streamName []byte) error {
	return Derive(out, clientID, streamName, nil)
}
