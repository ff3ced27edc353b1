package keystore

// iv.go implements the IV derivation helper: a pure function with no
// dependence on keystore state, externally reproducible given the same
// client ID and stream name.
//
// © 2025 e2ee-keystore authors. MIT License.

import "github.com/Voskan/e2ee-keystore/internal/kdf"

// GenerateIV fills out with an HKDF-SHA512-derived initialisation vector
// keyed by clientID (as IKM) and streamName (as salt), with an empty info
// string. out is zero-filled first; its length determines the IV size.
func GenerateIV(clientID, streamName string, out []byte) error {
	if clientID == "" || streamName == "" || len(out) == 0 {
		return wrapErr("generate_iv", ErrInvalid)
	}
	for i := range out {
		out[i] = 0
	}
	if err := kdf.IV(out, []byte(clientID), []byte(streamName)); err != nil {
		return wrapErr("generate_iv", err)
	}
	return nil
}
