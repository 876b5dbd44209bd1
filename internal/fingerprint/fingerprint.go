// Package fingerprint computes the deterministic equality key used to detect
// re-copied clipboard content.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"go.klb.dev/keepsake/internal/classify"
)

// Fingerprint is an opaque equality key over classified content. Equal
// fingerprints mean the same logical item, regardless of when it was copied.
type Fingerprint string

// Of computes the fingerprint of c. Pure, no I/O. Text and links hash their
// exact bytes; images hash their encoded bytes (exact duplicates only, no
// perceptual matching); file lists hash each path in clipboard order,
// length-prefixed so the list structure is unambiguous.
func Of(c classify.Content) Fingerprint {
	h := sha256.New()
	h.Write([]byte(c.Kind))
	h.Write([]byte{0})

	switch c.Kind {
	case classify.KindText, classify.KindLink:
		h.Write([]byte(c.Text))
	case classify.KindImage:
		h.Write(c.Image)
	case classify.KindFiles, classify.KindAudio:
		var n [8]byte
		for _, p := range c.Paths {
			binary.BigEndian.PutUint64(n[:], uint64(len(p)))
			h.Write(n[:])
			h.Write([]byte(p))
		}
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
