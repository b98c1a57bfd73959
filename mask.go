package websocket

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

// MaskingKey is the 4-byte XOR key RFC 6455 requires on every client-to-server
// frame. The spec calls for an unpredictable key; this module always draws
// one from the platform CSPRNG rather than math/rand, matching the
// "cryptographically adequate RNG" guidance in spec.md §9.
type MaskingKey [4]byte

// NewMaskingKey draws a fresh masking key from crypto/rand.
func NewMaskingKey() (MaskingKey, error) {
	var k MaskingKey
	if _, err := rand.Read(k[:]); err != nil {
		return k, errors.Wrap(err, "generating masking key")
	}
	return k, nil
}

// XOR applies the mask to buf in place, cycling the 4 key bytes. Calling it
// twice with the same key is its own inverse (unmask(mask(p, k), k) == p).
func (k MaskingKey) XOR(buf []byte) {
	for i := range buf {
		buf[i] ^= k[i%4]
	}
}

// fillPingNonce draws 16 bytes of per-connection pseudo-random data for a
// ping payload. Written into dst so the buffer's backing array never grows across
// repeated pings (a verified invariant, per spec.md §8).
func fillPingNonce(dst []byte) error {
	if len(dst) != 16 {
		return errors.Errorf("ping nonce buffer must be 16 bytes, got %d", len(dst))
	}
	_, err := rand.Read(dst)
	return errors.Wrap(err, "generating ping nonce")
}
