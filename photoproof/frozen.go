package photoproof

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrEncoding reports input bytes that cannot be fixed into a stable byte
// form. It is terminal: the caller gets no FrozenImage and must not retry
// with the same bytes.
var ErrEncoding = errors.New("unusable image encoding")

// FrozenImage fixes the exact byte representation of a captured image. No
// component between freezing and verification may transform the bytes; the
// buffer is private and every accessor returns a copy, so re-encoding between
// signing and verification is impossible by construction.
type FrozenImage struct {
	data []byte
}

// Freeze copies raw capture bytes into an immutable buffer. It rejects byte
// streams that are not a recognized already-compressed container, since any
// later re-encode of such input would silently break hash equality.
func Freeze(raw []byte) (*FrozenImage, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrEncoding)
	}
	if !stableContainer(raw) {
		return nil, fmt.Errorf("%w: unrecognized container", ErrEncoding)
	}
	data := make([]byte, len(raw))
	copy(data, raw)
	return &FrozenImage{data: data}, nil
}

// Len returns the declared length of the frozen byte sequence.
func (f *FrozenImage) Len() int { return len(f.data) }

// Bytes returns a copy of the frozen byte sequence.
func (f *FrozenImage) Bytes() []byte {
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}

// SHA256 returns the digest of the full frozen byte sequence.
func (f *FrozenImage) SHA256() [32]byte { return sha256.Sum256(f.data) }

var (
	jpegMagic = []byte{0xff, 0xd8, 0xff}
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
	ftypMagic = []byte("ftyp")
)

// stableContainer sniffs for containers whose bytes survive storage and
// transmission unchanged: JPEG, PNG, WebP, and the ISO-BMFF family
// (HEIC/HEIF/AVIF).
func stableContainer(raw []byte) bool {
	switch {
	case bytes.HasPrefix(raw, jpegMagic):
		return true
	case bytes.HasPrefix(raw, pngMagic):
		return true
	case bytes.HasPrefix(raw, riffMagic) && len(raw) >= 12 && bytes.Equal(raw[8:12], webpMagic):
		return true
	case len(raw) >= 12 && bytes.Equal(raw[4:8], ftypMagic):
		return true
	}
	return false
}
