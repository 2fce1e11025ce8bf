package photoproof

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/veraison/go-cose"
	"golang.org/x/crypto/hkdf"
)

// ErrSigningUnavailable reports that the attestation key cannot be used, for
// example because a hardware attestation store is absent or unresponsive.
// Callers must treat it as terminal for online certification and fall back to
// offline certification; there are no retries inside this package.
var ErrSigningUnavailable = errors.New("signing key unavailable")

// KeyHandle is the opaque capability for hardware-protected key material.
// Implementations live per target platform; private key material never
// crosses this interface.
type KeyHandle interface {
	// Sign signs data with the protected key, honoring ctx cancellation.
	Sign(ctx context.Context, data []byte) ([]byte, error)
	// AttestKey returns the public key identifier bound to this handle.
	AttestKey() string
	// Algorithm names the COSE signature algorithm the handle produces.
	Algorithm() cose.Algorithm
}

// PublicKeyer is implemented by handles that can expose their public key for
// local self-verification.
type PublicKeyer interface {
	PublicKey() crypto.PublicKey
}

// SoftwareKeyHandle is the fallback KeyHandle for platforms without a
// hardware attestation store. The ed25519 seed is derived from a device
// secret with HKDF-SHA256, keyed by the key identifier, so one secret can
// back multiple named keys.
type SoftwareKeyHandle struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewSoftwareKeyHandle derives a signing key from deviceSecret and keyID.
func NewSoftwareKeyHandle(deviceSecret []byte, keyID string) (*SoftwareKeyHandle, error) {
	if len(deviceSecret) == 0 {
		return nil, fmt.Errorf("%w: empty device secret", ErrSigningUnavailable)
	}
	if keyID == "" {
		return nil, fmt.Errorf("%w: empty key id", ErrSigningUnavailable)
	}
	reader := hkdf.New(sha256.New, deviceSecret, []byte(keyID), []byte("photoproof attest key v1"))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("%w: derive seed: %v", ErrSigningUnavailable, err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &SoftwareKeyHandle{
		priv:  priv,
		pub:   priv.Public().(ed25519.PublicKey),
		keyID: keyID,
	}, nil
}

func (h *SoftwareKeyHandle) Sign(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	return ed25519.Sign(h.priv, data), nil
}

func (h *SoftwareKeyHandle) AttestKey() string { return h.keyID }

func (h *SoftwareKeyHandle) Algorithm() cose.Algorithm { return cose.AlgorithmEdDSA }

// PublicKey returns the handle's ed25519 public key.
func (h *SoftwareKeyHandle) PublicKey() crypto.PublicKey {
	return append(ed25519.PublicKey{}, h.pub...)
}

// handleSigner adapts a KeyHandle to the go-cose Signer interface so the
// COSE envelope machinery never touches key material directly.
type handleSigner struct {
	ctx    context.Context
	handle KeyHandle
}

func (s handleSigner) Algorithm() cose.Algorithm { return s.handle.Algorithm() }

func (s handleSigner) Sign(_ io.Reader, content []byte) ([]byte, error) {
	return s.handle.Sign(s.ctx, content)
}
