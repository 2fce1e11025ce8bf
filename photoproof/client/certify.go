package client

import (
	"context"
	"errors"
	"time"

	"github.com/mhlotto/go-photoproof/photoproof"
)

// DefaultSubmitTimeout bounds the single reachability decision per
// certification attempt.
const DefaultSubmitTimeout = 10 * time.Second

// Certifier drives one certification attempt end to end: capture, then either
// online submission or offline fallback. The two paths are mutually
// exclusive; the online/offline decision is made once per attempt and the
// paths are never raced.
type Certifier struct {
	Client *Client
	Engine *photoproof.Engine

	// Handle is the device attestation key, hardware-rooted where available.
	Handle photoproof.KeyHandle
	// LocalHandle signs offline certifications; it may equal Handle on
	// platforms where the hardware store doubles as the local key.
	LocalHandle photoproof.KeyHandle

	TileSize      int
	SubmitTimeout time.Duration
}

// Certify freezes and signs a capture, then certifies it. If the hardware
// key is unusable or the verification service unreachable, the offline
// certifier takes over; the user-facing action always terminates with a
// result. The error return covers only unusable input (bad encoding,
// malformed metadata), never a fraud verdict or an unreachable service.
func (c *Certifier) Certify(ctx context.Context, raw []byte, bundle photoproof.MetadataBundle) (photoproof.VerificationResult, error) {
	tileSize := c.TileSize
	if tileSize <= 0 {
		tileSize = photoproof.DefaultTileSize
	}

	frozen, err := photoproof.Freeze(raw)
	if err != nil {
		return photoproof.VerificationResult{}, err
	}
	tree, err := photoproof.BuildTileTree(frozen, tileSize)
	if err != nil {
		return photoproof.VerificationResult{}, err
	}
	digest, err := photoproof.DigestMetadata(bundle)
	if err != nil {
		return photoproof.VerificationResult{}, err
	}

	att, err := photoproof.SignAttestation(ctx, tree.Root(), digest, c.Handle)
	if err != nil {
		if errors.Is(err, photoproof.ErrSigningUnavailable) {
			return c.certifyOffline(ctx, frozen, bundle), nil
		}
		return photoproof.VerificationResult{}, err
	}

	if c.Client == nil || c.Client.BaseURL == "" {
		return c.certifyOffline(ctx, frozen, bundle), nil
	}

	timeout := c.SubmitTimeout
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	submitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.Client.Submit(submitCtx, photoproof.Submission{
		Image:       frozen.Bytes(),
		Attestation: att,
		Metadata:    bundle,
	})
	if err != nil {
		return c.certifyOffline(ctx, frozen, bundle), nil
	}
	return result, nil
}

func (c *Certifier) certifyOffline(ctx context.Context, frozen *photoproof.FrozenImage, bundle photoproof.MetadataBundle) photoproof.VerificationResult {
	handle := c.LocalHandle
	if handle == nil {
		handle = c.Handle
	}
	return c.Engine.CertifyOffline(ctx, frozen.Bytes(), bundle, handle)
}
