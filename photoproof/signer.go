package photoproof

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/veraison/go-cose"
)

// DefaultKeyHandleTimeout bounds a single key-handle access. Hardware key
// access is the one external call the engine makes; past the deadline the
// caller must route to offline certification rather than hang.
const DefaultKeyHandleTimeout = 3 * time.Second

// signedPayload is the stable byte layout the attestation signature covers:
// the tile-tree root followed by the metadata digest.
func signedPayload(treeRoot, metadataDigest []byte) []byte {
	payload := make([]byte, 0, len(treeRoot)+len(metadataDigest))
	payload = append(payload, treeRoot...)
	payload = append(payload, metadataDigest...)
	return payload
}

// SignAttestation produces the hardware-rooted binding of a tile-tree root to
// a metadata digest as a COSE_Sign1 envelope. A handle that errors, blocks
// past the context deadline, or blocks past DefaultKeyHandleTimeout yields
// ErrSigningUnavailable; retry policy belongs to the caller.
func SignAttestation(ctx context.Context, treeRoot, metadataDigest []byte, handle KeyHandle) (Attestation, error) {
	if handle == nil {
		return Attestation{}, fmt.Errorf("%w: nil key handle", ErrSigningUnavailable)
	}
	if len(treeRoot) == 0 {
		return Attestation{}, errors.New("empty tree root")
	}
	if len(metadataDigest) == 0 {
		return Attestation{}, errors.New("empty metadata digest")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultKeyHandleTimeout)
		defer cancel()
	}

	raw, err := signEnvelope(ctx, signedPayload(treeRoot, metadataDigest), handle)
	if err != nil {
		return Attestation{}, err
	}

	return Attestation{
		ID:             uuid.NewString(),
		TreeRoot:       append([]byte{}, treeRoot...),
		MetadataDigest: append([]byte{}, metadataDigest...),
		Signature:      raw,
		KeyID:          handle.AttestKey(),
	}, nil
}

// signEnvelope builds and signs the COSE_Sign1 message in a goroutine so a
// hung hardware call cannot outlive the context deadline.
func signEnvelope(ctx context.Context, payload []byte, handle KeyHandle) ([]byte, error) {
	type signed struct {
		raw []byte
		err error
	}
	done := make(chan signed, 1)

	go func() {
		msg := cose.NewSign1Message()
		msg.Payload = payload
		msg.Headers.Protected.SetAlgorithm(handle.Algorithm())
		msg.Headers.Protected[cose.HeaderLabelKeyID] = []byte(handle.AttestKey())

		if err := msg.Sign(rand.Reader, nil, handleSigner{ctx: ctx, handle: handle}); err != nil {
			done <- signed{err: fmt.Errorf("%w: %v", ErrSigningUnavailable, err)}
			return
		}
		raw, err := msg.MarshalCBOR()
		if err != nil {
			done <- signed{err: fmt.Errorf("marshal attestation envelope: %w", err)}
			return
		}
		done <- signed{raw: raw}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrSigningUnavailable, ctx.Err())
	case out := <-done:
		return out.raw, out.err
	}
}
