package photoproof

import (
	"context"
	"fmt"
)

// CaptureResult is the capture-side handoff: the frozen bytes and the
// attestation over them, ready for opaque transmission.
type CaptureResult struct {
	Frozen         *FrozenImage
	Tree           *TileHashTree
	MetadataDigest []byte
	Attestation    Attestation
}

// Capture runs the capture pipeline strictly in order: freeze the raw bytes,
// build the tile tree, digest the metadata, sign the binding. Each stage's
// output is the next stage's sole input; there is no internal parallelism
// across stages.
func Capture(ctx context.Context, raw []byte, bundle MetadataBundle, handle KeyHandle, tileSize int) (*CaptureResult, error) {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}

	frozen, err := Freeze(raw)
	if err != nil {
		return nil, err
	}

	tree, err := BuildTileTree(frozen, tileSize)
	if err != nil {
		return nil, fmt.Errorf("build tile tree: %w", err)
	}

	digest, err := DigestMetadata(bundle)
	if err != nil {
		return nil, err
	}

	att, err := SignAttestation(ctx, tree.root, digest, handle)
	if err != nil {
		return nil, err
	}

	return &CaptureResult{
		Frozen:         frozen,
		Tree:           tree,
		MetadataDigest: digest,
		Attestation:    att,
	}, nil
}
