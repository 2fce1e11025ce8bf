package photoproof

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestCapturePipeline(t *testing.T) {
	handle, err := NewSoftwareKeyHandle(testSecret, "device-1")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	raw := pngImage(4096)
	bundle := fullBundle(testCaptureMillis)

	capture, err := Capture(context.Background(), raw, bundle, handle, 0)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	if capture.Tree.TileSize() != DefaultTileSize {
		t.Errorf("tile size = %d, want default %d", capture.Tree.TileSize(), DefaultTileSize)
	}
	if !bytes.Equal(capture.Attestation.TreeRoot, capture.Tree.Root()) {
		t.Error("attestation root does not match the built tree")
	}

	digest, err := DigestMetadata(bundle)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if !bytes.Equal(capture.Attestation.MetadataDigest, digest) {
		t.Error("attestation digest does not match the bundle")
	}

	// The frozen bytes the attestation binds must recompute to the same root.
	recomputed, err := BuildTileTreeBytes(capture.Frozen.Bytes(), DefaultTileSize)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !bytes.Equal(recomputed.Root(), capture.Attestation.TreeRoot) {
		t.Error("frozen bytes do not recompute to the attested root")
	}
}

func TestCaptureSurfacesStageErrors(t *testing.T) {
	handle, err := NewSoftwareKeyHandle(testSecret, "device-1")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if _, err := Capture(context.Background(), []byte("junk"), MetadataBundle{}, handle, 0); !errors.Is(err, ErrEncoding) {
		t.Errorf("bad encoding err = %v, want ErrEncoding", err)
	}

	bad := MetadataBundle{Geo: &GeoCoordinate{Latitude: 91}}
	if _, err := Capture(context.Background(), pngImage(64), bad, handle, 0); !errors.Is(err, ErrMalformedField) {
		t.Errorf("malformed bundle err = %v, want ErrMalformedField", err)
	}

	if _, err := Capture(context.Background(), pngImage(64), MetadataBundle{}, brokenHandle{}, 0); !errors.Is(err, ErrSigningUnavailable) {
		t.Errorf("broken handle err = %v, want ErrSigningUnavailable", err)
	}
}
