package photoproof

import (
	"bytes"
	"context"
)

// CertifyOffline is the reduced-trust local certification path, used when no
// verifier service is reachable. It runs the same integrity and
// metadata-plausibility checks as Verify but cannot cross-check the signature
// against a remote authority; it self-signs with the local key handle and
// sanity-checks its own signature instead. It always terminates with a
// result: a user-facing certification action must never block or error out.
func (e *Engine) CertifyOffline(ctx context.Context, imageBytes []byte, bundle MetadataBundle, local KeyHandle) VerificationResult {
	checks := make(map[string]bool, 7)

	tree, treeErr := BuildTileTreeBytes(imageBytes, e.cfg.TileSize)
	integrity := treeErr == nil

	digest, digestErr := DigestMetadata(bundle)
	binding := digestErr == nil
	checks[CheckMetadataBinding] = binding

	var att Attestation
	if treeErr == nil && digestErr == nil && local != nil {
		signed, err := SignAttestation(ctx, tree.root, digest, local)
		if err == nil {
			att = signed
			checks[CheckSignature] = e.selfVerify(signed, local)
			// The attestation was just built from this tree; the root
			// comparison ties the integrity factor to the attested value the
			// same way Verify does.
			integrity = integrity && bytes.Equal(tree.root, att.TreeRoot)
		}
	}
	checks[CheckIntegrity] = integrity

	e.scoreMetadata(checks, binding, bundle)

	return e.result(ModeOffline, att, checks)
}

// selfVerify round-trips the freshly produced attestation against the local
// handle's own public key. Handles that cannot expose a public key still pass
// on the strength of a successful signing call.
func (e *Engine) selfVerify(att Attestation, local KeyHandle) bool {
	keyer, ok := local.(PublicKeyer)
	if !ok {
		return true
	}
	engine := Engine{
		cfg:      e.cfg,
		resolver: StaticKeyResolver{local.AttestKey(): keyer.PublicKey()},
	}
	return engine.verifySignature(att)
}
