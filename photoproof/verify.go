package photoproof

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"fmt"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/veraison/go-cose"
)

// confidenceEpsilon absorbs accumulated float error in the weighted sum so
// the threshold comparison stays inclusive on the pass side.
const confidenceEpsilon = 1e-9

// Now returns the verification clock; separated for tests.
var Now = func() time.Time { return time.Now().UTC() }

// KeyResolver resolves a declared key identifier to the public key trusted
// for it. Unresolvable keys are a failed signature check, not an error.
type KeyResolver interface {
	ResolveKey(keyID string) (crypto.PublicKey, error)
}

// StaticKeyResolver is a fixed keyID-to-key table.
type StaticKeyResolver map[string]crypto.PublicKey

func (r StaticKeyResolver) ResolveKey(keyID string) (crypto.PublicKey, error) {
	key, ok := r[keyID]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", keyID)
	}
	return key, nil
}

// Engine re-derives capture evidence and scores it into a bounded confidence
// verdict. It holds no mutable state: independent Verify calls may run
// concurrently without locking.
type Engine struct {
	cfg      Config
	resolver KeyResolver
}

// NewEngine builds an engine from a validated config and a trust store for
// attestation keys. A nil resolver is allowed for offline-only engines; every
// online signature check then fails closed.
func NewEngine(cfg Config, resolver KeyResolver) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, resolver: resolver}, nil
}

// Config returns a copy of the engine's effective configuration.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Weights = make(Weights, len(e.cfg.Weights))
	for name, weight := range e.cfg.Weights {
		cfg.Weights[name] = weight
	}
	return cfg
}

// Verify independently re-derives the evidence for one submission. Every
// plausible fraud outcome is data inside the result; the function does not
// retry, does not mutate its inputs, and always completes.
func (e *Engine) Verify(imageBytes []byte, att Attestation, bundle MetadataBundle) VerificationResult {
	checks := make(map[string]bool, 7)

	// Recompute the tile tree over the exact received bytes. A root mismatch
	// fails the integrity check and halts tile-level work; the remaining
	// checks still run.
	tree, err := BuildTileTreeBytes(imageBytes, e.cfg.TileSize)
	checks[CheckIntegrity] = err == nil && bytes.Equal(tree.root, att.TreeRoot)

	// Recompute the metadata digest and compare to the attested binding.
	digest, err := DigestMetadata(bundle)
	binding := err == nil && bytes.Equal(digest, att.MetadataDigest)
	checks[CheckMetadataBinding] = binding

	checks[CheckSignature] = e.verifySignature(att)

	e.scoreMetadata(checks, binding, bundle)

	return e.result(ModeOnline, att, checks)
}

// scoreMetadata fills in the plausibility checks. Each is an independent
// boolean; absence of an optional field fails its check but is never an
// error.
func (e *Engine) scoreMetadata(checks map[string]bool, binding bool, bundle MetadataBundle) {
	checks[CheckMetadataCompleteness] = binding && bundle.DeviceClass != "" && bundle.CapturedAt != 0
	checks[CheckGeoPlausible] = geoPlausible(bundle.Geo)
	checks[CheckMotionPlausible] = motionPlausible(bundle.Motion)
	checks[CheckTimestampRecent] = e.timestampRecent(bundle.CapturedAt)
}

// verifySignature checks the COSE_Sign1 envelope over treeRoot ||
// metadataDigest with the declared key. Any parse, resolution, or signature
// failure is simply a false check.
func (e *Engine) verifySignature(att Attestation) bool {
	if e.resolver == nil || len(att.Signature) == 0 {
		return false
	}
	key, err := e.resolver.ResolveKey(att.KeyID)
	if err != nil {
		return false
	}

	var msg cose.Sign1Message
	if err := cbor.Unmarshal(att.Signature, &msg); err != nil {
		return false
	}
	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return false
	}
	verifier, err := cose.NewVerifier(alg, key)
	if err != nil {
		return false
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return false
	}

	// The signature must cover exactly the values the attestation declares.
	return bytes.Equal(msg.Payload, signedPayload(att.TreeRoot, att.MetadataDigest))
}

func geoPlausible(geo *GeoCoordinate) bool {
	if geo == nil {
		return false
	}
	if geo.Latitude < -90 || geo.Latitude > 90 {
		return false
	}
	if geo.Longitude < -180 || geo.Longitude > 180 {
		return false
	}
	if geo.AccuracyM < 0 {
		return false
	}
	// A fix at exactly 0,0 is the classic default from an unpowered GPS unit.
	return geo.Latitude != 0 || geo.Longitude != 0
}

// motionPlausible rejects an all-zero sample (sensor default) and readings
// beyond what a handheld capture can produce.
func motionPlausible(motion *MotionSample) bool {
	if motion == nil {
		return false
	}
	magnitude := math.Sqrt(motion.AccelX*motion.AccelX + motion.AccelY*motion.AccelY + motion.AccelZ*motion.AccelZ)
	return magnitude > 0 && magnitude <= 40
}

func (e *Engine) timestampRecent(capturedAt int64) bool {
	if capturedAt <= 0 {
		return false
	}
	captured := time.UnixMilli(capturedAt)
	now := Now()
	if captured.After(now.Add(time.Duration(e.cfg.MaxClockSkew))) {
		return false
	}
	return now.Sub(captured) <= time.Duration(e.cfg.MaxTimestampAge)
}

// result combines the checks into a confidence score and verdict. The result
// ID is deterministic over the evidence and mode, keeping verification a pure
// function of its inputs.
func (e *Engine) result(mode Mode, att Attestation, checks map[string]bool) VerificationResult {
	confidence := e.cfg.Weights.Confidence(checks)

	verdict := VerdictRejected
	if confidence >= e.cfg.AuthenticThreshold-confidenceEpsilon {
		verdict = VerdictAuthentic
	}

	return VerificationResult{
		ID:         resultID(mode, att),
		PerCheck:   checks,
		Confidence: confidence,
		Verdict:    verdict,
		Mode:       mode,
	}
}

func resultID(mode Mode, att Attestation) string {
	h := sha256.New()
	h.Write([]byte(mode))
	h.Write([]byte(att.ID))
	h.Write(att.TreeRoot)
	h.Write(att.MetadataDigest)
	h.Write(att.Signature)
	return uuid.NewSHA1(uuid.NameSpaceOID, h.Sum(nil)).String()
}
