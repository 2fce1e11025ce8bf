package photoproof

import (
	"math"
	"reflect"
	"testing"
	"time"
)

// testNow pins the verification clock for the duration of a test.
func testNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := Now
	Now = func() time.Time { return at }
	t.Cleanup(func() { Now = prev })
}

const testCaptureMillis = int64(1700000000000)

// tenTileScenario assembles a 10-tile image with a fully signed attestation
// and a trusting engine, the baseline the scenario tests perturb.
func tenTileScenario(t *testing.T) (data []byte, att Attestation, bundle MetadataBundle, engine *Engine) {
	t.Helper()
	testNow(t, time.UnixMilli(testCaptureMillis).Add(10*time.Minute))

	handle, err := NewSoftwareKeyHandle(testSecret, "device-1")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	data = pngImage(160)
	bundle = fullBundle(testCaptureMillis)
	att = testAttestation(t, data, bundle, handle)

	engine, err = NewEngine(Config{TileSize: 16}, StaticKeyResolver{"device-1": handle.PublicKey()})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return data, att, bundle, engine
}

func wantConfidence(t *testing.T, result VerificationResult, want float64) {
	t.Helper()
	if math.Abs(result.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", result.Confidence, want)
	}
}

func TestVerifyAllChecksPass(t *testing.T) {
	data, att, bundle, engine := tenTileScenario(t)

	result := engine.Verify(data, att, bundle)

	wantConfidence(t, result, 1.00)
	if result.Verdict != VerdictAuthentic {
		t.Errorf("verdict = %s, want AUTHENTIC", result.Verdict)
	}
	if result.Mode != ModeOnline {
		t.Errorf("mode = %s, want ONLINE", result.Mode)
	}
	for name, ok := range result.PerCheck {
		if !ok {
			t.Errorf("check %s = false, want true", name)
		}
	}
}

func TestVerifySignatureFailureAtBoundary(t *testing.T) {
	data, att, bundle, _ := tenTileScenario(t)

	// A resolver holding a different key fails the signature check only.
	stranger, err := NewSoftwareKeyHandle([]byte("another secret entirely 32 byte!"), "device-1")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	engine, err := NewEngine(Config{TileSize: 16}, StaticKeyResolver{"device-1": stranger.PublicKey()})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	result := engine.Verify(data, att, bundle)

	wantConfidence(t, result, 0.70)
	if result.Verdict != VerdictAuthentic {
		t.Errorf("verdict at 0.70 = %s, want AUTHENTIC (boundary inclusive)", result.Verdict)
	}
	if result.PerCheck[CheckSignature] {
		t.Error("signature check passed with an untrusted key")
	}
}

func TestVerifySignatureAndIntegrityFailure(t *testing.T) {
	data, att, bundle, _ := tenTileScenario(t)

	stranger, err := NewSoftwareKeyHandle([]byte("another secret entirely 32 byte!"), "device-1")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	engine, err := NewEngine(Config{TileSize: 16}, StaticKeyResolver{"device-1": stranger.PublicKey()})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	tampered := append([]byte{}, data...)
	tampered[40] ^= 0x01

	result := engine.Verify(tampered, att, bundle)

	wantConfidence(t, result, 0.45)
	if result.Verdict != VerdictRejected {
		t.Errorf("verdict = %s, want REJECTED", result.Verdict)
	}
	if result.PerCheck[CheckIntegrity] {
		t.Error("integrity check passed on tampered bytes")
	}
}

func TestVerifyRejectsFinalTileExtension(t *testing.T) {
	testNow(t, time.UnixMilli(testCaptureMillis).Add(10*time.Minute))

	handle, err := NewSoftwareKeyHandle(testSecret, "device-1")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	// Three tiles: the trailing node is duplicated when pairing, so an image
	// extended with a copy of its final tile rebuilds the attested top node.
	data := pngImage(48)
	bundle := fullBundle(testCaptureMillis)
	att := testAttestation(t, data, bundle, handle)

	engine, err := NewEngine(Config{TileSize: 16}, StaticKeyResolver{"device-1": handle.PublicKey()})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	extended := append(append([]byte{}, data...), data[32:48]...)
	result := engine.Verify(extended, att, bundle)

	if result.PerCheck[CheckIntegrity] {
		t.Error("integrity check passed for an image the attestation never covered")
	}
	wantConfidence(t, result, 0.75)
}

func TestVerifySparseMetadata(t *testing.T) {
	testNow(t, time.UnixMilli(testCaptureMillis).Add(72*time.Hour))

	handle, err := NewSoftwareKeyHandle(testSecret, "device-1")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	data := pngImage(160)
	// Geo and motion absent, timestamp present but past the recency window.
	bundle := MetadataBundle{CapturedAt: testCaptureMillis, DeviceClass: "phone"}
	att := testAttestation(t, data, bundle, handle)

	engine, err := NewEngine(Config{TileSize: 16}, StaticKeyResolver{"device-1": handle.PublicKey()})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	result := engine.Verify(data, att, bundle)

	wantConfidence(t, result, 0.75)
	if result.Verdict != VerdictAuthentic {
		t.Errorf("verdict = %s, want AUTHENTIC", result.Verdict)
	}
	if !result.PerCheck[CheckMetadataCompleteness] {
		t.Error("completeness failed despite device class and timestamp present")
	}
	for _, name := range []string{CheckGeoPlausible, CheckMotionPlausible, CheckTimestampRecent} {
		if result.PerCheck[name] {
			t.Errorf("check %s = true, want false", name)
		}
	}
}

func TestVerifyMetadataBindingMismatch(t *testing.T) {
	data, att, bundle, engine := tenTileScenario(t)

	altered := bundle
	altered.DeviceClass = "camera"

	result := engine.Verify(data, att, altered)

	if result.PerCheck[CheckMetadataBinding] {
		t.Error("binding check passed for a bundle the attestation never covered")
	}
	if result.PerCheck[CheckMetadataCompleteness] {
		t.Error("completeness must fail when the binding fails")
	}
}

func TestVerdictBoundaryExclusiveBelow(t *testing.T) {
	cfg := Config{
		TileSize: 16,
		Weights: Weights{
			CheckSignature:            0.699999,
			CheckIntegrity:            0.300001,
			CheckMetadataCompleteness: 0,
			CheckGeoPlausible:         0,
			CheckMotionPlausible:      0,
			CheckTimestampRecent:      0,
		},
	}
	data, att, bundle, _ := tenTileScenario(t)

	handle, err := NewSoftwareKeyHandle(testSecret, "device-1")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	engine, err := NewEngine(cfg, StaticKeyResolver{"device-1": handle.PublicKey()})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	// Integrity fails, signature holds: confidence lands at 0.699999.
	tampered := append([]byte{}, data...)
	tampered[0] ^= 0x01
	result := engine.Verify(tampered, att, bundle)

	wantConfidence(t, result, 0.699999)
	if result.Verdict != VerdictRejected {
		t.Errorf("verdict just below threshold = %s, want REJECTED", result.Verdict)
	}
}

func TestVerifyIsPure(t *testing.T) {
	data, att, bundle, engine := tenTileScenario(t)

	first := engine.Verify(data, att, bundle)
	second := engine.Verify(data, att, bundle)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated verification differs:\n%+v\n%+v", first, second)
	}
}

func TestTimestampRecency(t *testing.T) {
	now := time.UnixMilli(testCaptureMillis)
	testNow(t, now)

	engine, err := NewEngine(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	cases := []struct {
		name       string
		capturedAt int64
		want       bool
	}{
		{"absent", 0, false},
		{"fresh", now.Add(-time.Hour).UnixMilli(), true},
		{"at window edge", now.Add(-48 * time.Hour).UnixMilli(), true},
		{"stale", now.Add(-49 * time.Hour).UnixMilli(), false},
		{"slight clock skew", now.Add(time.Minute).UnixMilli(), true},
		{"far future", now.Add(time.Hour).UnixMilli(), false},
	}
	for _, tc := range cases {
		if got := engine.timestampRecent(tc.capturedAt); got != tc.want {
			t.Errorf("%s: timestampRecent = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPlausibilityChecks(t *testing.T) {
	if geoPlausible(nil) {
		t.Error("absent geo scored plausible")
	}
	if geoPlausible(&GeoCoordinate{Latitude: 0, Longitude: 0}) {
		t.Error("null island scored plausible")
	}
	if !geoPlausible(&GeoCoordinate{Latitude: 48.8566, Longitude: 2.3522, AccuracyM: 10}) {
		t.Error("ordinary fix scored implausible")
	}

	if motionPlausible(nil) {
		t.Error("absent motion scored plausible")
	}
	if motionPlausible(&MotionSample{}) {
		t.Error("all-zero sample scored plausible")
	}
	if motionPlausible(&MotionSample{AccelX: 100, AccelY: 100, AccelZ: 100}) {
		t.Error("extreme reading scored plausible")
	}
	if !motionPlausible(&MotionSample{AccelX: 0.1, AccelY: 0.2, AccelZ: 9.8}) {
		t.Error("at-rest reading scored implausible")
	}
}
