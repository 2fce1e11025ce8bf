// Package photoproof binds captured photographs to hardware-rooted signatures
// and independently re-derives that evidence into a bounded confidence verdict.
package photoproof

// Verdict is the pass/fail outcome of a verification attempt.
type Verdict string

const (
	VerdictAuthentic Verdict = "AUTHENTIC"
	VerdictRejected  Verdict = "REJECTED"
)

// Mode records which certification path produced a result.
type Mode string

const (
	ModeOnline  Mode = "ONLINE"
	ModeOffline Mode = "OFFLINE"
)

// Check names used as keys in VerificationResult.PerCheck and in the weights table.
const (
	CheckSignature            = "signature"
	CheckIntegrity            = "integrity"
	CheckMetadataBinding      = "metadata_binding"
	CheckMetadataCompleteness = "metadata_completeness"
	CheckGeoPlausible         = "geo_plausible"
	CheckMotionPlausible      = "motion_plausible"
	CheckTimestampRecent      = "timestamp_recent"
)

// Attestation is the signed binding of a tile-tree root and a metadata digest,
// produced once at capture time and immutable afterward. Signature carries a
// raw COSE_Sign1 message whose payload is treeRoot || metadataDigest.
type Attestation struct {
	ID             string `cbor:"id" json:"id"`
	TreeRoot       []byte `cbor:"tree_root" json:"treeRoot"`
	MetadataDigest []byte `cbor:"metadata_digest" json:"metadataDigest"`
	Signature      []byte `cbor:"signature" json:"signature"`
	KeyID          string `cbor:"key_id" json:"keyId"`
}

// VerificationResult is produced fresh per verification attempt and never
// mutated. Failed checks are data, not errors: a low-confidence REJECTED
// result is a meaningful, auditable answer.
type VerificationResult struct {
	ID         string          `cbor:"id" json:"id"`
	PerCheck   map[string]bool `cbor:"per_check" json:"perCheck"`
	Confidence float64         `cbor:"confidence" json:"confidence"`
	Verdict    Verdict         `cbor:"verdict" json:"verdict"`
	Mode       Mode            `cbor:"mode" json:"mode"`
}

// Submission is the wire payload a capture device hands to a verification
// service: the frozen image bytes, the capture attestation, and the metadata
// bundle the attestation binds.
type Submission struct {
	Image       []byte         `cbor:"image"`
	Attestation Attestation    `cbor:"attestation"`
	Metadata    MetadataBundle `cbor:"metadata"`
}
