package photoproof

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-playground/validator/v10"
)

// ErrMalformedField reports a structurally invalid present metadata field.
// Absent fields never trigger it: absence is a scored signal, not an error.
var ErrMalformedField = errors.New("malformed metadata field")

var canonicalEncMode = func() cbor.EncMode {
	opts := cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		TimeTag:       cbor.EncTagNone,
		ShortestFloat: cbor.ShortestFloat16,
	}
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

var validate = validator.New(validator.WithRequiredStructEnabled())

// GeoCoordinate is an optional capture location fix.
type GeoCoordinate struct {
	Latitude  float64 `cbor:"lat" json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `cbor:"lon" json:"lon" validate:"gte=-180,lte=180"`
	AccuracyM float64 `cbor:"acc,omitempty" json:"acc,omitempty" validate:"gte=0"`
}

// MotionSample is an optional accelerometer reading taken at the shutter
// moment, in m/s^2 per axis.
type MotionSample struct {
	AccelX float64 `cbor:"ax" json:"ax"`
	AccelY float64 `cbor:"ay" json:"ay"`
	AccelZ float64 `cbor:"az" json:"az"`
}

// MetadataBundle is the typed capture-context record produced at capture
// time. Every field is independently present or absent; CapturedAt is unix
// milliseconds with zero meaning absent.
type MetadataBundle struct {
	CapturedAt  int64          `cbor:"ts,omitempty" json:"capturedAt,omitempty" validate:"gte=0"`
	Geo         *GeoCoordinate `cbor:"geo,omitempty" json:"geo,omitempty"`
	Motion      *MotionSample  `cbor:"motion,omitempty" json:"motion,omitempty"`
	DeviceClass string         `cbor:"device,omitempty" json:"deviceClass,omitempty" validate:"omitempty,oneof=phone tablet camera drone dashcam"`
	SensorFlags []string       `cbor:"flags,omitempty" json:"sensorFlags,omitempty" validate:"omitempty,dive,min=1"`
}

// ValidateBundle checks every present field for structural validity. Absent
// fields pass unconditionally.
func ValidateBundle(b MetadataBundle) error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedField, err)
	}
	return nil
}

// DigestMetadata returns the SHA-256 digest of the bundle's canonical
// serialization. Absent fields are omitted, never null-padded, so two bundles
// with different present-field sets can never collide. The digest fails only
// on malformed present fields.
func DigestMetadata(b MetadataBundle) ([]byte, error) {
	if err := ValidateBundle(b); err != nil {
		return nil, err
	}
	encoded, err := canonicalEncMode.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode metadata bundle: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return sum[:], nil
}
