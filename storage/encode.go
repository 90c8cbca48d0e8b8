package storage

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ArtifactEncoding selects how a record is serialized. Records are CBOR
// unless they ask for JSON.
type ArtifactEncoding int

const (
	ArtifactEncodingCBOR ArtifactEncoding = iota
	ArtifactEncodingJSON
)

func (e ArtifactEncoding) String() string {
	switch e {
	case ArtifactEncodingCBOR:
		return "cbor"
	case ArtifactEncodingJSON:
		return "json"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// detCBOR is the deterministic core encoding, so equal records always give
// equal bytes.
var detCBOR = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoding mode: %v", err))
	}
	return em
}()

func encodingOf(encoding []ArtifactEncoding) ArtifactEncoding {
	if len(encoding) == 0 {
		return ArtifactEncodingCBOR
	}
	return encoding[0]
}

// EncodeArtifact serializes a record, as CBOR unless another encoding is
// given.
func EncodeArtifact(a any, encoding ...ArtifactEncoding) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch enc := encodingOf(encoding); enc {
	case ArtifactEncodingCBOR:
		data, err = detCBOR.Marshal(a)
	case ArtifactEncodingJSON:
		data, err = json.Marshal(a)
	default:
		return nil, fmt.Errorf("unknown artifact encoding %s", enc)
	}
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return data, nil
}

// DecodeArtifact deserializes a record written by EncodeArtifact with the
// same encoding.
func DecodeArtifact(data []byte, out any, encoding ...ArtifactEncoding) error {
	var err error
	switch enc := encodingOf(encoding); enc {
	case ArtifactEncodingCBOR:
		err = cbor.Unmarshal(data, out)
	case ArtifactEncodingJSON:
		err = json.Unmarshal(data, out)
	default:
		return fmt.Errorf("unknown artifact encoding %s", enc)
	}
	if err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	return nil
}
