// Package attribution builds ERC-8021 transaction attribution suffixes.
//
// A schema 0 suffix is laid out as
//
//	codes (ASCII, comma separated) ‖ codesLength (1 byte) ‖ schemaId (1 byte, 0x00) ‖ marker (16 bytes)
//
// and is appended by the wallet after the call data, so contracts ignore it
// while indexers can read it back from the end of the transaction input.
package attribution

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SchemaCanonical is the schema id of a plain code list resolved against the
// canonical code registry.
const SchemaCanonical = 0x00

// Marker terminates every ERC-8021 suffix.
var Marker = hexutil.MustDecode("0x80218021802180218021802180218021")

const maxCodesLength = 0xff

// Encoder produces the data suffix for a list of attribution codes.
type Encoder interface {
	ToDataSuffix(codes []string) (hexutil.Bytes, error)
}

// ERC8021 is the schema 0 Encoder.
type ERC8021 struct{}

var _ Encoder = ERC8021{}

// ToDataSuffix implements Encoder.
func (ERC8021) ToDataSuffix(codes []string) (hexutil.Bytes, error) {
	return ToDataSuffix(codes)
}

// ToDataSuffix encodes codes as an ERC-8021 schema 0 suffix.
func ToDataSuffix(codes []string) (hexutil.Bytes, error) {
	if len(codes) == 0 {
		return nil, errors.New("at least one attribution code is required")
	}
	for _, c := range codes {
		if err := validateCode(c); err != nil {
			return nil, err
		}
	}

	joined := strings.Join(codes, ",")
	if len(joined) > maxCodesLength {
		return nil, fmt.Errorf("attribution codes are %d bytes, limit is %d", len(joined), maxCodesLength)
	}

	out := make([]byte, 0, len(joined)+2+len(Marker))
	out = append(out, joined...)
	out = append(out, byte(len(joined)), SchemaCanonical)
	out = append(out, Marker...)
	return out, nil
}

// FromData extracts the attribution codes from the end of transaction input.
// ok is false when data carries no schema 0 suffix.
func FromData(data []byte) (codes []string, ok bool) {
	if len(data) < len(Marker)+2 || !bytes.HasSuffix(data, Marker) {
		return nil, false
	}

	rest := data[:len(data)-len(Marker)]
	if rest[len(rest)-1] != SchemaCanonical {
		return nil, false
	}
	n := int(rest[len(rest)-2])
	rest = rest[:len(rest)-2]
	if n == 0 || n > len(rest) {
		return nil, false
	}

	return strings.Split(string(rest[len(rest)-n:]), ","), true
}

func validateCode(c string) error {
	if c == "" {
		return errors.New("attribution code cannot be empty")
	}
	for _, r := range c {
		if r == ',' || r < 0x21 || r > 0x7e {
			return fmt.Errorf("attribution code %q contains invalid character %q", c, r)
		}
	}
	return nil
}
