// Package wireid implements the wire encoding of the gateway indexing core:
// URL-safe base64 without padding for every identifier crossing the
// programmatic interfaces of spec.md §6, and the opaque pagination cursor
// used by the query planner of §4.4.
package wireid

import (
	"encoding/base64"

	"github.com/pkg/errors"
)

// ErrMalformedID is returned by Decode when the input is not valid
// URL-safe, unpadded base64.
var ErrMalformedID = errors.New("wireid: malformed base64 identifier")

// Encode returns the URL-safe, unpadded base64 encoding of b, the wire
// representation of every id, address, and tag-literal crossing the
// gateway's programmatic interfaces.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses the URL-safe, unpadded base64 encoding produced by Encode.
// Padded or standard-alphabet input is rejected: callers round-trip what
// Encode produced, per spec.md §6 ("Wire encoding").
func Decode(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	var b, err = base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.WithMessage(ErrMalformedID, err.Error())
	}
	return b, nil
}
