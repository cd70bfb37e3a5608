package wireid

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrCursorInvalid is the cursor-invalid error of spec.md §7: an
// ill-formed cursor fails the request rather than being treated as "no
// cursor".
var ErrCursorInvalid = errors.New("wireid: cursor-invalid")

// Cursor is the decoded form of the opaque pagination cursor of spec.md
// §4.4: a tuple (height, blockTransactionIndex, dataItemID, indexedAt, id)
// giving the total-order position of the last row of a page.
//
// Height and BlockTransactionIndex are nil for rows that are not yet
// block-linked (new, not-yet-linked rows use IndexedAt/ID as their
// secondary ordering plane; see spec.md §9 "Cursor with NULL height").
type Cursor struct {
	Height                *int64
	BlockTransactionIndex *int64
	DataItemID            []byte
	IndexedAt             *int64
	ID                    []byte
}

// EncodeCursor returns the opaque, URL-safe base64 encoding of c. Callers
// must treat the result as opaque and round-trip it unmodified, per
// spec.md §6 ("Cursors").
func EncodeCursor(c Cursor) string {
	var dataItemID, id *string
	if c.DataItemID != nil {
		var s = Encode(c.DataItemID)
		dataItemID = &s
	}
	if c.ID != nil {
		var s = Encode(c.ID)
		id = &s
	}

	// The tuple is encoded positionally as a JSON array, matching the
	// source's "[height, blockTransactionIndex, dataItemId, indexedAt, id]"
	// wire shape rather than an object.
	var arr = [5]interface{}{c.Height, c.BlockTransactionIndex, dataItemID, c.IndexedAt, id}
	var b, _ = json.Marshal(arr)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b)
}

// ParseCursor decodes a cursor produced by EncodeCursor. Any malformed
// input -- bad base64, bad JSON, wrong arity, bad id encoding -- is
// reported as ErrCursorInvalid.
func ParseCursor(s string) (Cursor, error) {
	var out Cursor
	if s == "" {
		return out, nil
	}

	var raw, err = base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(s)
	if err != nil {
		return out, errors.WithMessage(ErrCursorInvalid, err.Error())
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return out, errors.WithMessage(ErrCursorInvalid, err.Error())
	}
	if len(arr) != 5 {
		return out, errors.WithMessagef(ErrCursorInvalid, "cursor has %d fields, want 5", len(arr))
	}

	var decodeInt64Ptr = func(raw json.RawMessage) (*int64, error) {
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil
		}
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return &v, nil
	}
	var decodeIDPtr = func(raw json.RawMessage) ([]byte, error) {
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return Decode(s)
	}

	if out.Height, err = decodeInt64Ptr(arr[0]); err != nil {
		return Cursor{}, errors.WithMessage(ErrCursorInvalid, err.Error())
	}
	if out.BlockTransactionIndex, err = decodeInt64Ptr(arr[1]); err != nil {
		return Cursor{}, errors.WithMessage(ErrCursorInvalid, err.Error())
	}
	if out.DataItemID, err = decodeIDPtr(arr[2]); err != nil {
		return Cursor{}, errors.WithMessage(ErrCursorInvalid, err.Error())
	}
	if out.IndexedAt, err = decodeInt64Ptr(arr[3]); err != nil {
		return Cursor{}, errors.WithMessage(ErrCursorInvalid, err.Error())
	}
	if out.ID, err = decodeIDPtr(arr[4]); err != nil {
		return Cursor{}, errors.WithMessage(ErrCursorInvalid, err.Error())
	}
	return out, nil
}
