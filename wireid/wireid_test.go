package wireid

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var in = []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0xff}
	var s = Encode(in)
	require.NotContains(t, s, "=")

	var out, err = Decode(s)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeEmpty(t *testing.T) {
	var out, err = Decode("")
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestDecodeMalformed(t *testing.T) {
	var _, err = Decode("not base64!!!")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedID)
}

func TestCursorRoundTrip(t *testing.T) {
	var height, bti, indexedAt = int64(42), int64(3), int64(1700000000)
	var c = Cursor{
		Height:                &height,
		BlockTransactionIndex: &bti,
		DataItemID:            []byte{0x01, 0x02},
		IndexedAt:             &indexedAt,
		ID:                    []byte{0xaa, 0xbb, 0xcc},
	}

	var s = EncodeCursor(c)
	var out, err = ParseCursor(s)
	require.NoError(t, err)
	require.Equal(t, c.Height, out.Height)
	require.Equal(t, c.BlockTransactionIndex, out.BlockTransactionIndex)
	require.Equal(t, c.DataItemID, out.DataItemID)
	require.Equal(t, c.IndexedAt, out.IndexedAt)
	require.Equal(t, c.ID, out.ID)
}

func TestCursorRoundTripNullHeight(t *testing.T) {
	var indexedAt = int64(1700000001)
	var c = Cursor{
		IndexedAt: &indexedAt,
		ID:        []byte{0x09},
	}
	var s = EncodeCursor(c)
	var out, err = ParseCursor(s)
	require.NoError(t, err)
	require.Nil(t, out.Height)
	require.Nil(t, out.BlockTransactionIndex)
	require.Equal(t, c.ID, out.ID)
}

func TestCursorEmptyString(t *testing.T) {
	var out, err = ParseCursor("")
	require.NoError(t, err)
	require.Equal(t, Cursor{}, out)
}

func TestCursorInvalid(t *testing.T) {
	var _, err = ParseCursor("%%%not-valid-base64%%%")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCursorInvalid)
}

func TestCursorInvalidJSON(t *testing.T) {
	var s = base64.RawURLEncoding.EncodeToString([]byte("not json"))
	var _, err = ParseCursor(s)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCursorInvalid)
}
