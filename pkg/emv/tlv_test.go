package emv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

func TestParseTLV(t *testing.T) {
	t.Parallel()

	list, err := ParseTLV(mustHex(t, "9F3602001C"+"82025800"+"9F0206000000001000"))
	require.NoError(t, err)

	require.Len(t, list, 3)
	v, ok := list.Value(TagATC)
	require.True(t, ok)
	assert.Equal(t, mustHex(t, "001C"), v)
	assert.True(t, list.Has(TagAIP))
	assert.False(t, list.Has(TagTVR))
	assert.Equal(t, []uint32{TagTVR, TagTransactionType}, list.Missing(TagATC, TagTVR, TagAIP, TagTransactionType))
}

func TestParseTLVConstructed(t *testing.T) {
	t.Parallel()

	// 77 template holding 9F27 and 9F26.
	list, err := ParseTLV(mustHex(t, "770F9F2701809F26081122334455667788"))
	require.NoError(t, err)

	require.Len(t, list, 3)
	assert.Equal(t, uint32(0x77), list[0].Tag)
	assert.Equal(t, mustHex(t, "9F2701809F26081122334455667788"), list[0].Value)
	assert.Equal(t, uint32(0x9F27), list[1].Tag)
	v, ok := list.Value(TagApplicationCryptogram)
	require.True(t, ok)
	assert.Equal(t, mustHex(t, "1122334455667788"), v)
}

func TestParseTLVLongLength(t *testing.T) {
	t.Parallel()

	value := bytes.Repeat([]byte{0xAB}, 200)
	list, err := ParseTLV(append(mustHex(t, "9F1081C8"), value...))
	require.NoError(t, err)
	v, ok := list.Value(TagIssuerAppData)
	require.True(t, ok)
	assert.Equal(t, value, v)

	raw, err := list.Encode()
	require.NoError(t, err)
	assert.Equal(t, append(mustHex(t, "9F1081C8"), value...), raw)
}

func TestTagListEncodeLengths(t *testing.T) {
	t.Parallel()

	value := bytes.Repeat([]byte{0xCD}, 300)
	raw, err := TagList{{TagIssuerAppData, value}}.Encode()
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "9F1082012C"), raw[:5])

	back, err := ParseTLV(raw)
	require.NoError(t, err)
	v, ok := back.Value(TagIssuerAppData)
	require.True(t, ok)
	assert.Equal(t, value, v)

	// a value that does not fit two length bytes is refused, not truncated
	_, err = TagList{{TagIssuerAppData, make([]byte, 70000)}}.Encode()
	require.ErrorIs(t, err, errorcodes.ErrInvalidInput)
	assert.Contains(t, err.Error(), "9F10")
}

func TestParseTLVErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hex  string
	}{
		{"truncated value", "9F360400"},
		{"short value", "9F0206000000"},
		{"broken template", "77039F3605"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			raw := mustHex(t, tc.hex)
			_, err := ParseTLV(raw)
			require.ErrorIs(t, err, errorcodes.ErrInvalidInput)
		})
	}
}

func TestTagListEncode(t *testing.T) {
	t.Parallel()

	list := TagList{
		{TagTransactionType, []byte{0x00}},
		{TagIssuerAuthData, mustHex(t, "11223344556677883030")},
	}
	raw, err := list.Encode()
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "9C0100"+"910A11223344556677883030"), raw)

	back, err := ParseTLV(raw)
	require.NoError(t, err)
	assert.Equal(t, list, back)
}

func TestParseTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"9F36", 0x9F36, false},
		{"82", 0x82, false},
		{"5f2a", 0x5F2A, false},
		{"", 0, true},
		{"9F3", 0, true},
		{"ZZ", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTag(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, errorcodes.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	assert.Equal(t, "9F36", TagString(TagATC))
	assert.Equal(t, "95", TagString(TagTVR))
}
