package pinblock

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

const testPAN = "4111111111111111"

func TestEncodeKnownBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format Format
		pin    string
		pan    string
		want   string
	}{
		{name: "iso0", format: ISO0, pin: "1234", pan: testPAN, want: "041225EEEEEEEEEE"},
		{name: "iso0 12 digits", format: ISO0, pin: "123456789012", pan: testPAN, want: "0C122547698103EE"},
		{name: "iso2", format: ISO2, pin: "1234", want: "241234FFFFFFFFFF"},
		{name: "iso2 ignores pan", format: ISO2, pin: "12345", pan: "x", want: "2512345FFFFFFFFF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Encode(tt.format, tt.pin, tt.pan)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.ToUpper(hex.EncodeToString(got)))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, f := range []Format{ISO0, ISO1, ISO2, ISO3} {
		for _, pin := range []string{"1234", "0000", "98765", "123456789012"} {
			t.Run(f.String()+"/"+pin, func(t *testing.T) {
				t.Parallel()

				block, err := Encode(f, pin, testPAN)
				require.NoError(t, err)
				require.Len(t, block, BlockSize)

				got, err := Decode(f, block, testPAN)
				require.NoError(t, err)
				assert.Equal(t, pin, got)
			})
		}
	}
}

func TestISO3Fill(t *testing.T) {
	t.Parallel()

	block, err := Encode(ISO3, "1234", testPAN)
	require.NoError(t, err)

	field, err := panField(testPAN)
	require.NoError(t, err)
	for i := range block {
		block[i] ^= field[i]
	}

	nibbles := unpack(block)
	assert.Equal(t, byte(3), nibbles[0])
	for _, d := range nibbles[6:] {
		assert.GreaterOrEqual(t, d, byte(0xA))
	}
}

func TestEncodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format Format
		pin    string
		pan    string
	}{
		{name: "short pin", format: ISO0, pin: "123", pan: testPAN},
		{name: "long pin", format: ISO1, pin: "1234567890123"},
		{name: "non decimal pin", format: ISO2, pin: "12a4"},
		{name: "missing pan", format: ISO0, pin: "1234"},
		{name: "short pan", format: ISO3, pin: "1234", pan: "411111111111"},
		{name: "non decimal pan", format: ISO0, pin: "1234", pan: "4111-1111-1111-1111"},
		{name: "unknown format", format: Format(4), pin: "1234", pan: testPAN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Encode(tt.format, tt.pin, tt.pan)
			require.ErrorIs(t, err, errorcodes.ErrInvalidInput)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format Format
		block  string
		pan    string
		want   string
	}{
		{name: "short block", format: ISO2, block: "241234FFFFFF", want: "PIN block of 6 bytes"},
		{name: "wrong format", format: ISO2, block: "141234FFFFFFFFFF", want: "control field"},
		{name: "pin length", format: ISO2, block: "221234FFFFFFFFFF", want: "PIN length 2"},
		{name: "digit", format: ISO2, block: "24123AFFFFFFFFFF", want: "not decimal"},
		{name: "fill", format: ISO2, block: "241234FFFFFFFFF0", want: "fill nibble 0"},
		{name: "wrong pan", format: ISO0, block: "041225EEEEEEEEEE", pan: "5500000000000004", want: "fill nibble E"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			block, err := hex.DecodeString(tt.block)
			require.NoError(t, err)

			_, err = Decode(tt.format, block, tt.pan)
			require.ErrorIs(t, err, errorcodes.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]Format{"0": ISO0, "iso1": ISO1, "ISO-2": ISO2, " 3 ": ISO3}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("4")
	require.ErrorIs(t, err, errorcodes.ErrInvalidInput)
}
