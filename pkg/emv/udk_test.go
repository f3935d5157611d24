package emv

import (
	"crypto/des"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/keyutil"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

// tdesECB encrypts one block with crypto/des directly, independent of the engine.
func tdesECB(t *testing.T, key, block []byte) []byte {
	t.Helper()
	key24 := append(append([]byte{}, key...), key[:8]...)
	if len(key) == 24 {
		key24 = key
	}
	c, err := des.NewTripleDESCipher(key24)
	require.NoError(t, err)
	out := make([]byte, 8)
	c.Encrypt(out, block)

	return out
}

func xorFF(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ 0xFF
	}

	return out
}

func TestDeriveUDKOptionAEndToEnd(t *testing.T) {
	t.Parallel()

	mk := mustHex(t, "0123456789ABCDEF0123456789ABCDEF")
	udk, err := DeriveUDK(nil, UDKParams{
		MasterKey:   mk,
		PAN:         "4111111111111111",
		PANSequence: "01",
		Option:      OptionA,
		Parity:      keyutil.ParityNone,
	})
	require.NoError(t, err)
	require.Len(t, udk, 16)

	assert.Equal(t, mustHex(t, "E2554BF772A0A5E5900200A2106CA9E7"), udk)

	// rightmost 16 digits of 411111111111111101.
	y := mustHex(t, "1111111111111101")
	assert.Equal(t, append(tdesECB(t, mk, y), tdesECB(t, mk, xorFF(y))...), udk)

	kcv, err := keyutil.KCV(nil, udk, keyutil.KCVStandard)
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "F4BE3C"), kcv)

	optionB, err := DeriveUDK(nil, UDKParams{
		MasterKey:   mk,
		PAN:         "4111111111111111",
		PANSequence: "01",
		Option:      OptionB,
		Parity:      keyutil.ParityNone,
	})
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "D5300205B888D2FC72290628A11FB151"), optionB)

	soft, err := DeriveUDK(blockcipher.New(blockcipher.SoftwarePath{}, nil), UDKParams{
		MasterKey:   mk,
		PAN:         "4111111111111111",
		PANSequence: "01",
		Parity:      keyutil.ParityNone,
	})
	require.NoError(t, err)
	assert.Equal(t, udk, soft)
}

func TestDeriveUDKOptionB(t *testing.T) {
	t.Parallel()

	mk := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")
	pan := "5413330089020011234"

	udkB, err := DeriveUDK(nil, UDKParams{MasterKey: mk, PAN: pan, PANSequence: "01", Option: OptionB, Parity: keyutil.ParityNone})
	require.NoError(t, err)

	// 21 digits are left-padded to 22 and packed before hashing.
	assert.Equal(t, mustHex(t, "CB1D3A4BA88B5F7450EE1078A904F950"), udkB)

	udkA, err := DeriveUDK(nil, UDKParams{MasterKey: mk, PAN: pan, PANSequence: "01", Option: OptionA, Parity: keyutil.ParityNone})
	require.NoError(t, err)
	assert.NotEqual(t, udkA, udkB)

	odd, err := DeriveUDK(nil, UDKParams{MasterKey: mk, PAN: pan, PANSequence: "01", Option: OptionB})
	require.NoError(t, err)
	assert.Equal(t, keyutil.AdjustParity(udkB, keyutil.ParityOdd), odd)
}

func TestDeriveUDKOptionBShortPANFallsBackToA(t *testing.T) {
	t.Parallel()

	mk := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")
	a, err := DeriveUDK(nil, UDKParams{MasterKey: mk, PAN: "41111111111111", PANSequence: "01", Option: OptionA})
	require.NoError(t, err)
	b, err := DeriveUDK(nil, UDKParams{MasterKey: mk, PAN: "41111111111111", PANSequence: "01", Option: OptionB})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// 14 + 2 digits need no padding.
	y := mustHex(t, "4111111111111101")
	want := keyutil.AdjustParity(append(tdesECB(t, mk, y), tdesECB(t, mk, xorFF(y))...), keyutil.ParityOdd)
	assert.Equal(t, want, a)
}

func TestDeriveUDKValidation(t *testing.T) {
	t.Parallel()

	mk := make([]byte, 16)
	tests := []struct {
		name    string
		params  UDKParams
		wantErr error
	}{
		{"short master key", UDKParams{MasterKey: mk[:8], PAN: "4111111111111111"}, errorcodes.ErrInvalidKeyLength},
		{"non digit PAN", UDKParams{MasterKey: mk, PAN: "4111-1111"}, errorcodes.ErrInvalidInput},
		{"empty PAN", UDKParams{MasterKey: mk}, errorcodes.ErrInvalidInput},
		{"bad PSN", UDKParams{MasterKey: mk, PAN: "4111111111111111", PANSequence: "1"}, errorcodes.ErrInvalidInput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DeriveUDK(nil, tc.params)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}
