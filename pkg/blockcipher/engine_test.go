package blockcipher

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

type failingPath struct{ panics bool }

func (failingPath) Name() string { return "failing" }

func (p failingPath) Encrypt(Algorithm, Mode, []byte, []byte, []byte) ([]byte, error) {
	if p.panics {
		panic("provider exploded")
	}

	return nil, errors.New("provider unavailable")
}

func (p failingPath) Decrypt(a Algorithm, m Mode, k, iv, d []byte) ([]byte, error) {
	return p.Encrypt(a, m, k, iv, d)
}

func TestSingleDESVector(t *testing.T) {
	t.Parallel()

	key := mustHex(t, "133457799BBCDFF1")
	plain := mustHex(t, "0123456789ABCDEF")
	want := mustHex(t, "85E813540F0AB405")

	for _, e := range []*Engine{New(LibraryPath{}, nil), New(SoftwarePath{}, nil)} {
		out, err := e.EncryptECB(key, plain)
		require.NoError(t, err, e.Primary.Name())
		assert.Equal(t, want, out, e.Primary.Name())

		back, err := e.DecryptECB(key, out)
		require.NoError(t, err)
		assert.Equal(t, plain, back)
	}
}

func TestZeroBlockEncryption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want string
	}{
		{"0123456789ABCDEF", "D5D44F"},
		{"0123456789ABCDEFFEDCBA9876543210", "08D7B4"},
		{"0123456789ABCDEFFEDCBA98765432100011223344556677", "CBE6A7"},
	}

	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Parallel()

			for _, p := range []Path{LibraryPath{}, SoftwarePath{}} {
				out, err := New(p, nil).EncryptECB(mustHex(t, tc.key), make([]byte, 8))
				require.NoError(t, err)
				assert.Equal(t, mustHex(t, tc.want), out[:3], p.Name())
			}
		})
	}
}

func TestPathsProduceIdenticalOutput(t *testing.T) {
	t.Parallel()

	keys := []string{
		"0123456789ABCDEF",
		"0123456789ABCDEFFEDCBA9876543210",
		"0123456789ABCDEFFEDCBA98765432100011223344556677",
	}
	iv := mustHex(t, "1122334455667788")
	block := bytes.Repeat([]byte("EMVDATA!"), 5)
	odd := []byte("thirteen byte")

	for _, k := range keys {
		for _, mode := range []Mode{ECB, CBC, CFB, OFB} {
			data := block
			if !mode.IsBlockMode() {
				data = odd
			}
			var modeIV []byte
			if mode.RequiresIV() {
				modeIV = iv
			}

			lib, err := New(LibraryPath{}, nil).Encrypt(mode, mustHex(t, k), modeIV, data)
			require.NoError(t, err)
			soft, err := New(SoftwarePath{}, nil).Encrypt(mode, mustHex(t, k), modeIV, data)
			require.NoError(t, err)
			assert.Equal(t, lib, soft, "%s key=%s", mode, k)

			back, err := New(SoftwarePath{}, nil).Decrypt(mode, mustHex(t, k), modeIV, lib)
			require.NoError(t, err)
			assert.Equal(t, data, back, "%s key=%s", mode, k)
		}
	}
}

func TestAESPathsAgree(t *testing.T) {
	t.Parallel()

	key := mustHex(t, "000102030405060708090A0B0C0D0E0F")
	iv := make([]byte, 16)
	data := bytes.Repeat([]byte{0xA5}, 32)

	for _, mode := range []Mode{ECB, CBC, CFB, OFB} {
		var modeIV []byte
		if mode.RequiresIV() {
			modeIV = iv
		}
		lib, err := NewWithAlgorithm(AES, LibraryPath{}, nil).Encrypt(mode, key, modeIV, data)
		require.NoError(t, err)
		soft, err := NewWithAlgorithm(AES, SoftwarePath{}, nil).Encrypt(mode, key, modeIV, data)
		require.NoError(t, err)
		assert.Equal(t, lib, soft, mode.String())
	}
}

func TestFallbackOnPrimaryFailure(t *testing.T) {
	t.Parallel()

	key := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")
	iv := make([]byte, 8)
	data := []byte("12345678ABCDEFGH")

	want, err := Default().Encrypt(CBC, key, iv, data)
	require.NoError(t, err)

	for _, primary := range []Path{failingPath{}, failingPath{panics: true}} {
		got, err := New(primary, SoftwarePath{}).Encrypt(CBC, key, iv, data)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = New(failingPath{}, failingPath{}).Encrypt(CBC, key, iv, data)
	require.ErrorIs(t, err, errorcodes.ErrCipherFailure)

	_, err = New(nil, nil).Encrypt(CBC, key, iv, data)
	require.ErrorIs(t, err, errorcodes.ErrCipherFailure)
}

func TestEngineValidation(t *testing.T) {
	t.Parallel()

	key := make([]byte, 16)
	iv := make([]byte, 8)

	tests := []struct {
		name    string
		mode    Mode
		key     []byte
		iv      []byte
		data    []byte
		wantErr error
	}{
		{"short key", ECB, make([]byte, 7), nil, make([]byte, 8), errorcodes.ErrInvalidKeyLength},
		{"long key", ECB, make([]byte, 32), nil, make([]byte, 8), errorcodes.ErrInvalidKeyLength},
		{"cbc without iv", CBC, key, nil, make([]byte, 8), errorcodes.ErrInvalidIVLength},
		{"ofb short iv", OFB, key, iv[:4], make([]byte, 8), errorcodes.ErrInvalidIVLength},
		{"ecb with iv", ECB, key, iv, make([]byte, 8), errorcodes.ErrInvalidIVLength},
		{"ecb partial block", ECB, key, nil, make([]byte, 9), errorcodes.ErrInvalidDataLength},
		{"cbc partial block", CBC, key, iv, make([]byte, 15), errorcodes.ErrInvalidDataLength},
		{"unknown mode", Mode(9), key, nil, make([]byte, 8), errorcodes.ErrUnsupportedMode},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Default().WithAlgorithm(TDES).Encrypt(tc.mode, tc.key, tc.iv, tc.data)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	out, err := Default().Encrypt(CFB, key, iv, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestExpandKey(t *testing.T) {
	t.Parallel()

	k1 := mustHex(t, "0123456789ABCDEF")
	k2 := mustHex(t, "FEDCBA9876543210")

	single, err := ExpandKey(k1)
	require.NoError(t, err)
	assert.Equal(t, append(append(append([]byte{}, k1...), k1...), k1...), single)

	double, err := ExpandKey(append(append([]byte{}, k1...), k2...))
	require.NoError(t, err)
	assert.Equal(t, append(append(append([]byte{}, k1...), k2...), k1...), double)

	// the returned buffer never aliases the input.
	double[0] ^= 0xFF
	assert.Equal(t, byte(0x01), k1[0])

	_, err = ExpandKey(make([]byte, 12))
	require.ErrorIs(t, err, errorcodes.ErrInvalidKeyLength)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode(" cbc ")
	require.NoError(t, err)
	assert.Equal(t, CBC, m)

	_, err = ParseMode("CTR")
	require.ErrorIs(t, err, errorcodes.ErrUnsupportedMode)
}
