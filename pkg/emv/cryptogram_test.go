package emv

import (
	"crypto/cipher"
	"crypto/des"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/cryptoutils"
	"github.com/andrei-cloud/emv_studio/pkg/keyutil"
)

// countingPath records how often the engine reached a cipher.
type countingPath struct {
	calls *atomic.Int32
}

func (countingPath) Name() string { return "counting" }

func (p countingPath) Encrypt(a blockcipher.Algorithm, m blockcipher.Mode, k, iv, d []byte) ([]byte, error) {
	p.calls.Add(1)
	return blockcipher.LibraryPath{}.Encrypt(a, m, k, iv, d)
}

func (p countingPath) Decrypt(a blockcipher.Algorithm, m blockcipher.Mode, k, iv, d []byte) ([]byte, error) {
	p.calls.Add(1)
	return blockcipher.LibraryPath{}.Decrypt(a, m, k, iv, d)
}

func sampleTerminal(t *testing.T) TagList {
	t.Helper()

	return TagList{
		{TagAmountAuthorised, mustHex(t, "000000001000")},
		{TagAmountOther, mustHex(t, "000000000000")},
		{TagTerminalCountryCode, mustHex(t, "0840")},
		{TagTVR, mustHex(t, "0000000000")},
		{TagTransactionCurrency, mustHex(t, "0840")},
		{TagTransactionDate, mustHex(t, "251019")},
		{TagTransactionType, mustHex(t, "00")},
		{TagUnpredictableNumber, mustHex(t, "A1B2C3D4")},
	}
}

func sampleICC(t *testing.T) TagList {
	t.Helper()

	return TagList{
		{TagAIP, mustHex(t, "5800")},
		{TagATC, mustHex(t, "001C")},
		{TagIssuerAppData, mustHex(t, "06010A03A00000")},
	}
}

func wantACData(t *testing.T) []byte {
	t.Helper()

	return mustHex(t, "000000001000"+"000000000000"+"0840"+"0000000000"+"0840"+
		"251019"+"00"+"A1B2C3D4"+"5800"+"001C"+"06010A03A00000")
}

func TestBuildACDataOrder(t *testing.T) {
	t.Parallel()

	data, err := BuildACData(sampleTerminal(t), sampleICC(t))
	require.NoError(t, err)
	assert.Equal(t, wantACData(t), data)

	// the card's 9F10 wins over a terminal-supplied one.
	terminal := append(sampleTerminal(t), TLV{TagIssuerAppData, mustHex(t, "FFFF")})
	data, err = BuildACData(terminal, sampleICC(t))
	require.NoError(t, err)
	assert.Equal(t, wantACData(t), data)

	icc := sampleICC(t)[:2]
	data, err = BuildACData(sampleTerminal(t), icc)
	require.NoError(t, err)
	assert.Len(t, data, len(wantACData(t))-7)
}

func TestGenerateACMissingTagsBeforeCipher(t *testing.T) {
	t.Parallel()

	calls := &atomic.Int32{}
	e := blockcipher.New(countingPath{calls: calls}, nil)
	sk := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")

	terminal := sampleTerminal(t)[2:] // drops 9F02 and 9F03
	icc := TagList{{TagAIP, mustHex(t, "5800")}}

	_, err := GenerateAC(e, sk, terminal, icc, ARQC, ACOptions{})
	require.ErrorIs(t, err, errorcodes.ErrMissingMandatoryTag)
	assert.Contains(t, err.Error(), "terminal 9F02")
	assert.Contains(t, err.Error(), "terminal 9F03")
	assert.Contains(t, err.Error(), "icc 9F36")
	assert.NotContains(t, err.Error(), "icc 82")
	assert.Zero(t, calls.Load())

	_, err = GenerateAC(e, sk, sampleTerminal(t), sampleICC(t), ARQC, ACOptions{})
	require.NoError(t, err)
	assert.Positive(t, calls.Load())
}

func TestGenerateACDefault(t *testing.T) {
	t.Parallel()

	sk := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")
	ac, err := GenerateAC(nil, sk, sampleTerminal(t), sampleICC(t), ARQC, ACOptions{})
	require.NoError(t, err)
	require.Len(t, ac, 8)

	// last CBC block of the PKCS#7 padded data, composed with crypto/des.
	block, err := des.NewTripleDESCipher(append(append([]byte{}, sk...), sk[:8]...))
	require.NoError(t, err)
	padded := keyutil.Pad(wantACData(t), 8)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, make([]byte, 8)).CryptBlocks(out, padded)
	assert.Equal(t, out[len(out)-8:], ac)

	tc, err := GenerateAC(nil, sk, sampleTerminal(t), sampleICC(t), TC, ACOptions{})
	require.NoError(t, err)
	assert.Equal(t, ac, tc)
}

func TestGenerateACRetail(t *testing.T) {
	t.Parallel()

	sk := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")
	ac, err := GenerateAC(nil, sk, sampleTerminal(t), sampleICC(t), AAC, ACOptions{Algorithm: MACRetail})
	require.NoError(t, err)

	padded := cryptoutils.PadISO9797Method2(wantACData(t), 8)
	want, err := cryptoutils.CalculateMAC(nil, padded, sk, 8, 3)
	require.NoError(t, err)
	assert.Equal(t, want, ac)

	def, err := GenerateAC(nil, sk, sampleTerminal(t), sampleICC(t), AAC, ACOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, def, ac)
}

func TestVerifyAC(t *testing.T) {
	t.Parallel()

	sk := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")
	ac, err := GenerateAC(nil, sk, sampleTerminal(t), sampleICC(t), ARQC, ACOptions{})
	require.NoError(t, err)

	ok, err := VerifyAC(nil, sk, sampleTerminal(t), sampleICC(t), ARQC, ACOptions{}, ac)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := append([]byte{}, ac...)
	tampered[7] ^= 0x01
	ok, err = VerifyAC(nil, sk, sampleTerminal(t), sampleICC(t), ARQC, ACOptions{}, tampered)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifyAC(nil, sk, sampleTerminal(t), sampleICC(t), ARQC, ACOptions{}, ac[:4])
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyAC(nil, sk, nil, sampleICC(t), ARQC, ACOptions{}, ac)
	require.ErrorIs(t, err, errorcodes.ErrMissingMandatoryTag)
}

func TestGenerateARPC(t *testing.T) {
	t.Parallel()

	sk := mustHex(t, "0123456789ABCDEFFEDCBA9876543210")
	arqc := mustHex(t, "1234567890ABCDEF")

	t.Run("method 1", func(t *testing.T) {
		t.Parallel()
		arpc, err := GenerateARPC(nil, sk, arqc, ARPCParams{Method: ARPCMethod1, ARC: mustHex(t, "3030")})
		require.NoError(t, err)
		assert.Equal(t, tdesECB(t, sk, mustHex(t, "2204567890ABCDEF")), arpc)
	})

	t.Run("method 2", func(t *testing.T) {
		t.Parallel()
		csu := mustHex(t, "00820000")
		prop := mustHex(t, "AABB")
		arpc, err := GenerateARPC(nil, sk, arqc, ARPCParams{Method: ARPCMethod2, CSU: csu, PropAuthData: prop})
		require.NoError(t, err)
		require.Len(t, arpc, 4)

		padded := mustHex(t, "1234567890ABCDEF"+"00820000"+"AABB"+"8000")
		want, err := cryptoutils.CalculateMAC(nil, padded, sk, 4, 3)
		require.NoError(t, err)
		assert.Equal(t, want, arpc)
	})

	tests := []struct {
		name    string
		arqc    []byte
		params  ARPCParams
		wantErr error
	}{
		{"short arqc", arqc[:4], ARPCParams{Method: ARPCMethod1, ARC: []byte{0, 0}}, errorcodes.ErrInvalidDataLength},
		{"bad arc", arqc, ARPCParams{Method: ARPCMethod1, ARC: []byte{0}}, errorcodes.ErrInvalidInput},
		{"bad csu", arqc, ARPCParams{Method: ARPCMethod2, CSU: []byte{0}}, errorcodes.ErrInvalidInput},
		{"long prop data", arqc, ARPCParams{Method: ARPCMethod2, CSU: make([]byte, 4), PropAuthData: make([]byte, 9)}, errorcodes.ErrInvalidInput},
		{"unknown method", arqc, ARPCParams{Method: 3}, errorcodes.ErrUnsupportedOperation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := GenerateARPC(nil, sk, tc.arqc, tc.params)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestParseEnums(t *testing.T) {
	t.Parallel()

	typ, err := ParseCryptogramType("tc")
	require.NoError(t, err)
	assert.Equal(t, TC, typ)
	_, err = ParseCryptogramType("XYZ")
	require.ErrorIs(t, err, errorcodes.ErrInvalidInput)

	alg, err := ParseMACAlgorithm("RETAIL")
	require.NoError(t, err)
	assert.Equal(t, MACRetail, alg)

	opt, err := ParseOption("b")
	require.NoError(t, err)
	assert.Equal(t, OptionB, opt)

	scheme, err := ParseScheme("")
	require.NoError(t, err)
	assert.Equal(t, SchemeFlat, scheme)

	kt, err := ParseKeyType("smi")
	require.NoError(t, err)
	assert.Equal(t, KeyTypeSM, kt)
}
