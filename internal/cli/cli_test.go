package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/emv_studio/internal/calculator"
)

func TestLabel(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"kcv":              "KCV",
		"issuer_auth_data": "Issuer Auth Data",
		"pin_block":        "PIN Block",
		"component_1":      "Component 1",
		"session_key":      "Session Key",
	}
	for in, want := range tests {
		assert.Equal(t, want, label(in), in)
	}
}

func TestPrintResultText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := PrintResult(&buf, FormatText, calculator.Result{
		Calculator: "keys",
		Operation:  "GENERATE_KEY",
		Success:    true,
		Data:       map[string]string{"kcv": "08D7B4", "key": "0123456789ABCDEF"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "KCV:"))
	assert.True(t, strings.HasSuffix(lines[1], "0123456789ABCDEF"))
}

func TestPrintResultFailure(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := PrintResult(&buf, FormatYAML, calculator.Result{
		Calculator: "keys",
		Operation:  "KCV",
		Error:      "E07: Parameter validation failed: key is required",
		Code:       "E07",
		Duration:   time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key is required")
	assert.Contains(t, buf.String(), "code: E07")
}

func TestPrintResults(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := PrintResults(&buf, "", []calculator.Result{
		{Calculator: "keys", Operation: "KCV", Success: true, Data: map[string]string{"kcv": "D5D44F"}},
		{Calculator: "nope", Operation: "KCV", Code: "E06", Error: "E06: Operation not supported by calculator"},
	})
	require.ErrorContains(t, err, "1 of 2 requests failed")
	assert.Contains(t, buf.String(), "[0] keys KCV")
	assert.Contains(t, buf.String(), "error E06")
}

func TestEncodeUnsupported(t *testing.T) {
	t.Parallel()

	require.Error(t, Encode(&bytes.Buffer{}, "xml", nil))
}

func TestReadSecret(t *testing.T) {
	t.Parallel()

	var prompt bytes.Buffer
	got, err := ReadSecret(strings.NewReader("  0123456789ABCDEF \nrest"), &prompt, "key")
	require.NoError(t, err)
	assert.Equal(t, "0123456789ABCDEF", got)
	assert.Contains(t, prompt.String(), "Enter key: ")

	got, err = ReadSecret(strings.NewReader("no newline"), &prompt, "key")
	require.NoError(t, err)
	assert.Equal(t, "no newline", got)
}

func TestNewOperationCommandFlags(t *testing.T) {
	t.Parallel()

	cmd := NewOperationCommand("udk", "DERIVE", "udk", "Derive a card key")

	for _, name := range []string{"master-key", "pan", "psn", "derivation", "parity"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "A", cmd.Flags().Lookup("derivation").DefValue)

	assert.Panics(t, func() { NewOperationCommand("udk", "NOPE", "x", "x") })
	assert.Panics(t, func() { NewOperationCommand("nope", "DERIVE", "x", "x") })
}

func TestInputFromFlags(t *testing.T) {
	t.Parallel()

	cmd := NewOperationCommand("cipher", "ENCRYPT", "encrypt", "Encrypt data")
	cmd.SetIn(strings.NewReader("0123456789ABCDEF\n"))
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.ParseFlags([]string{"--key", "-", "--data", "00", "--mode", "CBC", "--padding"}))

	c, ok := Schemas().Get("cipher")
	require.True(t, ok)
	s, ok := c.Schema("ENCRYPT")
	require.True(t, ok)

	in, err := InputFromFlags(cmd, s)
	require.NoError(t, err)
	assert.Equal(t, "cipher", in.Calculator)
	assert.Equal(t, "ENCRYPT", in.Operation)
	assert.Equal(t, map[string]string{"key": "0123456789ABCDEF", "data": "00"}, in.Params)
	assert.Equal(t, map[string]string{"mode": "CBC", "padding": "true"}, in.Options)
}
