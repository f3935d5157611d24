//go:build !pkcs11

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPKCS11Unavailable(t *testing.T) {
	t.Parallel()

	_, _, err := Build(Options{Provider: "pkcs11", Library: "/nonexistent.so"})
	require.ErrorContains(t, err, "-tags pkcs11")
}
