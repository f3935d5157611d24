//go:build !pkcs11

package engine

import (
	"errors"

	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
)

func buildPKCS11(Options) (*blockcipher.Engine, func(), error) {
	return nil, nil, errors.New("pkcs11 provider needs a binary built with -tags pkcs11")
}
