package isobridge

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/emv"
	"github.com/andrei-cloud/emv_studio/pkg/keyutil"
)

// Issuer answers authorisation requests by checking the ARQC in field 55
// against a key derived from the issuer master key.
type Issuer struct {
	engine    *blockcipher.Engine
	masterKey []byte
	option    emv.Option
	algorithm emv.MACAlgorithm
}

// IssuerOption tunes an Issuer.
type IssuerOption func(*Issuer)

// WithDerivation selects the card key derivation option. The default is A.
func WithDerivation(o emv.Option) IssuerOption {
	return func(i *Issuer) { i.option = o }
}

// WithMACAlgorithm selects how cryptograms are computed.
func WithMACAlgorithm(a emv.MACAlgorithm) IssuerOption {
	return func(i *Issuer) { i.algorithm = a }
}

// NewIssuer creates an Issuer for the AC master key masterKey.
func NewIssuer(e *blockcipher.Engine, masterKey []byte, opts ...IssuerOption) *Issuer {
	if e == nil {
		e = blockcipher.Default()
	}
	i := &Issuer{engine: e, masterKey: masterKey}
	for _, o := range opts {
		o(i)
	}

	return i
}

// Decision is the outcome of one authorisation.
type Decision struct {
	ResponseCode   string
	IssuerAuthData []byte
}

// Authorize unpacks a request, decides it and packs the response. Only
// requests that cannot be unpacked return an error; card data problems are
// answered with a format error response.
func (i *Issuer) Authorize(ctx context.Context, packed []byte) ([]byte, error) {
	req, err := ParseRequest(packed)
	if err != nil {
		return nil, err
	}

	d, err := i.Decide(ctx, req)
	if err != nil {
		log.Warn().
			Str("event", "authorize").
			Str("mti", req.MTI).
			Err(err).
			Msg("rejecting request")
		d = Decision{ResponseCode: ResponseFormatError}
	}

	log.Info().
		Str("event", "authorize").
		Str("mti", req.MTI).
		Str("response_code", d.ResponseCode).
		Msg("request decided")

	return req.Respond(d.ResponseCode, d.IssuerAuthData)
}

// Decide verifies the ARQC of req and computes the ARPC for the answer.
func (i *Issuer) Decide(ctx context.Context, req *Request) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, fmt.Errorf("%w: %w", errorcodes.ErrCipherFailure, err)
	}

	arqc, ok := req.ICC.Value(emv.TagApplicationCryptogram)
	if !ok {
		return Decision{}, fmt.Errorf("%w: icc %s", errorcodes.ErrMissingMandatoryTag, emv.TagString(emv.TagApplicationCryptogram))
	}
	atc, ok := req.ICC.Value(emv.TagATC)
	if !ok || len(atc) != 2 {
		return Decision{}, fmt.Errorf("%w: icc %s", errorcodes.ErrMissingMandatoryTag, emv.TagString(emv.TagATC))
	}

	sk, err := i.sessionKey(req, binary.BigEndian.Uint16(atc))
	if err != nil {
		return Decision{}, err
	}

	// Field 55 carries terminal and card tags in one list.
	valid, err := emv.VerifyAC(i.engine, sk, req.ICC, req.ICC, emv.ARQC, emv.ACOptions{Algorithm: i.algorithm}, arqc)
	if err != nil {
		return Decision{}, err
	}

	code := ResponseApproved
	if !valid {
		code = ResponseDeclined
	}

	p := emv.ARPCParams{Method: emv.ARPCMethod1, ARC: []byte(code)}
	arpc, err := emv.GenerateARPC(i.engine, sk, arqc, p)
	if err != nil {
		return Decision{}, err
	}

	return Decision{ResponseCode: code, IssuerAuthData: emv.IssuerAuthData(arpc, p)}, nil
}

func (i *Issuer) sessionKey(req *Request, atc uint16) ([]byte, error) {
	udk, err := emv.DeriveUDK(i.engine, emv.UDKParams{
		MasterKey:   i.masterKey,
		PAN:         req.PAN,
		PANSequence: req.PANSequence,
		Option:      i.option,
		Parity:      keyutil.ParityOdd,
	})
	if err != nil {
		return nil, err
	}

	sk, err := emv.DeriveSessionKey(i.engine, emv.SessionKeyParams{
		MasterKey: udk,
		Scheme:    emv.SchemeFlat,
		KeyType:   emv.KeyTypeAC,
		ATC:       uint32(atc),
		Parity:    keyutil.ParityOdd,
	})
	if err != nil {
		return nil, err
	}

	return sk, nil
}
