// Package isobridge reads EMV card data out of packed ISO 8583 (1987, ASCII)
// authorisation messages and builds the matching responses.
package isobridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/specs"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/cryptoutils"
	"github.com/andrei-cloud/emv_studio/pkg/emv"
)

// Field numbers read or written by the bridge.
const (
	FieldPAN          = 2
	FieldPANSequence  = 23
	FieldResponseCode = 39
	FieldICCData      = 55
)

// Response codes set in field 39.
const (
	ResponseApproved    = "00"
	ResponseDeclined    = "05"
	ResponseFormatError = "30"
)

// echoed are request fields copied into the response when present.
var echoed = []int{2, 3, 4, 7, 11, 12, 13, 23, 37, 41, 42, 49}

// Request is an unpacked authorisation request.
type Request struct {
	MTI         string
	PAN         string
	PANSequence string // two digits, "00" when field 23 is absent
	ICC         emv.TagList

	msg *iso8583.Message
}

// ParseRequest unpacks msg and extracts the PAN, the PAN sequence number and
// the ICC data of field 55, which carries hex-encoded BER-TLV.
func ParseRequest(packed []byte) (*Request, error) {
	msg := iso8583.NewMessage(specs.Spec87ASCII)
	if err := msg.Unpack(packed); err != nil {
		return nil, fmt.Errorf("%w: unpack message: %w", errorcodes.ErrInvalidInput, err)
	}

	mti, err := msg.GetMTI()
	if err != nil {
		return nil, fmt.Errorf("%w: read MTI: %w", errorcodes.ErrInvalidInput, err)
	}

	pan, err := msg.GetString(FieldPAN)
	if err != nil {
		return nil, fmt.Errorf("%w: read field %d: %w", errorcodes.ErrInvalidInput, FieldPAN, err)
	}
	if pan == "" || !cryptoutils.IsDigits(pan) {
		return nil, fmt.Errorf("%w: field %d must hold the PAN digits", errorcodes.ErrInvalidInput, FieldPAN)
	}

	psn, err := readPANSequence(msg)
	if err != nil {
		return nil, err
	}

	iccHex, err := msg.GetString(FieldICCData)
	if err != nil {
		return nil, fmt.Errorf("%w: read field %d: %w", errorcodes.ErrInvalidInput, FieldICCData, err)
	}
	var icc emv.TagList
	if iccHex != "" {
		raw, err := cryptoutils.Str2Raw(iccHex)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", FieldICCData, err)
		}
		if icc, err = emv.ParseTLV(raw); err != nil {
			return nil, fmt.Errorf("field %d: %w", FieldICCData, err)
		}
	}

	return &Request{
		MTI:         mti,
		PAN:         pan,
		PANSequence: psn,
		ICC:         icc,
		msg:         msg,
	}, nil
}

// readPANSequence formats field 23 as the two digits used by card key derivation.
func readPANSequence(msg *iso8583.Message) (string, error) {
	if !isSet(msg, FieldPANSequence) {
		return "00", nil
	}
	raw, err := msg.GetString(FieldPANSequence)
	if err != nil {
		return "", fmt.Errorf("%w: read field %d: %w", errorcodes.ErrInvalidInput, FieldPANSequence, err)
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 || n > 99 {
		return "", fmt.Errorf("%w: field %d must be 0-99, got %q", errorcodes.ErrInvalidInput, FieldPANSequence, raw)
	}

	return fmt.Sprintf("%02d", n), nil
}

// isSet reports whether field id was present in the message. Unset numeric
// fields still render as "0".
func isSet(msg *iso8583.Message, id int) bool {
	_, ok := msg.GetFields()[id]

	return ok
}

// ResponseMTI turns a request MTI into its response class, 0100 into 0110.
func ResponseMTI(mti string) (string, error) {
	if len(mti) != 4 || !cryptoutils.IsDigits(mti) {
		return "", fmt.Errorf("%w: MTI %q", errorcodes.ErrInvalidInput, mti)
	}
	if (mti[2]-'0')%2 != 0 {
		return "", fmt.Errorf("%w: MTI %s is already a response", errorcodes.ErrInvalidInput, mti)
	}

	return mti[:2] + string(mti[2]+1) + mti[3:], nil
}

// Respond packs the response to r with responseCode in field 39. A non-empty
// issuerAuthData is returned to the card as tag 91 in field 55.
func (r *Request) Respond(responseCode string, issuerAuthData []byte) ([]byte, error) {
	mti, err := ResponseMTI(r.MTI)
	if err != nil {
		return nil, err
	}

	resp := iso8583.NewMessage(specs.Spec87ASCII)
	resp.MTI(mti)

	for _, id := range echoed {
		if !isSet(r.msg, id) {
			continue
		}
		v, err := r.msg.GetString(id)
		if err != nil {
			return nil, fmt.Errorf("read field %d: %w", id, err)
		}
		if err := resp.Field(id, v); err != nil {
			return nil, fmt.Errorf("copy field %d: %w", id, err)
		}
	}

	if err := resp.Field(FieldResponseCode, responseCode); err != nil {
		return nil, fmt.Errorf("set field %d: %w", FieldResponseCode, err)
	}

	if len(issuerAuthData) > 0 {
		icc, err := emv.TagList{{Tag: emv.TagIssuerAuthData, Value: issuerAuthData}}.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode field %d: %w", FieldICCData, err)
		}
		if err := resp.Field(FieldICCData, cryptoutils.Raw2Str(icc)); err != nil {
			return nil, fmt.Errorf("set field %d: %w", FieldICCData, err)
		}
	}

	packed, err := resp.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack response: %w", err)
	}

	return packed, nil
}
