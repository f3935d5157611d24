package emv

import (
	"fmt"
	"slices"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

// Tags used by the cryptogram engine.
const (
	TagAmountAuthorised      uint32 = 0x9F02
	TagAmountOther           uint32 = 0x9F03
	TagTerminalCountryCode   uint32 = 0x9F1A
	TagTVR                   uint32 = 0x95
	TagTransactionCurrency   uint32 = 0x5F2A
	TagTransactionDate       uint32 = 0x9A
	TagTransactionType       uint32 = 0x9C
	TagUnpredictableNumber   uint32 = 0x9F37
	TagAIP                   uint32 = 0x82
	TagATC                   uint32 = 0x9F36
	TagIssuerAppData         uint32 = 0x9F10
	TagApplicationCryptogram uint32 = 0x9F26
	TagIssuerAuthData        uint32 = 0x91
)

// TLV is one tag/value pair. Tag keeps the raw tag bytes big-endian, so 9F36 is
// 0x9F36.
type TLV struct {
	Tag   uint32
	Value []byte
}

// TagList is an ordered, read-only view over parsed tag data.
type TagList []TLV

// TagString formats a tag the way it is written in EMV books.
func TagString(tag uint32) string {
	return fmt.Sprintf("%02X", tag)
}

// Has reports whether tag is present.
func (l TagList) Has(tag uint32) bool {
	_, ok := l.Value(tag)

	return ok
}

// Value returns the value of the first occurrence of tag.
func (l TagList) Value(tag uint32) ([]byte, bool) {
	for _, t := range l {
		if t.Tag == tag {
			return t.Value, true
		}
	}

	return nil, false
}

// Missing returns the tags absent from the list, in the order asked.
func (l TagList) Missing(tags ...uint32) []uint32 {
	var out []uint32
	for _, tag := range tags {
		if !l.Has(tag) {
			out = append(out, tag)
		}
	}

	return out
}

// MaxValueLength is the longest value Encode writes. EMV data objects stay far
// below it.
const MaxValueLength = 0xFFFF

// Encode serialises the list back to BER-TLV. Every entry is written as a
// primitive object carrying its value.
func (l TagList) Encode() ([]byte, error) {
	objects := make([]bertlv.TLV, 0, len(l))
	for _, t := range l {
		if len(t.Value) > MaxValueLength {
			return nil, fmt.Errorf("%w: tag %s value of %d bytes exceeds %d",
				errorcodes.ErrInvalidInput, TagString(t.Tag), len(t.Value), MaxValueLength)
		}
		objects = append(objects, bertlv.TLV{Tag: TagString(t.Tag), Value: t.Value})
	}

	out, err := bertlv.Encode(objects)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errorcodes.ErrInvalidInput, err)
	}

	return out, nil
}

// ParseTLV parses a BER-TLV buffer. Constructed templates are kept and their
// children are appended after them, so nested tags are directly queryable.
func ParseTLV(buf []byte) (TagList, error) {
	objects, err := bertlv.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errorcodes.ErrInvalidInput, err)
	}

	var list TagList
	if err := flatten(&list, objects); err != nil {
		return nil, err
	}

	return list, nil
}

func flatten(list *TagList, objects []bertlv.TLV) error {
	for _, o := range objects {
		tag, err := ParseTag(o.Tag)
		if err != nil {
			return err
		}

		if len(o.TLVs) == 0 {
			*list = append(*list, TLV{Tag: tag, Value: slices.Clone(o.Value)})
			continue
		}

		// the template value is its children as they were encoded
		value, err := bertlv.Encode(o.TLVs)
		if err != nil {
			return fmt.Errorf("%w: template %s: %v", errorcodes.ErrInvalidInput, o.Tag, err)
		}
		*list = append(*list, TLV{Tag: tag, Value: value})
		if err := flatten(list, o.TLVs); err != nil {
			return err
		}
	}

	return nil
}

// ParseTag parses a hex tag name such as "9F36".
func ParseTag(s string) (uint32, error) {
	var tag uint32
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 8 || len(s)%2 != 0 {
		return 0, fmt.Errorf("%w: tag %q", errorcodes.ErrInvalidInput, s)
	}
	if _, err := fmt.Sscanf(s, "%X", &tag); err != nil {
		return 0, fmt.Errorf("%w: tag %q", errorcodes.ErrInvalidInput, s)
	}

	return tag, nil
}
