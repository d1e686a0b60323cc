// Package numeric implements the numeric-field escape cascade: octal-
// with-NUL for values that fit, binary base-256 for GNU-style overflow,
// and a signal to the caller that a value must instead be promoted to a
// pax extended-header record.
//
// Parser and Formatter each accumulate the first error encountered
// across a sequence of field operations in their Err field, so a
// header's worth of fields can be decoded or encoded in a row with a
// single error check at the end.
package numeric

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser accumulates the first error encountered across a sequence of
// field parses, so that a header's many fields can be decoded in a
// straight line and checked once at the end (same idiom as
// archive/tar's unexported parser type).
type Parser struct {
	Err error
}

// ErrOutOfRange is returned (wrapped with field-specific detail) when a
// successfully-decoded value falls outside a field's declared range.
type ErrOutOfRange struct {
	Field      string
	Value      int64
	Min, Max   int64
}

func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("archive value %d is out of %s range %d..%d", e.Value, e.Field, e.Min, e.Max)
}

// ParseString parses a NUL-terminated (or full-width) string field.
func (p *Parser) ParseString(b []byte) string {
	if i := indexNUL(b); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// ParseNumeric decodes an octal, base-256, or historic base-64 numeric
// field, per the cascade in the format's numeric codec. The first error
// encountered is latched into p.Err and 0 is returned from then on.
func (p *Parser) ParseNumeric(b []byte) int64 {
	if p.Err != nil {
		return 0
	}
	if len(b) > 0 && (b[0]&0x80 != 0 || b[0] == 0xFF) {
		v, err := parseBase256(b)
		if err != nil {
			p.Err = err
		}
		return v
	}
	if v, ok := p.ParseBase64Historic(b); ok {
		return v
	}
	v, err := parseOctal(b)
	if err != nil {
		p.Err = err
	}
	return v
}

// parseOctal parses an optionally NUL/space-prefixed octal field,
// terminated by a NUL or space, tolerating a buggy leading NUL.
func parseOctal(b []byte) (int64, error) {
	// Trim leading NULs/spaces (buggy writers).
	for len(b) > 0 && (b[0] == 0 || b[0] == ' ') {
		b = b[1:]
	}
	// Trim trailing NULs/spaces.
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	b = b[:end]
	if len(b) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseUint(string(b), 8, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed octal field %q: %w", b, err)
	}
	return int64(v), nil
}

// parseBase256 decodes a two's-complement big-endian base-256 field
// whose first byte carries the sign marker (0x80 non-negative, 0xFF
// negative), detecting overflow by checking value << bits >> bits ==
// value.
func parseBase256(b []byte) (int64, error) {
	neg := b[0] == 0xFF
	// Clear the sign marker bit from the first byte for magnitude use.
	var v int64
	first := b[0] &^ 0x80
	if neg {
		// Two's complement: start from -1 and accumulate.
		v = -1
		v = (v << 8) | int64(b[0])
	} else {
		v = int64(first)
	}
	for _, c := range b[1:] {
		shifted := v << 8
		if (shifted >> 8) != v {
			return 0, fmt.Errorf("base-256 field overflows 64 bits")
		}
		v = shifted | int64(c)
	}
	return v, nil
}

// Formatter is the write-side counterpart of Parser.
type Formatter struct {
	Err error
}

// FormatString writes s left-justified into field, NUL-padded, failing
// (ErrFieldTooLong-class) if it does not fit.
func (f *Formatter) FormatString(field []byte, s string) {
	if f.Err != nil {
		return
	}
	if len(s) >= len(field) {
		f.Err = fmt.Errorf("field of %d bytes cannot hold %d-byte string %q", len(field), len(s), s)
		return
	}
	clear(field)
	copy(field, s)
}

// Cascade describes which escapes FormatNumeric may use, per format.
type Cascade int

const (
	// CascadeOctalOnly only ever tries plain octal; overflow is an error.
	// Used for strict V7/legacy-sensitive fields.
	CascadeOctalOnly Cascade = iota
	// CascadeBase256 allows falling back to GNU/STAR base-256 encoding.
	CascadeBase256
)

// FormatNumeric writes v into field using the numeric escape cascade:
// octal-with-NUL if it fits in N-1 digits, else base-256 if allowed.
// It reports ok=false (without setting f.Err) when neither fits, so the
// caller (the header builder) can fall through to a pax substitution.
func (f *Formatter) FormatNumeric(field []byte, v int64, cascade Cascade) (ok bool) {
	if f.Err != nil {
		return false
	}
	if fitsOctal(v, len(field)) {
		formatOctal(field, v)
		return true
	}
	if cascade == CascadeBase256 && fitsBase256(v, len(field)) {
		formatBase256(field, v)
		return true
	}
	return false
}

// fitsBase256 reports whether v fits in a base-256 field of fieldLen
// bytes: one sign byte followed by fieldLen-1 two's-complement
// magnitude bytes. A field of 9 or more bytes always fits any int64.
func fitsBase256(v int64, fieldLen int) bool {
	if fieldLen >= 9 {
		return true
	}
	bits := uint(fieldLen-1) * 8
	return v >= -(int64(1) << bits) && v < (int64(1) << bits)
}

func fitsOctal(v int64, fieldLen int) bool {
	if v < 0 {
		return false
	}
	digits := fieldLen - 1
	maxVal := uint64(1)<<uint(3*digits) - 1
	return uint64(v) <= maxVal
}

func formatOctal(field []byte, v int64) {
	s := strconv.FormatInt(v, 8)
	clear(field)
	pad := len(field) - 1 - len(s)
	if pad < 0 {
		// Truncate defensively; fitsOctal should have prevented this.
		s = s[len(s)-(len(field)-1):]
		pad = 0
	}
	copy(field[pad:], s)
	field[len(field)-1] = 0
}

func formatBase256(field []byte, v int64) {
	clear(field)
	if v >= 0 {
		field[0] = 0x80
	} else {
		field[0] = 0xFF
	}
	for i := len(field) - 1; i >= 1; i-- {
		field[i] = byte(v)
		v >>= 8
	}
}

// ParseBase64Historic decodes the historic '+'/'-' prefixed base-64
// numeric encoding some ancient writers used. It is retained only for
// read-side compatibility; the writer never emits it.
func (p *Parser) ParseBase64Historic(b []byte) (int64, bool) {
	s := string(b)
	s = strings.TrimRight(s, "\x00 ")
	if len(s) == 0 {
		return 0, false
	}
	neg := false
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		neg = true
		s = s[1:]
	default:
		return 0, false
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	var v int64
	for _, c := range s {
		idx := strings.IndexRune(alphabet, c)
		if idx < 0 {
			return 0, false
		}
		v = v*64 + int64(idx)
	}
	if neg {
		v = -v
	}
	return v, true
}
