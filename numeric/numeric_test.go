package numeric

import "testing"

func TestParseStringTrimsAtNUL(t *testing.T) {
	p := &Parser{}
	got := p.ParseString([]byte("hello\x00\x00\x00"))
	if got != "hello" {
		t.Fatalf("ParseString = %q, want %q", got, "hello")
	}
	if p.Err != nil {
		t.Fatalf("unexpected error: %v", p.Err)
	}
}

func TestParseStringNoNULUsesWholeField(t *testing.T) {
	p := &Parser{}
	got := p.ParseString([]byte("abcdef"))
	if got != "abcdef" {
		t.Fatalf("ParseString = %q, want %q", got, "abcdef")
	}
}

func TestOctalRoundTrip(t *testing.T) {
	field := make([]byte, 12)
	cases := []int64{0, 1, 7, 8, 511, 07777777, 077777777777}
	for _, v := range cases {
		f := &Formatter{}
		if ok := f.FormatNumeric(field, v, CascadeOctalOnly); !ok {
			t.Fatalf("FormatNumeric(%d) did not fit octal field of len %d", v, len(field))
		}
		if f.Err != nil {
			t.Fatalf("unexpected formatter error: %v", f.Err)
		}
		p := &Parser{}
		got := p.ParseNumeric(field)
		if p.Err != nil {
			t.Fatalf("unexpected parser error: %v", p.Err)
		}
		if got != v {
			t.Errorf("round trip of %d through octal field produced %d", v, got)
		}
	}
}

func TestBase256RoundTrip(t *testing.T) {
	field := make([]byte, 12)
	cases := []int64{0, 1, -1, 1 << 40, -(1 << 40), 1<<63 - 1, -(1 << 62)}
	for _, v := range cases {
		f := &Formatter{}
		if ok := f.FormatNumeric(field, v, CascadeBase256); !ok {
			t.Fatalf("FormatNumeric(%d) with CascadeBase256 reported not-ok", v)
		}
		p := &Parser{}
		got := p.ParseNumeric(field)
		if p.Err != nil {
			t.Fatalf("unexpected parser error for %d: %v", v, p.Err)
		}
		if got != v {
			t.Errorf("round trip of %d through base-256 field produced %d", v, got)
		}
	}
}

func TestFormatNumericOctalOnlyRejectsOverflow(t *testing.T) {
	field := make([]byte, 4) // 3 octal digits, max value 511
	f := &Formatter{}
	if ok := f.FormatNumeric(field, 1<<20, CascadeOctalOnly); ok {
		t.Fatal("expected CascadeOctalOnly to reject an overflowing value")
	}
	if f.Err != nil {
		t.Fatalf("FormatNumeric should report ok=false without setting Err, got: %v", f.Err)
	}
}

func TestFormatNumericOctalOnlyRejectsNegative(t *testing.T) {
	field := make([]byte, 8)
	f := &Formatter{}
	if ok := f.FormatNumeric(field, -1, CascadeOctalOnly); ok {
		t.Fatal("expected CascadeOctalOnly to reject a negative value")
	}
}

func TestFormatNumericBase256RejectsValueWiderThanField(t *testing.T) {
	field := make([]byte, 8) // 7 magnitude bytes, range [-2^56, 2^56)
	f := &Formatter{}
	if ok := f.FormatNumeric(field, 1<<60, CascadeBase256); ok {
		t.Fatal("expected a value past the base-256 magnitude range to be rejected, not truncated")
	}
	if f.Err != nil {
		t.Fatalf("FormatNumeric should report ok=false without setting Err, got: %v", f.Err)
	}
}

func TestFormatNumericFallsBackToBase256OnOverflow(t *testing.T) {
	field := make([]byte, 8) // 7 octal digits, max value 2097151
	f := &Formatter{}
	v := int64(1 << 40)
	if ok := f.FormatNumeric(field, v, CascadeBase256); !ok {
		t.Fatal("expected CascadeBase256 to accept an overflowing value via base-256")
	}
	if field[0]&0x80 == 0 {
		t.Fatal("expected base-256 sign marker bit set on overflow fallback")
	}
	p := &Parser{}
	if got := p.ParseNumeric(field); got != v {
		t.Fatalf("ParseNumeric = %d, want %d", got, v)
	}
}

func TestParserLatchesFirstError(t *testing.T) {
	p := &Parser{}
	// A field of all 0x80 with no further bytes after overflow shift
	// should never happen in practice, so instead force an error with a
	// malformed octal string, then confirm the latch holds.
	p.ParseNumeric([]byte("99999999\x00"))
	if p.Err == nil {
		t.Fatal("expected malformed octal field to set Err")
	}
	firstErr := p.Err
	if got := p.ParseNumeric([]byte("7\x00")); got != 0 {
		t.Fatalf("ParseNumeric after latched error returned %d, want 0", got)
	}
	if p.Err != firstErr {
		t.Fatal("Err should remain the first error encountered")
	}
}

func TestFormatterLatchesFirstError(t *testing.T) {
	f := &Formatter{}
	f.FormatString(make([]byte, 4), "toolong")
	if f.Err == nil {
		t.Fatal("expected oversized string to set Err")
	}
	firstErr := f.Err
	f.FormatString(make([]byte, 8), "fits")
	if f.Err != firstErr {
		t.Fatal("Err should remain the first error encountered")
	}
}

func TestFormatStringPadsWithNUL(t *testing.T) {
	field := make([]byte, 8)
	for i := range field {
		field[i] = 'x'
	}
	f := &Formatter{}
	f.FormatString(field, "ab")
	if f.Err != nil {
		t.Fatalf("unexpected error: %v", f.Err)
	}
	want := []byte("ab\x00\x00\x00\x00\x00\x00")
	if string(field) != string(want) {
		t.Fatalf("FormatString field = %q, want %q", field, want)
	}
}

func TestParseBase64Historic(t *testing.T) {
	f := &Formatter{}
	field := make([]byte, 12)
	f.FormatNumeric(field, 12345, CascadeOctalOnly)

	p := &Parser{}
	if _, ok := p.ParseBase64Historic(field); ok {
		t.Fatal("plain octal field should not parse as base-64 historic (no +/- prefix)")
	}

	v, ok := p.ParseBase64Historic([]byte("+2\x00"))
	if !ok {
		t.Fatal("expected +2 to parse as historic base-64")
	}
	if v != 54 {
		t.Fatalf("ParseBase64Historic(+2) = %d, want 54", v)
	}

	v, ok = p.ParseBase64Historic([]byte("-2\x00"))
	if !ok || v != -54 {
		t.Fatalf("ParseBase64Historic(-2) = (%d, %v), want (-54, true)", v, ok)
	}
}
